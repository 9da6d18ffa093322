// Signs a scan payload the way a lot scanner would and optionally posts it
// to a running ingestor.
//
// Usage:
//
//	go run scripts/sign-scan.go -key secret '{"type":"entry","vehicle_id":"KA-01-1234","slot_id":"A-12"}'
//	go run scripts/sign-scan.go -key secret -url http://localhost:8080/ingest/scan '{"type":"exit","vehicle_id":"KA-01-1234"}'
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/parkpulse/backend/internal/signing"
)

func main() {
	key := flag.String("key", os.Getenv("HMAC_KEY"), "HMAC signing key")
	url := flag.String("url", "", "if set, POST the signed payload to this URL")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "signing key required (-key or HMAC_KEY)")
		os.Exit(1)
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sign-scan [-key KEY] [-url URL] '<json payload>'")
		os.Exit(1)
	}

	payload, err := signing.DecodePayload([]byte(flag.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse payload: %v\n", err)
		os.Exit(1)
	}

	sig, err := signing.Compute(payload, []byte(*key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign payload: %v\n", err)
		os.Exit(1)
	}
	payload[signing.SignatureField] = sig

	signed, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal payload: %v\n", err)
		os.Exit(1)
	}

	if *url == "" {
		fmt.Println(string(signed))
		return
	}

	resp, err := http.Post(*url, "application/json", bytes.NewReader(signed))
	if err != nil {
		fmt.Fprintf(os.Stderr, "post: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d %s\n", resp.StatusCode, string(body))
}
