package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureField is the payload key carrying the signature itself; it is
// excluded from the signed material.
const SignatureField = "sig"

// Canonicalize serializes a payload deterministically: keys sorted, compact
// separators, the signature field dropped. encoding/json already sorts map
// keys; decoding with json.Number keeps numeric literals byte-stable so the
// scanner and the server agree on the exact signed bytes.
func Canonicalize(payload map[string]any) ([]byte, error) {
	obj := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == SignatureField {
			continue
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

// DecodePayload parses a raw JSON body into a map suitable for Canonicalize,
// preserving number formatting via json.Number.
func DecodePayload(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}
	return payload, nil
}

// Compute returns the hex HMAC-SHA256 of the canonicalized payload.
func Compute(payload map[string]any, key []byte) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over the payload and compares it to the
// supplied one in constant time. Any failure to compute rejects the payload.
func Verify(payload map[string]any, signature string, key []byte) bool {
	if signature == "" {
		return false
	}
	expected, err := Compute(payload, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
