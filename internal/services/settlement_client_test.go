package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettlementClientRequestRelease(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"tx_hash":"0xabc"}`))
	}))
	defer srv.Close()

	client := NewSettlementClient(srv.URL, zap.NewNop())
	sessionID := uuid.New()

	err := client.RequestRelease(context.Background(), "pay-1", 500, sessionID, "key-1")
	require.NoError(t, err)

	assert.Equal(t, "/release", gotPath)
	assert.Equal(t, "pay-1", gotBody["payment_id"])
	assert.Equal(t, float64(500), gotBody["amount_cents"])
	assert.Equal(t, sessionID.String(), gotBody["session_id"])
	assert.Equal(t, "key-1", gotBody["idempotency_key"])
}

func TestSettlementClientNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"ok":false,"error":"payment not funded yet"}`))
	}))
	defer srv.Close()

	client := NewSettlementClient(srv.URL, zap.NewNop())
	err := client.RequestRelease(context.Background(), "pay-1", 500, uuid.New(), "key-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "payment not funded yet")
}
