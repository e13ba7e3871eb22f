package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchSource(t *testing.T) {
	const contractText = "pragma solidity ^0.8.0;\ncontract Vault {}"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		// the stored path travels in the service's "slug" field
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contracts/erc20-vault.sol", req["slug"])

		json.NewEncoder(w).Encode(map[string]string{"contract": contractText})
	}))
	defer server.Close()

	client, err := NewSourceClient(server.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	source, err := client.FetchSource(context.Background(), "contracts/erc20-vault.sol")
	require.NoError(t, err)
	assert.Equal(t, contractText, source)
}

func TestFetchSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			path:    "erc20-vault",
			wantErr: "status 500",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			path:    "erc20-vault",
			wantErr: "failed to decode source response",
		},
		{
			name: "empty contract",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"contract": ""})
			},
			path:    "erc20-vault",
			wantErr: "empty contract",
		},
		{
			name:    "empty path",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			path:    "",
			wantErr: "source path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewSourceClient(server.URL, 5*time.Second, zap.NewNop())
			require.NoError(t, err)

			_, err = client.FetchSource(context.Background(), tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSourceClient_EmptyEndpoint(t *testing.T) {
	_, err := NewSourceClient("", time.Second, zap.NewNop())
	require.Error(t, err)
}
