package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySendsWireShapeAndToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/access_verification", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"allowed_access":[{"status":"private","farm_id":[7]},{"status":"public"}],"is_admin":false,"user_id":42}`))
	}))
	defer server.Close()

	verifier := NewVerifier(server.URL)
	decision, err := verifier.Verify(context.Background(), "token-123", "GET", "equipment", 7)
	require.NoError(t, err)

	require.Equal(t, "Bearer token-123", gotAuth)
	require.Equal(t, "GET", gotBody["method"])
	resource := gotBody["resource"].(map[string]any)
	require.Equal(t, "equipment", resource["name"])
	meta := resource["meta"].(map[string]any)
	require.Equal(t, float64(7), meta["farm_id"])

	require.True(t, decision.Valid)
	require.Equal(t, int64(42), decision.UserID)
	require.Len(t, decision.Allowed, 2)
	require.Equal(t, []int64{7}, decision.Allowed[0].FarmIDs)
}

func TestVerifyPropagatesNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	verifier := NewVerifier(server.URL)
	_, err := verifier.Verify(context.Background(), "token-123", "GET", "tractor", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, NewVerifier(server.URL).Ping(context.Background()))
	require.Error(t, NewVerifier("http://127.0.0.1:0").Ping(context.Background()))
}
