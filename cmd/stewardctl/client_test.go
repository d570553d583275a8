package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardio/steward/internal/api"
	"github.com/stewardio/steward/internal/types"
)

func testClient(t *testing.T, handler http.Handler) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &apiClient{
		baseURL:    srv.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestAPIClient_Get(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/claims", r.URL.Path)
		assert.Equal(t, "prod-a", r.URL.Query().Get("namespace"))
		json.NewEncoder(w).Encode(api.ClaimsResponse{
			Claims: []api.ClaimSummary{{ID: "prod-a/db", Namespace: "prod-a", Name: "db"}},
		})
	}))

	query := url.Values{}
	query.Set("namespace", "prod-a")

	var resp api.ClaimsResponse
	err := client.get(context.Background(), "/api/v1/claims", query, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Claims, 1)
	assert.Equal(t, "prod-a/db", resp.Claims[0].ID)
}

func TestAPIClient_Post(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body api.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Requester)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(types.ApprovalRequest{
			ID:        "req-1",
			Requester: body.Requester,
			State:     types.StateSubmitted,
		})
	}))

	var req types.ApprovalRequest
	err := client.post(context.Background(), "/api/v1/requests", api.SubmitRequest{
		Requester:     "alice",
		Description:   "kafka",
		EstimatedCost: 42,
	}, &req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, types.StateSubmitted, req.State)
}

func TestAPIClient_ErrorBody(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid state transition"})
	}))

	err := client.get(context.Background(), "/api/v1/requests/x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "invalid state transition")
}

func TestAPIClient_ErrorWithoutBody(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.get(context.Background(), "/api/v1/claims", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
