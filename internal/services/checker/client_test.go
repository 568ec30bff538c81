package checker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelhub-io/modelhub/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.CheckerConfig{
		URL:            srv.URL,
		SharedSecret:   "secret",
		RequestTimeout: 5 * time.Second,
	})
}

func TestClient_CheckSynchronousResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refinement: A <= B", req.Query)
		assert.Equal(t, int64(3), req.ProjectVersion)
		assert.NotEmpty(t, req.CallbackToken)

		json.NewEncoder(w).Encode(Response{Result: json.RawMessage(`{"satisfied":true}`)})
	})

	result, err := client.Check(context.Background(), &Request{
		Query:          "refinement: A <= B",
		Document:       json.RawMessage(`{"components":[]}`),
		ProjectVersion: 3,
		CallbackURL:    "http://hub/internal/checker/results",
		CallbackToken:  "token",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"satisfied":true}`, string(result))
}

func TestClient_CheckAccepted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	result, err := client.Check(context.Background(), &Request{Query: "q"})
	require.NoError(t, err)
	assert.Nil(t, result, "accepted work arrives via the callback")
}

func TestClient_CheckFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error in query", http.StatusBadRequest)
	})

	_, err := client.Check(context.Background(), &Request{Query: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestNewClient_DisabledWithoutURL(t *testing.T) {
	assert.Nil(t, NewClient(config.CheckerConfig{}))
}
