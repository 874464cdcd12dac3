package graphql_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/graphql"
)

func gatewayConfig(url string) *config.GatewayConfig {
	return &config.GatewayConfig{
		URL:                     url,
		Environment:             "SANDBOX",
		RequestTimeout:          2 * time.Second,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
	}
}

func TestClient_Execute_PostsOperationAndReturnsData(t *testing.T) {
	var gotOp string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OperationName string         `json:"operationName"`
			Query         string         `json:"query"`
			Variables     map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotOp = req.OperationName
		assert.Contains(t, req.Query, "node(id: $id)")
		assert.Equal(t, "pc_123", req.Variables["id"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"node": map[string]any{"status": "SCANNED"}},
		})
	}))
	defer ts.Close()

	c := graphql.NewClient(gatewayConfig(ts.URL))
	data, err := c.Execute(context.Background(), "PaymentContext",
		"query PaymentContext($id: ID!) { node(id: $id) { status } }",
		map[string]any{"id": "pc_123"})
	require.NoError(t, err)
	assert.Equal(t, "PaymentContext", gotOp)
	assert.JSONEq(t, `{"node":{"status":"SCANNED"}}`, string(data))
}

func TestClient_Execute_SurfacesGraphQLErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"message": "payment context not found"}},
		})
	}))
	defer ts.Close()

	c := graphql.NewClient(gatewayConfig(ts.URL))
	_, err := c.Execute(context.Background(), "PaymentContext", "query { node }", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PaymentContext")
	assert.Contains(t, err.Error(), "payment context not found")
}

func TestClient_Execute_SurfacesHTTPStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := graphql.NewClient(gatewayConfig(ts.URL))
	_, err := c.Execute(context.Background(), "CreateVenmoPaymentContext", "mutation { x }", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestClient_Execute_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := graphql.NewClient(gatewayConfig(ts.URL))

	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), "PaymentContext", "query { node }", nil)
		require.Error(t, err)
	}
	require.Equal(t, int32(2), hits.Load())

	// Breaker is open now; the gateway must not see further requests.
	_, err := c.Execute(context.Background(), "PaymentContext", "query { node }", nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}
