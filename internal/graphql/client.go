// Package graphql provides the request executor the SDK uses to talk to the
// payments gateway. The poller only sees the Executor interface; transport
// details stay here.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/observability"
)

// Executor runs one GraphQL operation and returns the raw data payload.
type Executor interface {
	Execute(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error)
}

type request struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client is the HTTP Executor. Calls go through a circuit breaker; a tripped
// breaker surfaces as an ordinary error and is never retried here.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	log     zerolog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics attaches gateway request counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient builds the gateway client from config.
func NewClient(cfg *config.GatewayConfig, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http: httpClient,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 10
	}
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:    "payments-gateway",
		Timeout: cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
		},
	})

	return c
}

// Execute posts one operation to the gateway.
func (c *Client) Execute(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "gateway."+operationName)
		defer span.End()
	}

	data, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.post(ctx, operationName, query, variables)
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(operationName, result).Inc()
	}
	return data, err
}

func (c *Client) post(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error) {
	var out response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{OperationName: operationName, Query: query, Variables: variables}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("gateway request %s: %w", operationName, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gateway request %s: unexpected status %d", operationName, resp.StatusCode())
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("gateway request %s: %s", operationName, out.Errors[0].Message)
	}
	return out.Data, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
