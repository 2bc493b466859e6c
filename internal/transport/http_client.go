package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"dynq/internal/config"
	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/telemetry"
)

const (
	batchPath        = "/batch"
	maxErrorBody     = 4 << 10
	defaultBaseDelay = time.Second
)

// HTTPDoer describes the HTTP client used by HTTPClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type batchRequest struct {
	Operations []queue.Operation `json:"operations"`
}

type batchResponse struct {
	Results []queue.OperationResult `json:"results"`
}

// HTTPClient executes batches against one environment over JSON/HTTP.
type HTTPClient struct {
	env       config.Environment
	client    HTTPDoer
	logger    *slog.Logger
	baseDelay time.Duration
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithDoer replaces the underlying HTTP client.
func WithDoer(doer HTTPDoer) HTTPOption {
	return func(c *HTTPClient) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithBaseDelay sets the retry backoff base.
func WithBaseDelay(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.baseDelay = d
	}
}

// NewHTTPClient builds a client for env.
func NewHTTPClient(env config.Environment, logger *slog.Logger, opts ...HTTPOption) *HTTPClient {
	timeout := time.Duration(env.TimeoutSeconds) * time.Second
	c := &HTTPClient{
		env:       env,
		client:    &http.Client{Timeout: timeout},
		logger:    logging.NewComponentLogger(logger, "transport").With(logging.Environment(env.Name)),
		baseDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute posts ops and returns the per-operation results. Connection errors
// and 5xx responses are retried up to the environment's max_attempts; any
// response that carries results ends the call.
func (c *HTTPClient) Execute(ctx context.Context, ops []queue.Operation) ([]queue.OperationResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transport.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("dynq.environment", c.env.Name),
		attribute.Int("dynq.operations", len(ops)),
	)

	body, err := json.Marshal(batchRequest{Operations: ops})
	if err != nil {
		return nil, Wrap(ErrProtocol, c.env.Name, "encode batch", "", err)
	}

	var results []queue.OperationResult
	err = retryDo(ctx, retryConfig{
		MaxAttempts: c.env.MaxAttempts,
		BaseDelay:   c.baseDelay,
		Retryable:   IsRetryable,
		OnRetry: func(attempt int, err error) {
			telemetry.TransportRetries.WithLabelValues(c.env.Name).Inc()
			c.logger.Info("retrying batch request",
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", c.env.MaxAttempts),
				logging.Error(err),
			)
		},
	}, func() error {
		var sendErr error
		results, sendErr = c.send(ctx, body)
		return sendErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("dynq.results", len(results)))
	return results, nil
}

func (c *HTTPClient) send(ctx context.Context, body []byte) ([]queue.OperationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.env.URL+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, Wrap(ErrConfiguration, c.env.Name, "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(c.env.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, ok := logging.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", requestID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Wrap(ErrRejected, c.env.Name, "send batch", "cancelled", err)
		}
		return nil, Wrap(ErrTransient, c.env.Name, "send batch", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, Wrap(ErrTransient, c.env.Name, "send batch", statusDetail(resp), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, Wrap(ErrRejected, c.env.Name, "send batch", statusDetail(resp), nil)
	}

	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, Wrap(ErrProtocol, c.env.Name, "decode response", "", err)
	}
	return decoded.Results, nil
}

func statusDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, text)
}
