// Package rms talks to the request management service over HTTP/JSON.
package rms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

const (
	opSubmit = "submit"
	opStatus = "status"
)

// Client is the agent's view of the request management service.
type Client interface {
	// Submit creates a request and returns its id. A request whose name is
	// already known yields a *DuplicateError carrying the existing id.
	Submit(ctx context.Context, req *domain.Request) (string, error)
	// QueryStatus returns the raw remote status per request id. Unknown ids
	// are absent from the result.
	QueryStatus(ctx context.Context, requestIDs []string) (map[string]string, error)
}

// DuplicateError is returned by Submit when the service already holds a
// request with the same name.
type DuplicateError struct {
	Name      string
	RequestID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("request %s already exists as %s", e.Name, e.RequestID)
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

type statusRequest struct {
	RequestIDs []string `json:"request_ids"`
}

type statusResponse struct {
	Statuses map[string]string `json:"statuses"`
}

// HTTPClient implements Client against the service's REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates an HTTPClient. timeout bounds every call; the caller's
// context may shorten it further.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) Submit(ctx context.Context, req *domain.Request) (string, error) {
	ctx, span := telemetry.Tracer("rms").Start(ctx, "rms.submit")
	defer span.End()
	span.SetAttributes(attribute.String("request.name", req.Name), attribute.String("request.type", req.Type))

	status, body, err := c.post(ctx, opSubmit, "/api/v1/requests", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", err
	}

	var resp submitResponse
	// Non-JSON error bodies are tolerated; the status code decides.
	_ = json.Unmarshal(body, &resp)

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		if resp.RequestID == "" {
			return "", &domain.RemoteError{Op: opSubmit, Message: "response without request_id"}
		}
		return resp.RequestID, nil
	case status == http.StatusConflict && resp.RequestID != "":
		return "", &DuplicateError{Name: req.Name, RequestID: resp.RequestID}
	default:
		rerr := statusError(opSubmit, status, resp.Error, body)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Message)
		return "", rerr
	}
}

func (c *HTTPClient) QueryStatus(ctx context.Context, requestIDs []string) (map[string]string, error) {
	if len(requestIDs) == 0 {
		return map[string]string{}, nil
	}
	ctx, span := telemetry.Tracer("rms").Start(ctx, "rms.status")
	defer span.End()
	span.SetAttributes(attribute.Int("request.count", len(requestIDs)))

	status, body, err := c.post(ctx, opStatus, "/api/v1/requests/status", statusRequest{RequestIDs: requestIDs})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status query failed")
		return nil, err
	}
	if status != http.StatusOK {
		rerr := statusError(opStatus, status, "", body)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Message)
		return nil, rerr
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.RemoteError{Op: opStatus, Message: "malformed status response", Err: err}
	}
	if resp.Statuses == nil {
		resp.Statuses = map[string]string{}
	}
	return resp.Statuses, nil
}

// post sends a JSON body and returns the status code and raw response.
// Transport failures and timeouts come back as transient RemoteErrors.
func (c *HTTPClient) post(ctx context.Context, op, path string, payload any) (int, []byte, error) {
	start := time.Now()
	result := "error"
	defer func() {
		telemetry.RemoteCallDurationSeconds.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	}()

	bs, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bs))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		msg := "transport error"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			msg = "timeout"
		}
		return 0, nil, &domain.RemoteError{Op: op, Message: msg, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("rms response body close", slog.String("op", op), slog.String("error", err.Error()))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, &domain.RemoteError{Op: op, Message: "read response", Err: err}
	}

	result = http.StatusText(resp.StatusCode)
	c.logger.Debug("rms call",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return resp.StatusCode, raw, nil
}

// statusError maps a non-success HTTP status onto a RemoteError. 4xx is the
// service rejecting the request; everything else may succeed later.
func statusError(op string, status int, detail string, body []byte) *domain.RemoteError {
	msg := fmt.Sprintf("http %d", status)
	if detail == "" {
		detail = strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
	}
	if detail != "" {
		msg += ": " + detail
	}
	permanent := status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
	return &domain.RemoteError{Op: op, Message: msg, Permanent: permanent}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
