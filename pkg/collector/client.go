package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/auth"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
)

const (
	defaultTimeout              = 30 * time.Second
	responseBodyReadLimit int64 = 4096

	IdempotencyKeyHeader = "Idempotency-Key"
)

// Request is one delivery of a submission to the remote collector.
type Request struct {
	LocalID  string
	Method   enums.HTTPMethod
	Endpoint string
	Payload  json.RawMessage
}

// Response is what the collector answered with on success.
type Response struct {
	StatusCode int
	Body       []byte
}

// Deliverer sends submissions to the remote collector.
type Deliverer interface {
	Deliver(ctx context.Context, req Request) (*Response, error)
}

// Client delivers JSON submissions over HTTP. Any 2xx is success.
type Client struct {
	httpClient *http.Client
	cfg        config.CollectorConfig
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used to stamp delivery tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(cfg config.CollectorConfig, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Deliver sends the payload with localId embedded. Transport failures come
// back as NETWORK_ERROR, non-2xx answers as SERVER_REJECTED.
func (c *Client) Deliver(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "collector client not configured")
	}
	method := req.Method
	if method == "" {
		method = enums.HTTPMethodPost
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "method must be POST or PUT")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "endpoint is required")
	}

	body, err := WithLocalID(req.Payload, req.LocalID)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(method), req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build delivery request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(IdempotencyKeyHeader, req.LocalID)

	if c.cfg.Secret != "" {
		token, err := auth.MintDeliveryToken(c.cfg, c.now(), auth.DeliveryTokenPayload{
			LocalID:  req.LocalID,
			Method:   method,
			Endpoint: req.Endpoint,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint delivery token")
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "deliver to collector")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Rejected(resp.StatusCode, respBody)
	}
	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// Rejected builds the SERVER_REJECTED error for a non-2xx answer.
func Rejected(status int, body []byte) error {
	return pkgerrors.New(pkgerrors.CodeServerRejected, fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))).
		WithDetails(map[string]any{
			"status": status,
			"body":   strings.TrimSpace(string(body)),
		})
}

// WithLocalID returns payload with its localId member set to localID. Any
// localId the payload already carried is replaced.
func WithLocalID(payload json.RawMessage, localID string) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload must be a JSON object")
		}
	}
	if localID == "" {
		return json.Marshal(fields)
	}
	encoded, err := json.Marshal(localID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode local id")
	}
	fields["localId"] = encoded
	return json.Marshal(fields)
}

// ConnectionReport is the outcome of a test ping against the webhook.
type ConnectionReport struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
}

// TestConnection posts a small test document to url and reports what came back.
func (c *Client) TestConnection(ctx context.Context, url string) ConnectionReport {
	if strings.TrimSpace(url) == "" {
		return ConnectionReport{Message: "webhook url is not configured"}
	}
	body, _ := json.Marshal(map[string]any{
		"test":      true,
		"timestamp": c.now().UTC().Format(time.RFC3339),
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ConnectionReport{Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ConnectionReport{Message: fmt.Sprintf("connection error: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	report := ConnectionReport{
		OK:         resp.StatusCode >= 200 && resp.StatusCode <= 299,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text))),
	}
	if report.OK {
		report.Message = "connection ok"
	}
	return report
}
