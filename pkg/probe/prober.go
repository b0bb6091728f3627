package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 3 * time.Second

// Checker answers whether the collector can be reached right now.
type Checker interface {
	Probe(ctx context.Context) bool
}

// Prober pings a fixed liveness URL. Any answer within the timeout counts as
// reachable, whatever its status code; only transport errors and timeouts
// count as unreachable. A 5xx still proves the network path works.
type Prober struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures optional prober behavior.
type Option func(*Prober)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func NewProber(url string, timeout time.Duration, opts ...Option) *Prober {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := &Prober{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Probe never blocks longer than the configured timeout; the request is
// canceled at the deadline.
func (p *Prober) Probe(ctx context.Context) bool {
	if p == nil || p.url == "" {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	return true
}

// Timeout returns the per-probe budget.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}
