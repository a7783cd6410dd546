package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/loadgate/internal/config"
	"github.com/torosent/loadgate/internal/tracing"
)

// UserAgent is sent with every request.
const UserAgent = "loadgate/1"

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestBuilder builds the GET request sent for every slot of a run.
type RequestBuilder struct {
	target    string
	headers   http.Header
	propagate bool
}

func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}

	headers := http.Header{}
	headers.Set("User-Agent", UserAgent)

	return &RequestBuilder{
		target:    u.String(),
		headers:   headers,
		propagate: cfg.Tracing.ShouldPropagate(),
	}, nil
}

// Target returns the URL every request is sent to.
func (b *RequestBuilder) Target() string {
	if b == nil {
		return ""
	}
	return b.target
}

// Build returns a GET request bound to ctx. When propagation is enabled the
// W3C trace context carried by ctx is injected into the request headers.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target, nil)
	if err != nil {
		return nil, err
	}

	req.Header = b.headers.Clone()
	if b.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	return req, nil
}

// NewClient returns a client tuned for load generation. The idle pool per host
// grows with concurrency so connections are reused across the whole run.
func NewClient(timeout time.Duration, concurrency int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	idlePerHost := 32
	if concurrency > idlePerHost {
		idlePerHost = concurrency
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if idlePerHost > transport.MaxIdleConns {
		transport.MaxIdleConns = idlePerHost
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
