package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

// maxResponseBytes caps how much of a tenant API response is read.
const maxResponseBytes = 1 << 20

// Response is a successful tenant API reply.
type Response struct {
	StatusCode int
	// Body is the decoded JSON object, or {"raw": "..."} when the body is not
	// a JSON object.
	Body map[string]any
}

// StatusError is returned for a non-2xx tenant API reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tenant API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Caller sends a payload to a tenant's API.
type Caller interface {
	Call(ctx context.Context, tenantID string, cfg tenant.DispatchConfig, payload Payload) (Response, error)
}

// HTTPCaller calls tenant APIs over HTTP. Tenants with an OAuth config get a
// cached client-credentials token source.
type HTTPCaller struct {
	httpClient *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewHTTPCaller creates an HTTPCaller. A zero timeout means 30 seconds.
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		httpClient: &http.Client{Timeout: timeout},
		sources:    make(map[string]oauth2.TokenSource),
	}
}

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, tenantID string, cfg tenant.DispatchConfig, payload Payload) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.HTTPMethod(), cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range Headers(cfg) {
		req.Header.Set(k, v)
	}
	if cfg.OAuth != nil {
		tok, err := c.tokenSource(tenantID, cfg.OAuth).Token()
		if err != nil {
			return Response{}, fmt.Errorf("fetching oauth token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("calling tenant API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(bytes.TrimSpace(raw)), 500)}
	}

	return Response{StatusCode: resp.StatusCode, Body: decodeBody(raw)}, nil
}

func (c *HTTPCaller) tokenSource(tenantID string, o *tenant.OAuthConfig) oauth2.TokenSource {
	key := tenantID + "|" + o.TokenURL + "|" + o.ClientID
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.sources[key]; ok {
		return ts
	}
	cc := clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	ts := cc.TokenSource(ctx)
	c.sources[key] = ts
	return ts
}

// Headers builds the request headers for a tenant: JSON content negotiation,
// a bearer token when an API key is set, then the tenant's own headers,
// which win on collision.
func Headers(cfg tenant.DispatchConfig) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + cfg.APIKey
	}
	for k, v := range cfg.Headers {
		h[http.CanonicalHeaderKey(k)] = v
	}
	return h
}

func decodeBody(raw []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"raw": truncate(string(raw), 2000)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
