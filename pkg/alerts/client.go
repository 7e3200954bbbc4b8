// Package alerts provides a fire-and-forget client for the remote
// alert/report endpoint.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Alert is the payload posted to the alert endpoint. Field names follow
// the server's wire contract.
type Alert struct {
	ID        string    `json:"id"`
	Name      string    `json:"nombre"`
	Numbers   []string  `json:"numero"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"tipo"`
}

// Alert types understood by the server.
const (
	TypeAccountLocked = "account_locked"
)

// Client posts alerts. Implementations must never retry: a failed send
// is dropped and logged by the caller.
type Client interface {
	Send(ctx context.Context, alert Alert) error
}

// Option configures the alert client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the outbound rate limiter.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

type httpClient struct {
	endpoint string
	secret   string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an alert client posting to endpoint. Sends are rate
// limited so a wave of locked-account detections cannot flood the server.
func NewClient(endpoint, secret string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		secret:   secret,
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(1, 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, alert Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "alerts: rate limit wait")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "alerts: marshal")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return eris.Wrap(err, "alerts: parse endpoint")
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "alerts: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "alerts: post")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("alerts: server returned status %d", resp.StatusCode)
	}
	return nil
}
