// Package registry provides a client for the remote panel registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Panel is a registry entry as exposed by the HTTP API.
type Panel struct {
	ID   int    `json:"id"`
	Name string `json:"nombre"`
}

// Client defines the panel registry operations. List feeds the
// directory cache; the mutating calls back the maintenance commands.
type Client interface {
	List(ctx context.Context) ([]Panel, error)
	Create(ctx context.Context, name string) (*Panel, error)
	Update(ctx context.Context, id int, name string) error
	Delete(ctx context.Context, id int) error
}

// Option configures the registry client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates a registry client for the given base URL. The secret
// is passed as a query parameter on every request, matching the API.
func NewClient(baseURL, secret string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	OK      bool    `json:"ok"`
	Paneles []Panel `json:"paneles"`
}

func (c *httpClient) List(ctx context.Context) ([]Panel, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/paneles/", nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, eris.New("registry: list rejected by server")
	}
	return out.Paneles, nil
}

type mutateResponse struct {
	OK    bool   `json:"ok"`
	Panel *Panel `json:"panel,omitempty"`
	Error string `json:"error,omitempty"`
}

func (c *httpClient) Create(ctx context.Context, name string) (*Panel, error) {
	body := map[string]string{"nombre": name}
	var out mutateResponse
	if err := c.do(ctx, http.MethodPost, "/paneles", body, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, eris.Errorf("registry: create rejected: %s", out.Error)
	}
	return out.Panel, nil
}

func (c *httpClient) Update(ctx context.Context, id int, name string) error {
	body := map[string]string{"nombre": name}
	var out mutateResponse
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/paneles/%d", id), body, &out); err != nil {
		return err
	}
	if !out.OK {
		return eris.Errorf("registry: update rejected: %s", out.Error)
	}
	return nil
}

func (c *httpClient) Delete(ctx context.Context, id int) error {
	var out mutateResponse
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/paneles/%d", id), nil, &out); err != nil {
		return err
	}
	if !out.OK {
		return eris.Errorf("registry: delete rejected: %s", out.Error)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return eris.Wrap(err, "registry: build url")
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "registry: marshal body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return eris.Wrap(err, "registry: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "registry: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("registry: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "registry: decode response")
	}
	return nil
}
