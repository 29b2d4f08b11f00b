// Package token fetches ephemeral realtime credentials from the session proxy.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source yields a credential for one connection attempt.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

var (
	ErrStatus       = errors.New("token endpoint returned non-2xx status")
	ErrMalformed    = errors.New("token endpoint returned malformed body")
	ErrMissingValue = errors.New("token endpoint returned no credential")
)

// maxBodyBytes caps how much of the response body is read.
const maxBodyBytes = 64 << 10

// Client fetches credentials with GET <URL>, expecting {"value": "..."}.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type response struct {
	Value string `json:"value"`
}

// Fetch retrieves a credential. Any non-2xx status, undecodable body, or
// empty value is an error; an invalid credential is never returned.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, snippet(body))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(r.Value) == "" {
		return "", ErrMissingValue
	}
	return r.Value, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Static always returns the same credential. Used with the mock transport.
type Static string

func (s Static) Fetch(context.Context) (string, error) {
	if s == "" {
		return "", ErrMissingValue
	}
	return string(s), nil
}
