// Package token obtains the short-lived recognition credential from the
// collaborator endpoint (GET <url> -> {"key": "..."} or {"error": "..."}).
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoKey indicates the credential endpoint answered without a usable key.
var ErrNoKey = errors.New("credential endpoint returned no key")

type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch requests one credential. Any failure here is fatal to session
// start: unreachable endpoint, non-2xx status, error body, or missing key.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build credential request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch credential: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("credential endpoint returned %s", resp.Status)
	}

	var payload struct {
		Key   string `json:"key"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode credential response: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("credential endpoint error: %s", payload.Error)
	}
	if payload.Key == "" {
		return "", ErrNoKey
	}
	return payload.Key, nil
}

// Static serves a pre-configured key, for deployments where the daemon
// itself holds the recognition credential.
type Static string

func (s Static) Fetch(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoKey
	}
	return string(s), nil
}

// Handler is the trivial proxy route a UI process calls to obtain the
// recognition credential.
func Handler(key string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if key == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "recognition credential not configured"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"key": key})
	})
}
