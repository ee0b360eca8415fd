// Package secrets is a thin HTTP client for a HashiCorp Vault KV v2 mount,
// used to store per-organization upstream provider credentials separately
// from the control-plane database.
package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	defaultAddr  = "http://vault:8200"
	defaultToken = "bonito-dev-token"
	defaultMount = "secret"
)

// Client talks to a Vault KV v2 mount and caches reads in memory. Writes
// invalidate the corresponding cache entry; a failed read falls back to
// whatever is cached, so a transient Vault outage degrades to stale data
// instead of hard failure.
type Client struct {
	addr  string
	token string
	mount string

	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (timeouts, transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client from explicit settings.
func New(addr, token, mount string, opts ...Option) *Client {
	c := &Client{
		addr:       addr,
		token:      token,
		mount:      mount,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromEnv builds a Client from VAULT_ADDR, VAULT_TOKEN, VAULT_MOUNT,
// falling back to the same defaults as the control plane.
func NewFromEnv(opts ...Option) *Client {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		token = defaultToken
	}
	mount := os.Getenv("VAULT_MOUNT")
	if mount == "" {
		mount = defaultMount
	}
	return New(addr, token, mount, opts...)
}

type kvV2Response struct {
	Data struct {
		Data map[string]string `json:"data"`
	} `json:"data"`
}

// GetSecrets returns every key/value pair stored at path. A path with no
// data yet returns an empty map, not an error. On request failure, the
// last cached copy for path is returned if one exists.
func (c *Client) GetSecrets(ctx context.Context, path string) (map[string]string, error) {
	data, err := c.fetch(ctx, path)
	if err != nil {
		c.mu.RLock()
		cached, ok := c.cache[path]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[path] = data
	c.mu.Unlock()
	return data, nil
}

func (c *Client) fetch(ctx context.Context, path string) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", c.addr, c.mount, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed kvV2Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding vault response: %w", err)
	}
	return parsed.Data.Data, nil
}

// GetSecret returns a single key at path, or def if the key is absent.
func (c *Client) GetSecret(ctx context.Context, path, key, def string) (string, error) {
	data, err := c.GetSecrets(ctx, path)
	if err != nil {
		return "", err
	}
	if v, ok := data[key]; ok {
		return v, nil
	}
	return def, nil
}

type kvV2Request struct {
	Data map[string]string `json:"data"`
}

// PutSecrets writes data to path, replacing any existing version, and
// invalidates the cache entry for path.
func (c *Client) PutSecrets(ctx context.Context, path string, data map[string]string) error {
	url := fmt.Sprintf("%s/v1/%s/data/%s", c.addr, c.mount, path)
	body, err := json.Marshal(kvV2Request{Data: data})
	if err != nil {
		return fmt.Errorf("marshalling vault payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault returned %d: %s", resp.StatusCode, string(respBody))
	}

	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
	return nil
}

// ClearCache drops every cached path, forcing the next read to hit Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]string)
	c.mu.Unlock()
}

// HealthCheck reports whether Vault itself is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/sys/health", c.addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building vault request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
