package datalayer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
)

// HTTPClient talks to a remote datastore metadata service over HTTP.
//
// Endpoints:
//
//	GET  /v1/stores/{storeId}/root-history[?bust=true]
//	GET  /v1/stores/{storeId}/permissions/{publicKey}
//	POST /v1/stores/{storeId}/manifest
//	POST /v1/stores/{storeId}/creation-height
//
// Every call carries a short deadline; a missed deadline surfaces as
// ErrUnavailable so callers can fail the affected operation without
// destroying unrelated state.
type HTTPClient struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a metadata client against the given base URL.
// A zero timeout defaults to 5 seconds.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid datalayer endpoint %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		base:    u,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

type rootHistoryResponse struct {
	Roots []string `json:"roots"`
}

type permissionResponse struct {
	Allowed bool `json:"allowed"`
}

// RootHistory implements MetadataClient.
func (c *HTTPClient) RootHistory(ctx context.Context, storeID string, bustCache bool) ([]string, error) {
	path := fmt.Sprintf("/v1/stores/%s/root-history", storeID)
	if bustCache {
		path += "?bust=true"
	}
	var out rootHistoryResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Roots, nil
}

// HasWritePermission implements MetadataClient.
func (c *HTTPClient) HasWritePermission(ctx context.Context, storeID, publicKeyHex string) (bool, error) {
	path := fmt.Sprintf("/v1/stores/%s/permissions/%s", storeID, publicKeyHex)
	var out permissionResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// RegenerateManifest implements MetadataClient.
func (c *HTTPClient) RegenerateManifest(ctx context.Context, storeID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/stores/%s/manifest", storeID))
}

// CacheStoreCreationHeight implements MetadataClient.
func (c *HTTPClient) CacheStoreCreationHeight(ctx context.Context, storeID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/stores/%s/creation-height", storeID))
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("datalayer request failed", "path", path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d for %s", ErrUnavailable, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode datalayer response: %w", err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("datalayer request failed", "path", path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: unexpected status %d for %s", ErrUnavailable, resp.StatusCode, path)
	}
	return nil
}

func (c *HTTPClient) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	return c.base.ResolveReference(ref).String()
}
