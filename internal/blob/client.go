// Package blob talks to the remote object-storage bucket over its HTTP
// API: key-addressed PUT for uploads, plain GET for downloads, and a
// managed-domain lookup for constructing public URLs.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
)

const maxDownloadSize = 50 << 20 // 50 MB

// Snapshot is an immutable view of the store settings, resolved once
// per operation so a settings change mid-batch cannot tear a transfer.
type Snapshot struct {
	AccountID    string
	APIToken     string
	Bucket       string
	CustomDomain string // optional, no trailing slash
	APIBase      string // store management API root
}

// Complete reports whether the credential triple is present.
func (s Snapshot) Complete() bool {
	return s.AccountID != "" && s.APIToken != "" && s.Bucket != ""
}

// Client performs bucket operations for one settings snapshot.
// It does no retrying; retry is a user-driven action upstream.
type Client struct {
	cfg  Snapshot
	http *http.Client
}

// NewClient creates a client for the given snapshot.
func NewClient(cfg Snapshot) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiEnvelope is the structured response shape of the management API.
type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// errorMessage extracts a human-readable message from a structured
// response body, falling back to "HTTP <status>".
func errorMessage(status int, body []byte) string {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Errors) > 0 && env.Errors[0].Message != "" {
		return env.Errors[0].Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

// ResolveBase returns the effective public base URL: the configured
// custom domain when set, otherwise the bucket's managed domain.
func (c *Client) ResolveBase(ctx context.Context) (string, error) {
	if c.cfg.CustomDomain != "" {
		return c.cfg.CustomDomain, nil
	}
	if !c.cfg.Complete() {
		return "", apperr.ErrMissingConfig
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/r2/buckets/%s/domains/managed",
		c.cfg.APIBase, c.cfg.AccountID, c.cfg.Bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrNoPublicBase, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrNoPublicBase, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrNoPublicBase, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", apperr.ErrNoPublicBase, errorMessage(resp.StatusCode, body))
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil || !env.Success {
		return "", fmt.Errorf("%w: managed domain lookup failed", apperr.ErrNoPublicBase)
	}
	var result struct {
		Domain  string `json:"domain"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || result.Domain == "" || !result.Enabled {
		return "", fmt.Errorf("%w: managed domain not enabled", apperr.ErrNoPublicBase)
	}
	return "https://" + result.Domain, nil
}

// Upload PUTs data under key and returns the public URL. The URL is
// always <base>/<escaped key>; the response body's own key only
// confirms success and is never used for URL construction.
func (c *Client) Upload(ctx context.Context, base string, data []byte, key, mimeType string) (string, error) {
	if !c.cfg.Complete() {
		return "", apperr.ErrMissingConfig
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/r2/buckets/%s/objects/%s",
		c.cfg.APIBase, c.cfg.AccountID, c.cfg.Bucket, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("blob: upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob: upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("blob: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("blob: upload failed: %s", errorMessage(resp.StatusCode, body))
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("blob: malformed response body")
	}
	if !env.Success {
		return "", fmt.Errorf("blob: upload failed: %s", errorMessage(resp.StatusCode, body))
	}

	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(key), nil
}

// Download fetches the raw bytes at rawURL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob: download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("blob: read body: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("blob: download too large: exceeds %d bytes", maxDownloadSize)
	}
	return data, nil
}
