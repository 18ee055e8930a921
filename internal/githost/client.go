// Package githost talks to the GitHub contents API to find and fetch
// component source files from candidate repositories.
package githost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultBaseURL = "https://api.github.com"

// ErrNotFound indicates the requested path does not exist in the repository.
var ErrNotFound = errors.New("githost: not found")

// Entry is a single item returned by the contents API.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file" or "dir"
	DownloadURL string `json:"download_url"`
}

// Client is a read-only GitHub contents API client. The token is optional;
// unauthenticated requests work at a lower rate limit.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cache   *lru.Cache[string, string]
}

// NewClient creates a client against api.github.com.
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom API host,
// used by tests to point at a mock server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	// Raw file contents are immutable per download URL for the duration
	// of a review run, so a small cache avoids re-fetching the config
	// file when it is also listed as a sibling.
	cache, _ := lru.New[string, string](256)
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("githost: %s returned status %d: %s", url, resp.StatusCode, string(body))
	}
	return body, nil
}

// GetFile fetches metadata for a single file path, or ErrNotFound.
func (c *Client) GetFile(ctx context.Context, owner, repo, path string) (*Entry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parse file metadata: %w", err)
	}
	if entry.Type != "" && entry.Type != "file" {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// ListDir fetches the entries of a directory, or ErrNotFound.
func (c *Client) ListDir(ctx context.Context, owner, repo, path string) ([]Entry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse directory listing: %w", err)
	}
	return entries, nil
}

// Download fetches the raw text of a file by its download URL.
func (c *Client) Download(ctx context.Context, url string) (string, error) {
	if content, ok := c.cache.Get(url); ok {
		return content, nil
	}

	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}

	content := string(body)
	c.cache.Add(url, content)
	return content, nil
}
