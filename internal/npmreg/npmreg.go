// Package npmreg fetches package metadata from the npm registry, used to
// prefill submission records from a published package name.
package npmreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRegistryURL = "https://registry.npmjs.org"

// ErrPackageNotFound indicates the package name is not published.
var ErrPackageNotFound = errors.New("npmreg: package not found")

// Metadata is the subset of registry data the directory cares about.
type Metadata struct {
	Name          string
	LatestVersion string
	Description   string
	RepoURL       string
}

// Client is a read-only npm registry client.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client against registry.npmjs.org.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultRegistryURL)
}

// NewClientWithBaseURL creates a client against a custom registry,
// used by tests.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type registryDoc struct {
	Name     string `json:"name"`
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
	Description string `json:"description"`
	Repository  struct {
		URL string `json:"url"`
	} `json:"repository"`
}

// Lookup fetches metadata for a published package name.
func (c *Client) Lookup(ctx context.Context, name string) (*Metadata, error) {
	// Scoped names (@scope/name) must keep the slash escaped.
	endpoint := c.baseURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
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
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("npmreg: registry returned status %d", resp.StatusCode)
	}

	var doc registryDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse registry response: %w", err)
	}

	return &Metadata{
		Name:          doc.Name,
		LatestVersion: doc.DistTags.Latest,
		Description:   doc.Description,
		RepoURL:       normalizeRepoURL(doc.Repository.URL),
	}, nil
}

// normalizeRepoURL converts registry repository URLs (git+https://...,
// git://..., trailing .git) to a plain https URL.
func normalizeRepoURL(raw string) string {
	s := strings.TrimPrefix(raw, "git+")
	s = strings.TrimSuffix(s, ".git")
	if strings.HasPrefix(s, "git://") {
		s = "https://" + strings.TrimPrefix(s, "git://")
	}
	return s
}
