package githost

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidURL indicates the repository URL does not look like
// host/owner/repo.
var ErrInvalidURL = errors.New("githost: invalid repository URL")

// ConfigFileName is the component definition file every valid component
// repository must contain somewhere in the candidate paths.
const ConfigFileName = "convex.config.ts"

// CandidatePaths is the fixed probe order for the component definition
// file. Deepest nested conventions first, repo root last; the first path
// that resolves wins.
var CandidatePaths = []string{
	"convex/src/component/convex.config.ts",
	"convex/component/convex.config.ts",
	"convex/convex.config.ts",
	"src/component/convex.config.ts",
	"src/convex.config.ts",
	"convex.config.ts",
	"packages/component/convex.config.ts",
	"lib/convex.config.ts",
}

// sourceExtensions are the file types collected alongside the definition
// file for grading.
var sourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".mts"}

// RepositoryFile is one fetched source file, path relative to repo root.
type RepositoryFile struct {
	Path    string
	Content string
}

// LocateResult is the outcome of a locate run. Found=false with a nil
// error means the repository is not a component, which is a normal
// outcome rather than a failure.
type LocateResult struct {
	Found bool
	Files []RepositoryFile
}

// Locator performs the prioritized component-definition search against a
// hosted repository.
type Locator struct {
	client *Client
	paths  []string
}

// NewLocator creates a locator using the production candidate paths.
func NewLocator(client *Client) *Locator {
	return &Locator{client: client, paths: CandidatePaths}
}

// NewLocatorWithPaths creates a locator with a custom probe list,
// used by tests to shrink the search space.
func NewLocatorWithPaths(client *Client, paths []string) *Locator {
	return &Locator{client: client, paths: paths}
}

// ParseRepoURL extracts owner and repo from a repository URL. Accepts a
// scheme-less host/owner/repo form, an optional .git suffix, and a
// trailing slash.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	raw := strings.TrimSpace(repoURL)
	if raw == "" {
		return "", "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", ErrInvalidURL
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, repoURL)
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// siblingDirs maps the winning config path to the ordered list of
// directories searched for the component's function files. The table
// encodes the known component repository layouts; keep the most specific
// prefixes first.
func siblingDirs(configPath string) []string {
	switch {
	case strings.HasPrefix(configPath, "convex/src/component/"):
		return []string{"convex/src/component"}
	case strings.HasPrefix(configPath, "convex/component/"):
		return []string{"convex/component"}
	case strings.HasPrefix(configPath, "convex/"):
		return []string{"convex/src/component", "convex/component", "convex"}
	case strings.HasPrefix(configPath, "src/component/"):
		return []string{"src/component"}
	case strings.HasPrefix(configPath, "src/"):
		return []string{"src/component", "src"}
	case strings.HasPrefix(configPath, "packages/"):
		return []string{path.Dir(configPath)}
	case strings.HasPrefix(configPath, "lib/"):
		return []string{"lib"}
	default:
		return []string{"component", ""}
	}
}

func hasSourceExtension(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Locate parses the repository URL, probes the candidate paths for the
// component definition file, and collects sibling source files from the
// first directory that yields any.
//
// Individual probe failures (network errors, 404s) are treated as "not
// found at this path" and the search continues.
func (l *Locator) Locate(ctx context.Context, repoURL string) (*LocateResult, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var config *Entry
	for _, candidate := range l.paths {
		entry, err := l.client.GetFile(ctx, owner, repo, candidate)
		if err != nil {
			continue
		}
		config = entry
		break
	}
	if config == nil {
		return &LocateResult{Found: false}, nil
	}

	configContent, err := l.client.Download(ctx, config.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", config.Path, err)
	}

	files := []RepositoryFile{{Path: config.Path, Content: configContent}}

	// First candidate directory with at least one matching file wins;
	// later candidates are never queried.
	for _, dir := range siblingDirs(config.Path) {
		entries, err := l.client.ListDir(ctx, owner, repo, dir)
		if err != nil {
			continue
		}

		var siblings []Entry
		for _, e := range entries {
			if e.Type != "file" || e.Path == config.Path || !hasSourceExtension(e.Name) {
				continue
			}
			siblings = append(siblings, e)
		}
		if len(siblings) == 0 {
			continue
		}

		for _, s := range siblings {
			content, err := l.client.Download(ctx, s.DownloadURL)
			if err != nil {
				return nil, fmt.Errorf("download %s: %w", s.Path, err)
			}
			files = append(files, RepositoryFile{Path: s.Path, Content: content})
		}
		break
	}

	return &LocateResult{Found: true, Files: files}, nil
}
