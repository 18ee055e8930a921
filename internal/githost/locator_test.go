package githost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHost simulates the GitHub contents API with an in-memory file tree.
type mockHost struct {
	files map[string]string // path -> content
	dirs  map[string][]Entry
	calls map[string]int // request path -> count

	server *httptest.Server
}

func newMockHost(t *testing.T) *mockHost {
	t.Helper()
	m := &mockHost{
		files: make(map[string]string),
		dirs:  make(map[string][]Entry),
		calls: make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockHost) addFile(path, content string) {
	m.files[path] = content
}

func (m *mockHost) addDir(path string, entries ...Entry) {
	for i := range entries {
		entries[i].DownloadURL = m.server.URL + "/raw/" + entries[i].Path
	}
	m.dirs[path] = entries
}

func (m *mockHost) handle(w http.ResponseWriter, r *http.Request) {
	m.calls[r.URL.Path]++

	if strings.HasPrefix(r.URL.Path, "/raw/") {
		path := strings.TrimPrefix(r.URL.Path, "/raw/")
		content, ok := m.files[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
		return
	}

	const prefix = "/repos/acme/widget/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	if entries, ok := m.dirs[path]; ok {
		_ = json.NewEncoder(w).Encode(entries)
		return
	}
	if _, ok := m.files[path]; ok {
		_ = json.NewEncoder(w).Encode(Entry{
			Name:        path[strings.LastIndex(path, "/")+1:],
			Path:        path,
			Type:        "file",
			DownloadURL: m.server.URL + "/raw/" + path,
		})
		return
	}
	http.NotFound(w, r)
}

func (m *mockHost) locator(t *testing.T) *Locator {
	t.Helper()
	return NewLocator(NewClientWithBaseURL("", m.server.URL))
}

const repoURL = "https://github.com/acme/widget"

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"https", "https://github.com/acme/widget", "acme", "widget", true},
		{"no scheme", "github.com/acme/widget", "acme", "widget", true},
		{"git suffix", "https://github.com/acme/widget.git", "acme", "widget", true},
		{"trailing slash", "https://github.com/acme/widget/", "acme", "widget", true},
		{"missing repo", "https://github.com/acme", "", "", false},
		{"extra segments", "https://github.com/acme/widget/tree/main", "", "", false},
		{"empty", "", "", "", false},
		{"garbage", "not a url at all", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestSiblingDirs(t *testing.T) {
	tests := []struct {
		configPath string
		want       []string
	}{
		{"convex/src/component/convex.config.ts", []string{"convex/src/component"}},
		{"convex/component/convex.config.ts", []string{"convex/component"}},
		{"convex/convex.config.ts", []string{"convex/src/component", "convex/component", "convex"}},
		{"src/component/convex.config.ts", []string{"src/component"}},
		{"src/convex.config.ts", []string{"src/component", "src"}},
		{"packages/component/convex.config.ts", []string{"packages/component"}},
		{"lib/convex.config.ts", []string{"lib"}},
		{"convex.config.ts", []string{"component", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.configPath, func(t *testing.T) {
			assert.Equal(t, tt.want, siblingDirs(tt.configPath))
		})
	}
}

func TestLocate_PathPriority(t *testing.T) {
	m := newMockHost(t)
	// Definition file planted at two candidate paths; the one earlier in
	// the probe order must win.
	m.addFile("convex/convex.config.ts", "export default nested")
	m.addFile("convex.config.ts", "export default root")

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err)
	require.True(t, result.Found)
	require.NotEmpty(t, result.Files)
	assert.Equal(t, "convex/convex.config.ts", result.Files[0].Path)
	assert.Equal(t, "export default nested", result.Files[0].Content)
}

func TestLocate_NotAComponent(t *testing.T) {
	m := newMockHost(t)

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err, "absence of the definition file is a normal outcome")
	assert.False(t, result.Found)
	assert.Empty(t, result.Files)

	// Every candidate path must have been probed.
	for _, p := range CandidatePaths {
		assert.Equal(t, 1, m.calls["/repos/acme/widget/contents/"+p], "probe for %s", p)
	}
}

func TestLocate_InvalidURL(t *testing.T) {
	m := newMockHost(t)

	_, err := m.locator(t).Locate(context.Background(), "https://github.com/just-an-owner")
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Empty(t, m.calls, "no network calls before URL validation")
}

func TestLocate_CollectsSiblings(t *testing.T) {
	m := newMockHost(t)
	m.addFile("convex/convex.config.ts", "config")
	m.addFile("convex/lib.ts", "lib source")
	m.addFile("convex/client.ts", "client source")
	m.addDir("convex/src/component") // exists but empty
	m.addDir("convex",
		Entry{Name: "convex.config.ts", Path: "convex/convex.config.ts", Type: "file"},
		Entry{Name: "lib.ts", Path: "convex/lib.ts", Type: "file"},
		Entry{Name: "client.ts", Path: "convex/client.ts", Type: "file"},
		Entry{Name: "README.md", Path: "convex/README.md", Type: "file"},
		Entry{Name: "_generated", Path: "convex/_generated", Type: "dir"},
	)

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err)
	require.True(t, result.Found)

	// Definition file first, then the two matching siblings. README and
	// the subdirectory are filtered out; the config file is not repeated.
	paths := make([]string, len(result.Files))
	for i, f := range result.Files {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{"convex/convex.config.ts", "convex/lib.ts", "convex/client.ts"}, paths)
	assert.Equal(t, "lib source", result.Files[1].Content)
}

func TestLocate_DirectoryShortCircuit(t *testing.T) {
	m := newMockHost(t)
	m.addFile("convex/convex.config.ts", "config")
	m.addFile("convex/src/component/impl.ts", "impl")
	m.addDir("convex/src/component",
		Entry{Name: "impl.ts", Path: "convex/src/component/impl.ts", Type: "file"},
	)
	m.addDir("convex/component",
		Entry{Name: "other.ts", Path: "convex/component/other.ts", Type: "file"},
	)

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err)
	require.True(t, result.Found)

	// First candidate directory yielded files, so the second must never
	// have been queried.
	assert.Equal(t, 1, m.calls["/repos/acme/widget/contents/convex/src/component"])
	assert.Zero(t, m.calls["/repos/acme/widget/contents/convex/component"])

	require.Len(t, result.Files, 2)
	assert.Equal(t, "convex/src/component/impl.ts", result.Files[1].Path)
}

func TestLocate_FallsThroughEmptyDirectories(t *testing.T) {
	m := newMockHost(t)
	m.addFile("convex/convex.config.ts", "config")
	m.addFile("convex/fns.ts", "fns")
	// First candidate dir missing entirely, second yields only non-source
	// files, third has the goods.
	m.addDir("convex/component",
		Entry{Name: "notes.md", Path: "convex/component/notes.md", Type: "file"},
	)
	m.addDir("convex",
		Entry{Name: "convex.config.ts", Path: "convex/convex.config.ts", Type: "file"},
		Entry{Name: "fns.ts", Path: "convex/fns.ts", Type: "file"},
	)

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err)
	require.True(t, result.Found)

	assert.Equal(t, 1, m.calls["/repos/acme/widget/contents/convex/src/component"])
	assert.Equal(t, 1, m.calls["/repos/acme/widget/contents/convex/component"])

	require.Len(t, result.Files, 2)
	assert.Equal(t, "convex/fns.ts", result.Files[1].Path)
}

func TestLocate_RootLevelConfig(t *testing.T) {
	m := newMockHost(t)
	m.addFile("convex.config.ts", "root config")
	m.addFile("index.ts", "entry")
	m.addDir("",
		Entry{Name: "convex.config.ts", Path: "convex.config.ts", Type: "file"},
		Entry{Name: "index.ts", Path: "index.ts", Type: "file"},
		Entry{Name: "package.json", Path: "package.json", Type: "file"},
	)

	result, err := m.locator(t).Locate(context.Background(), repoURL)
	require.NoError(t, err)
	require.True(t, result.Found)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "convex.config.ts", result.Files[0].Path)
	assert.Equal(t, "index.ts", result.Files[1].Path)
}

func TestDownload_Cached(t *testing.T) {
	m := newMockHost(t)
	m.addFile("convex/convex.config.ts", "cached content")

	client := NewClientWithBaseURL("", m.server.URL)
	url := m.server.URL + "/raw/convex/convex.config.ts"

	first, err := client.Download(context.Background(), url)
	require.NoError(t, err)
	second, err := client.Download(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.calls["/raw/convex/convex.config.ts"], "second read served from cache")
}
