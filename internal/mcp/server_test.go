package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/crev/internal/githost"
	"github.com/get-convex/crev/internal/llm"
	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/review"
	"github.com/get-convex/crev/internal/rubric"
	"github.com/get-convex/crev/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeLocator struct {
	result *githost.LocateResult
	err    error
}

func (f *fakeLocator) Locate(_ context.Context, _ string) (*githost.LocateResult, error) {
	return f.result, f.err
}

type fakeCompleter struct {
	response string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ int) (string, error) {
	return f.response, nil
}

func (f *fakeCompleter) Name() string { return "fake" }

var testRubric = rubric.Rubric{
	{Name: "Component definition", CheckDescription: "has convex.config.ts", Critical: true},
	{Name: "Documentation", CheckDescription: "has a README", Critical: false},
}

const passingVerdict = `{
  "summary": "Solid component.",
  "criteria": [
    {"name": "Component definition", "passed": true, "notes": "defined"},
    {"name": "Documentation", "passed": true, "notes": "README present"}
  ],
  "suggestions": ""
}`

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	loc := &fakeLocator{result: &githost.LocateResult{
		Found: true,
		Files: []githost.RepositoryFile{
			{Path: "src/component/convex.config.ts", Content: "export default component;"},
		},
	}}
	cfg := review.Config{
		Rubric: testRubric,
		NewCompleter: func(_ *models.ProviderConfig) (llm.Completer, error) {
			return &fakeCompleter{response: passingVerdict}, nil
		},
	}
	runner := review.NewRunner(s, loc, cfg)

	srv := NewServer(s, runner)
	require.NotNil(t, srv)
	return srv, s
}

func seedPackage(t *testing.T, s store.Store) *models.Package {
	t.Helper()
	pkg := &models.Package{
		Name:       "@acme/widget",
		RepoURL:    "https://github.com/acme/widget",
		Status:     models.SubmissionStatusPending,
		Visibility: models.VisibilityPublic,
	}
	require.NoError(t, s.CreatePackage(context.Background(), pkg))
	return pkg
}

func seedProvider(t *testing.T, s store.Store) {
	t.Helper()
	require.NoError(t, s.SetActiveProvider(context.Background(), &models.ProviderConfig{
		Kind:   models.ProviderAnthropic,
		APIKey: "sk-test",
		Model:  "claude-sonnet-4-20250514",
		Active: true,
	}))
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), target))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_RegistersTools(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}

func TestHandleListPackages_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListPackages(context.Background(), callToolReq("crev_list_packages", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var packages []map[string]any
	resultJSON(t, result, &packages)
	assert.Empty(t, packages)
}

func TestHandleListPackages_Filtered(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)

	approved := &models.Package{Name: "other", Status: models.SubmissionStatusApproved, Visibility: models.VisibilityPublic}
	require.NoError(t, s.CreatePackage(context.Background(), approved))

	result, err := srv.handleListPackages(context.Background(), callToolReq("crev_list_packages", map[string]any{
		"status": "pending",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var packages []map[string]any
	resultJSON(t, result, &packages)
	require.Len(t, packages, 1)
	assert.Equal(t, "@acme/widget", packages[0]["name"])
}

func TestHandlePackageStatus_NotReviewed(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)

	result, err := srv.handlePackageStatus(context.Background(), callToolReq("crev_package_status", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	pkg := out["package"].(map[string]any)
	assert.Equal(t, "@acme/widget", pkg["name"])
	rev := out["review"].(map[string]any)
	assert.Equal(t, "not_reviewed", rev["status"])
}

func TestHandlePackageStatus_UnknownPackage(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handlePackageStatus(context.Background(), callToolReq("crev_package_status", map[string]any{
		"package": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandlePackageStatus_MissingArg(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handlePackageStatus(context.Background(), callToolReq("crev_package_status", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRunReview(t *testing.T) {
	srv, s := newTestServer(t)
	pkg := seedPackage(t, s)
	seedProvider(t, s)

	result, err := srv.handleRunReview(context.Background(), callToolReq("crev_run_review", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, pkg.ID, out["package_id"])
	assert.Equal(t, "passed", out["status"])
	criteria := out["criteria"].([]any)
	assert.Len(t, criteria, len(testRubric))
}

func TestHandleRunReview_ResolvesByID(t *testing.T) {
	srv, s := newTestServer(t)
	pkg := seedPackage(t, s)
	seedProvider(t, s)

	result, err := srv.handleRunReview(context.Background(), callToolReq("crev_run_review", map[string]any{
		"package": pkg.ID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))
}

func TestHandleRunReview_NoRunner(t *testing.T) {
	_, s := newTestServer(t)
	srv := NewServer(s, nil)

	result, err := srv.handleRunReview(context.Background(), callToolReq("crev_run_review", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleReviewResult_NotReviewed(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)

	result, err := srv.handleReviewResult(context.Background(), callToolReq("crev_review_result", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "has not been reviewed")
}

func TestHandleReviewResult_AfterRun(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)
	seedProvider(t, s)

	runResult, err := srv.handleRunReview(context.Background(), callToolReq("crev_run_review", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	require.False(t, runResult.IsError)

	result, err := srv.handleReviewResult(context.Background(), callToolReq("crev_review_result", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "passed", out["status"])
	assert.Equal(t, "Solid component.", out["summary"])
}

func TestHandleAddNote(t *testing.T) {
	srv, s := newTestServer(t)
	pkg := seedPackage(t, s)

	result, err := srv.handleAddNote(context.Background(), callToolReq("crev_add_note", map[string]any{
		"package": "@acme/widget",
		"body":    "needs a README",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	notes, err := s.ListNotes(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "needs a README", notes[0].Body)
	assert.Equal(t, "mcp", notes[0].Author)
}

func TestHandleAddNote_MissingBody(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)

	result, err := srv.handleAddNote(context.Background(), callToolReq("crev_add_note", map[string]any{
		"package": "@acme/widget",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSetStatus(t *testing.T) {
	srv, s := newTestServer(t)
	pkg := seedPackage(t, s)

	result, err := srv.handleSetStatus(context.Background(), callToolReq("crev_set_status", map[string]any{
		"package": "@acme/widget",
		"status":  "approved",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	got, err := s.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, got.Status)
}

func TestHandleSetStatus_Invalid(t *testing.T) {
	srv, s := newTestServer(t)
	seedPackage(t, s)

	result, err := srv.handleSetStatus(context.Background(), callToolReq("crev_set_status", map[string]any{
		"package": "@acme/widget",
		"status":  "bogus",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSetPolicy(t *testing.T) {
	srv, s := newTestServer(t)

	result, err := srv.handleSetPolicy(context.Background(), callToolReq("crev_set_policy", map[string]any{
		"auto_approve_on_pass": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	policy, err := s.GetReviewPolicy(context.Background())
	require.NoError(t, err)
	assert.True(t, policy.AutoApproveOnPass)
	assert.False(t, policy.AutoRejectOnFail)
}
