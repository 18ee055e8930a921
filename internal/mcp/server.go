package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/review"
	"github.com/get-convex/crev/internal/store"
)

// Server wraps the crev data layer and exposes it as MCP tools.
type Server struct {
	store  store.Store
	runner *review.Runner
}

// NewServer creates the MCP server wrapper. The runner may be nil, in
// which case crev_run_review reports an error.
func NewServer(s store.Store, runner *review.Runner) *Server {
	return &Server{
		store:  s,
		runner: runner,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("crev", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listPackagesTool())
	srv.AddTool(s.packageStatusTool())
	srv.AddTool(s.runReviewTool())
	srv.AddTool(s.reviewResultTool())
	srv.AddTool(s.addNoteTool())
	srv.AddTool(s.setStatusTool())
	srv.AddTool(s.setPolicyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// crev_list_packages
func (s *Server) listPackagesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_list_packages",
		mcp.WithDescription("List submitted component packages. Returns a JSON array with id, name, version, repo_url, submission status, and visibility."),
		mcp.WithString("status", mcp.Description("Filter by submission status: pending, approved, rejected")),
		mcp.WithString("visibility", mcp.Description("Filter by visibility: public, hidden")),
		mcp.WithString("search", mcp.Description("Substring match on name or description")),
	)
	return tool, s.handleListPackages
}

func (s *Server) handleListPackages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.PackageListFilter{
		Status:     models.SubmissionStatus(request.GetString("status", "")),
		Visibility: models.Visibility(request.GetString("visibility", "")),
		Search:     request.GetString("search", ""),
	}
	packages, err := s.store.ListPackages(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list packages: %v", err)), nil
	}

	type packageOut struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Version     string `json:"version,omitempty"`
		Description string `json:"description,omitempty"`
		RepoURL     string `json:"repo_url,omitempty"`
		NpmPackage  string `json:"npm_package,omitempty"`
		Status      string `json:"status"`
		Visibility  string `json:"visibility"`
	}

	out := make([]packageOut, len(packages))
	for i, p := range packages {
		out[i] = packageOut{
			ID:          p.ID,
			Name:        p.Name,
			Version:     p.Version,
			Description: p.Description,
			RepoURL:     p.RepoURL,
			NpmPackage:  p.NpmPackage,
			Status:      string(p.Status),
			Visibility:  string(p.Visibility),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal packages: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crev_package_status
func (s *Server) packageStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_package_status",
		mcp.WithDescription("Get a package's submission details plus its latest review outcome, if any. Resolves the package by name or ID."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name or ID")),
	)
	return tool, s.handlePackageStatus
}

func (s *Server) handlePackageStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", ref)), nil
	}

	result := map[string]any{
		"package": map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"version":     p.Version,
			"description": p.Description,
			"repo_url":    p.RepoURL,
			"npm_package": p.NpmPackage,
			"author":      p.Author,
			"status":      string(p.Status),
			"visibility":  string(p.Visibility),
		},
		"review": map[string]any{
			"status": string(models.ReviewStatusNotReviewed),
		},
	}

	if rr, err := s.store.GetReviewResult(ctx, p.ID); err == nil {
		rev := map[string]any{
			"status":      string(rr.Status),
			"summary":     rr.Summary,
			"reviewed_at": rr.ReviewedAt.Format(time.RFC3339),
		}
		if rr.Error != "" {
			rev["error"] = rr.Error
		}
		criteria := make([]map[string]any, len(rr.Criteria))
		for i, c := range rr.Criteria {
			criteria[i] = map[string]any{
				"name":   c.Name,
				"passed": c.Passed,
				"notes":  c.Notes,
			}
		}
		rev["criteria"] = criteria
		result["review"] = rev
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crev_run_review
func (s *Server) runReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_run_review",
		mcp.WithDescription("Run the automated review pipeline for a package and wait for the outcome. Returns the stored review result as JSON."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name or ID")),
	)
	return tool, s.handleRunReview
}

func (s *Server) handleRunReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("review runner not configured"), nil
	}

	ref, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", ref)), nil
	}

	if err := s.runner.Run(ctx, p.ID); err != nil {
		if errors.Is(err, review.ErrReviewInProgress) {
			return mcp.NewToolResultError(fmt.Sprintf("review already in progress for %s", p.Name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("review run failed: %v", err)), nil
	}

	rr, err := s.store.GetReviewResult(ctx, p.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load review result: %v", err)), nil
	}
	return marshalReviewResult(rr)
}

// crev_review_result
func (s *Server) reviewResultTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_review_result",
		mcp.WithDescription("Get the stored review result for a package, including per-criterion verdicts. Returns JSON."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name or ID")),
	)
	return tool, s.handleReviewResult
}

func (s *Server) handleReviewResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", ref)), nil
	}

	rr, err := s.store.GetReviewResult(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("package %s has not been reviewed", p.Name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load review result: %v", err)), nil
	}
	return marshalReviewResult(rr)
}

// crev_add_note
func (s *Server) addNoteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_add_note",
		mcp.WithDescription("Attach an admin note to a package submission."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name or ID")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Note text")),
		mcp.WithString("author", mcp.Description("Note author (default: mcp)")),
	)
	return tool, s.handleAddNote
}

func (s *Server) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}
	body, err := request.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: body"), nil
	}

	p, err := s.resolvePackage(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", ref)), nil
	}

	note := &models.Note{
		PackageID: p.ID,
		Author:    request.GetString("author", "mcp"),
		Body:      body,
	}
	if err := s.store.CreateNote(ctx, note); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create note: %v", err)), nil
	}

	data, err := json.Marshal(map[string]string{
		"id":         note.ID,
		"package_id": note.PackageID,
		"author":     note.Author,
		"body":       note.Body,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal note: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crev_set_status
func (s *Server) setStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_set_status",
		mcp.WithDescription("Manually approve or reject a package submission, overriding any automated decision."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name or ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: pending, approved, rejected")),
	)
	return tool, s.handleSetStatus
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	target := models.SubmissionStatus(status)
	switch target {
	case models.SubmissionStatusPending, models.SubmissionStatusApproved, models.SubmissionStatusRejected:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", status)), nil
	}

	p, err := s.resolvePackage(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", ref)), nil
	}

	p.Status = target
	if err := s.store.UpdatePackage(ctx, p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update package: %v", err)), nil
	}

	data, err := json.Marshal(map[string]string{
		"id":     p.ID,
		"name":   p.Name,
		"status": string(p.Status),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal package: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crev_set_policy
func (s *Server) setPolicyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_set_policy",
		mcp.WithDescription("Set the post-review automation policy: whether passing reviews auto-approve and critical failures auto-reject."),
		mcp.WithBoolean("auto_approve_on_pass", mcp.Description("Approve the package automatically when a review passes")),
		mcp.WithBoolean("auto_reject_on_fail", mcp.Description("Reject the package automatically when a critical criterion fails")),
	)
	return tool, s.handleSetPolicy
}

func (s *Server) handleSetPolicy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policy := models.ReviewPolicy{
		AutoApproveOnPass: request.GetBool("auto_approve_on_pass", false),
		AutoRejectOnFail:  request.GetBool("auto_reject_on_fail", false),
	}
	if err := s.store.SetReviewPolicy(ctx, policy); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set policy: %v", err)), nil
	}

	data, err := json.Marshal(map[string]bool{
		"auto_approve_on_pass": policy.AutoApproveOnPass,
		"auto_reject_on_fail":  policy.AutoRejectOnFail,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal policy: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolvePackage tries to find a package by name first, then by ID.
func (s *Server) resolvePackage(ctx context.Context, ref string) (*models.Package, error) {
	if p, err := s.store.GetPackageByName(ctx, ref); err == nil {
		return p, nil
	}
	if p, err := s.store.GetPackage(ctx, ref); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("package not found: %s", ref)
}

func marshalReviewResult(rr *models.ReviewResult) (*mcp.CallToolResult, error) {
	type criterionOut struct {
		Name   string `json:"name"`
		Passed bool   `json:"passed"`
		Notes  string `json:"notes"`
	}
	out := struct {
		PackageID  string         `json:"package_id"`
		Status     string         `json:"status"`
		Summary    string         `json:"summary,omitempty"`
		Error      string         `json:"error,omitempty"`
		Criteria   []criterionOut `json:"criteria"`
		ReviewedAt string         `json:"reviewed_at"`
	}{
		PackageID:  rr.PackageID,
		Status:     string(rr.Status),
		Summary:    rr.Summary,
		Error:      rr.Error,
		Criteria:   make([]criterionOut, len(rr.Criteria)),
		ReviewedAt: rr.ReviewedAt.Format(time.RFC3339),
	}
	for i, c := range rr.Criteria {
		out.Criteria[i] = criterionOut{Name: c.Name, Passed: c.Passed, Notes: c.Notes}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal review result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
