package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/output"
	"github.com/get-convex/crev/internal/store"
)

var (
	policyAutoApprove bool
	policyAutoReject  bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run and inspect automated component reviews",
}

var reviewRunCmd = &cobra.Command{
	Use:   "run <name-or-id>",
	Short: "Run the review pipeline for a package",
	Long: `Run a full review: locate the component source on GitHub, grade it
against the rubric with the active model provider, and store the verdict.
If the configured automation policy allows, the submission status is
updated automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRunRun(cmd.Context(), args[0])
	},
}

var reviewStatusCmd = &cobra.Command{
	Use:   "status <name-or-id>",
	Short: "Show the stored review result for a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewStatusRun(args[0])
	},
}

var reviewPolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the post-review automation policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewPolicyShowRun()
	},
}

var reviewPolicySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the post-review automation policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewPolicySetRun()
	},
}

func init() {
	reviewPolicySetCmd.Flags().BoolVar(&policyAutoApprove, "auto-approve", false, "Approve the package automatically when a review passes")
	reviewPolicySetCmd.Flags().BoolVar(&policyAutoReject, "auto-reject", false, "Reject the package automatically when a critical criterion fails")

	reviewPolicyCmd.AddCommand(reviewPolicySetCmd)
	reviewCmd.AddCommand(reviewRunCmd)
	reviewCmd.AddCommand(reviewStatusCmd)
	reviewCmd.AddCommand(reviewPolicyCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewRunRun(ctx context.Context, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	p, err := resolvePackage(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would review package: %s (%s)", p.Name, p.RepoURL)
		return nil
	}

	ui.Info("Reviewing %s...", output.Cyan(p.Name))

	runner := newRunner(s)
	if err := runner.Run(ctx, p.ID); err != nil {
		return fmt.Errorf("review run: %w", err)
	}

	rr, err := s.GetReviewResult(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load review result: %w", err)
	}

	renderReviewResult(rr)

	// The run may have changed the submission status via the policy.
	updated, err := s.GetPackage(ctx, p.ID)
	if err == nil && updated.Status != p.Status {
		ui.Info("Submission status changed: %s -> %s",
			output.StatusColor(string(p.Status)), output.StatusColor(string(updated.Status)))
	}
	return nil
}

func reviewStatusRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, ref)
	if err != nil {
		return err
	}

	rr, err := s.GetReviewResult(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ui.Info("%s has not been reviewed. Run 'crev review run %s'.", p.Name, p.Name)
			return nil
		}
		return err
	}

	renderReviewResult(rr)
	return nil
}

// renderReviewResult prints the verdict header, summary, and criteria table.
func renderReviewResult(rr *models.ReviewResult) {
	fmt.Fprintf(ui.Out, "Review:     %s", output.StatusColor(string(rr.Status)))
	if !rr.ReviewedAt.IsZero() {
		fmt.Fprintf(ui.Out, "  (%s)", rr.ReviewedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(ui.Out)

	if rr.Error != "" {
		ui.Error("Review error: %s", rr.Error)
		return
	}

	if rr.Summary != "" {
		fmt.Fprintf(ui.Out, "\n%s\n\n", rr.Summary)
	}

	if len(rr.Criteria) == 0 {
		return
	}

	table := ui.Table([]string{"Criterion", "Verdict", "Notes"})
	for _, c := range rr.Criteria {
		table.Append([]string{c.Name, output.PassFail(c.Passed), c.Notes})
	}
	table.Render()
}

func reviewPolicyShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	policy, err := s.GetReviewPolicy(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "  auto-approve on pass:  %v\n", policy.AutoApproveOnPass)
	fmt.Fprintf(ui.Out, "  auto-reject on fail:   %v\n", policy.AutoRejectOnFail)
	return nil
}

func reviewPolicySetRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	policy := models.ReviewPolicy{
		AutoApproveOnPass: policyAutoApprove,
		AutoRejectOnFail:  policyAutoReject,
	}

	if dryRun {
		ui.DryRunMsg("Would set policy: auto-approve=%v auto-reject=%v", policy.AutoApproveOnPass, policy.AutoRejectOnFail)
		return nil
	}

	if err := s.SetReviewPolicy(context.Background(), policy); err != nil {
		return err
	}

	ui.Success("Policy updated: auto-approve=%v auto-reject=%v", policy.AutoApproveOnPass, policy.AutoRejectOnFail)
	return nil
}
