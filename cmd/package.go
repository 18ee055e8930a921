package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/npmreg"
	"github.com/get-convex/crev/internal/output"
	"github.com/get-convex/crev/internal/store"
)

var (
	packageRepoURL    string
	packageNpm        string
	packageVersion    string
	packageAuthor     string
	packageDesc       string
	packageVisibility string
	packageStatus     string
	packageSearch     string
)

var packageCmd = &cobra.Command{
	Use:     "package",
	Aliases: []string{"pkg"},
	Short:   "Manage submitted component packages",
	Long:    "Add, remove, list, and show component packages submitted for review.",
}

var packageAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a package submission",
	Long: `Add a component package to the review queue.

With --npm, name, version, description, and repository URL are prefilled
from the npm registry and can be overridden by the other flags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageAddRun(args[0])
	},
}

var packageRemoveCmd = &cobra.Command{
	Use:     "remove <name-or-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a package submission",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageRemoveRun(args[0])
	},
}

var packageListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List package submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageListRun()
	},
}

var packageShowCmd = &cobra.Command{
	Use:   "show <name-or-id>",
	Short: "Show package details and review outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageShowRun(args[0])
	},
}

func init() {
	packageAddCmd.Flags().StringVar(&packageRepoURL, "repo", "", "GitHub repository URL")
	packageAddCmd.Flags().StringVar(&packageNpm, "npm", "", "npm package name to prefill metadata from")
	packageAddCmd.Flags().StringVar(&packageVersion, "version", "", "Package version")
	packageAddCmd.Flags().StringVar(&packageAuthor, "author", "", "Package author")
	packageAddCmd.Flags().StringVar(&packageDesc, "description", "", "Package description")
	packageAddCmd.Flags().StringVar(&packageVisibility, "visibility", "public", "Visibility: public or hidden")

	packageListCmd.Flags().StringVar(&packageStatus, "status", "", "Filter by submission status: pending, approved, rejected")
	packageListCmd.Flags().StringVar(&packageSearch, "search", "", "Substring match on name or description")

	packageCmd.AddCommand(packageAddCmd)
	packageCmd.AddCommand(packageRemoveCmd)
	packageCmd.AddCommand(packageListCmd)
	packageCmd.AddCommand(packageShowCmd)
	rootCmd.AddCommand(packageCmd)
}

func packageAddRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	p := &models.Package{
		Name:        name,
		Version:     packageVersion,
		Description: packageDesc,
		RepoURL:     packageRepoURL,
		NpmPackage:  packageNpm,
		Author:      packageAuthor,
		Status:      models.SubmissionStatusPending,
		Visibility:  models.Visibility(packageVisibility),
	}

	if packageNpm != "" {
		reg := npmreg.NewClient()
		meta, err := reg.Lookup(context.Background(), packageNpm)
		if err != nil {
			ui.Warning("npm lookup failed for %s: %v", packageNpm, err)
		} else {
			if p.Version == "" {
				p.Version = meta.LatestVersion
			}
			if p.Description == "" {
				p.Description = meta.Description
			}
			if p.RepoURL == "" {
				p.RepoURL = meta.RepoURL
			}
			ui.VerboseLog("Prefilled from npm: version=%s repo=%s", meta.LatestVersion, meta.RepoURL)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would add package: %s (%s)", p.Name, p.RepoURL)
		return nil
	}

	if err := s.CreatePackage(context.Background(), p); err != nil {
		return fmt.Errorf("add package: %w", err)
	}

	ui.Success("Added package: %s", output.Cyan(p.Name))
	if p.RepoURL == "" {
		ui.Warning("No repository URL; the review will mark this submission partial until one is set.")
	}
	return nil
}

func packageRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove package: %s", p.Name)
		return nil
	}

	if err := s.DeletePackage(ctx, p.ID); err != nil {
		return fmt.Errorf("remove package: %w", err)
	}

	ui.Success("Removed package: %s", output.Cyan(p.Name))
	return nil
}

func packageListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	packages, err := s.ListPackages(ctx, store.PackageListFilter{
		Status: models.SubmissionStatus(packageStatus),
		Search: packageSearch,
	})
	if err != nil {
		return err
	}

	if len(packages) == 0 {
		ui.Info("No packages submitted. Use 'crev package add <name>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Name", "Version", "Status", "Review", "Repository"})
	for _, p := range packages {
		reviewStatus := string(models.ReviewStatusNotReviewed)
		if rr, err := s.GetReviewResult(ctx, p.ID); err == nil {
			reviewStatus = string(rr.Status)
		}

		table.Append([]string{
			output.Cyan(p.Name),
			p.Version,
			output.StatusColor(string(p.Status)),
			output.StatusColor(reviewStatus),
			p.RepoURL,
		})
	}
	table.Render()
	return nil
}

func packageShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	if p.Version != "" {
		fmt.Fprintf(ui.Out, "  Version:    %s\n", p.Version)
	}
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	if p.Author != "" {
		fmt.Fprintf(ui.Out, "  Author:     %s\n", p.Author)
	}
	if p.RepoURL != "" {
		fmt.Fprintf(ui.Out, "  Repository: %s\n", p.RepoURL)
	}
	if p.NpmPackage != "" {
		fmt.Fprintf(ui.Out, "  npm:        %s\n", p.NpmPackage)
	}
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(p.Status)))
	fmt.Fprintf(ui.Out, "  Visibility: %s\n", p.Visibility)
	fmt.Fprintln(ui.Out)

	rr, err := s.GetReviewResult(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ui.Info("Not reviewed yet. Run 'crev review run %s' to review.", p.Name)
			return nil
		}
		return err
	}

	renderReviewResult(rr)

	notes, err := s.ListNotes(ctx, p.ID)
	if err == nil && len(notes) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "Notes:\n")
		for _, n := range notes {
			fmt.Fprintf(ui.Out, "  [%s] %s: %s\n", n.CreatedAt.Format(time.DateOnly), n.Author, n.Body)
		}
	}
	return nil
}

// resolvePackage tries to find a package by name first, then by ID.
func resolvePackage(ctx context.Context, s store.Store, ref string) (*models.Package, error) {
	if p, err := s.GetPackageByName(ctx, ref); err == nil {
		return p, nil
	}
	if p, err := s.GetPackage(ctx, ref); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("package not found: %s", ref)
}
