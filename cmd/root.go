package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/get-convex/crev/internal/githost"
	"github.com/get-convex/crev/internal/output"
	"github.com/get-convex/crev/internal/review"
	"github.com/get-convex/crev/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "crev",
	Short: "Component review - automated review for Convex component submissions",
	Long: `crev reviews component packages submitted to the Convex directory.
It locates component source on GitHub, grades it against a rubric with
an AI model, and records a pass/fail/partial verdict per submission.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/crev/config.yaml)")
}

func initConfig() {
	// Local .env files hold API keys during development.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "crev")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CREV")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "crev")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "crev.db"))
	viper.SetDefault("github.token", "")
	viper.SetDefault("provider.kind", "anthropic")
	viper.SetDefault("provider.model", "claude-sonnet-4-20250514")
	viper.SetDefault("review.max_output_tokens", 0)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version commands run without
	// touching the database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// githubToken resolves the GitHub token from config or the conventional env var.
func githubToken() string {
	token := viper.GetString("github.token")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return token
}

// newRunner wires the review pipeline against the live GitHub API.
func newRunner(s store.Store) *review.Runner {
	gh := githost.NewClient(githubToken())
	loc := githost.NewLocator(gh)

	cfg := review.DefaultConfig()
	if v := viper.GetInt("review.max_output_tokens"); v > 0 {
		cfg.MaxOutputTokens = v
	}
	return review.NewRunner(s, loc, cfg)
}
