package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/output"
)

var (
	providerKind   string
	providerModel  string
	providerAPIKey string
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage the active model provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return providerShowRun()
	},
}

var providerSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the active model provider",
	Long: `Set the model provider used for reviews.

Defaults come from config (provider.kind, provider.model). The API key is
read from --api-key or the provider's conventional environment variable
(ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return providerSetRun()
	},
}

var providerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active model provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return providerShowRun()
	},
}

func init() {
	providerSetCmd.Flags().StringVar(&providerKind, "kind", "", "Provider kind: anthropic, openai, gemini")
	providerSetCmd.Flags().StringVar(&providerModel, "model", "", "Model identifier")
	providerSetCmd.Flags().StringVar(&providerAPIKey, "api-key", "", "API key (prefer the env var)")

	providerCmd.AddCommand(providerSetCmd)
	providerCmd.AddCommand(providerShowCmd)
	rootCmd.AddCommand(providerCmd)
}

// providerEnvKey returns the conventional API key env var for a provider.
func providerEnvKey(kind models.ProviderKind) string {
	switch kind {
	case models.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case models.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case models.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return ""
}

func providerSetRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	kind := models.ProviderKind(providerKind)
	if kind == "" {
		kind = models.ProviderKind(viper.GetString("provider.kind"))
	}
	switch kind {
	case models.ProviderAnthropic, models.ProviderOpenAI, models.ProviderGemini:
	default:
		return fmt.Errorf("unknown provider: %s", kind)
	}

	model := providerModel
	if model == "" {
		model = viper.GetString("provider.model")
	}

	apiKey := providerAPIKey
	if apiKey == "" {
		apiKey = os.Getenv(providerEnvKey(kind))
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set %s", providerEnvKey(kind))
	}

	cfg := &models.ProviderConfig{
		Kind:   kind,
		APIKey: apiKey,
		Model:  model,
		Active: true,
	}

	if dryRun {
		ui.DryRunMsg("Would set provider: %s (%s)", kind, model)
		return nil
	}

	if err := s.SetActiveProvider(context.Background(), cfg); err != nil {
		return err
	}

	ui.Success("Active provider: %s (%s)", output.Cyan(string(kind)), model)
	return nil
}

func providerShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	cfg, err := s.GetActiveProvider(context.Background())
	if err != nil {
		return err
	}
	if cfg == nil {
		ui.Info("No active provider. Run 'crev provider set' to configure one.")
		return nil
	}

	fmt.Fprintf(ui.Out, "  Provider:  %s\n", output.Cyan(string(cfg.Kind)))
	fmt.Fprintf(ui.Out, "  Model:     %s\n", cfg.Model)
	fmt.Fprintf(ui.Out, "  API key:   (set)\n")
	return nil
}
