package models

// ProviderKind identifies a supported model provider.
type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderGemini    ProviderKind = "gemini"
)

// ProviderConfig is the resolved active model provider. At most one
// provider is active at a time; the store enforces that.
type ProviderConfig struct {
	Kind   ProviderKind
	APIKey string
	Model  string
	Active bool
}
