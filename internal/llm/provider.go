// Package llm provides the model-provider abstraction used by the review
// pipeline. Exactly one provider is active at a time; the caller resolves
// the active configuration and hands it to New.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/get-convex/crev/internal/models"
)

// DefaultMaxTokens bounds completion output when the caller passes 0.
const DefaultMaxTokens = 4096

// ErrProviderNotConfigured indicates no active provider or API key.
var ErrProviderNotConfigured = errors.New("llm: no active model provider configured")

// ErrUnexpectedResponseShape indicates the provider returned something
// other than a text content block.
var ErrUnexpectedResponseShape = errors.New("llm: unexpected response shape")

// Completer is the capability interface all providers implement: a
// single-turn completion with a bounded output-token budget.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// New creates the completer for the resolved active provider config.
func New(cfg *models.ProviderConfig) (Completer, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrProviderNotConfigured
	}

	switch cfg.Kind {
	case models.ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.Model), nil
	case models.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	case models.ProviderGemini:
		return NewGemini(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderNotConfigured, cfg.Kind)
	}
}
