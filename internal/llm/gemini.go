package llm

import (
	"context"
	"fmt"
	"sync"

	genai "google.golang.org/genai"
)

// Gemini implements Completer using the official genai SDK.
type Gemini struct {
	apiKey string
	model  string

	once sync.Once
	cli  *genai.Client
	err  error
}

// NewGemini creates a Gemini completer with the given API key and model.
// The underlying client is initialized on first use because the SDK
// requires a context to construct.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) init(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.cli, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.cli, g.err
}

func (g *Gemini) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	cli, err := g.init(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	resp, err := cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrUnexpectedResponseShape)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text content in response", ErrUnexpectedResponseShape)
	}
	return text, nil
}
