package interfaces

import "context"

// GenerateOptions controls a single LLM generation call
type GenerateOptions struct {
	// System sets the system prompt; empty means provider default
	System string

	// MaxTokens caps the response length; zero means provider default
	MaxTokens int
}

// LLMService defines the interface for language model text generation.
// Implementations wrap a specific provider API (Anthropic, Gemini) and
// are selected by configuration at startup.
type LLMService interface {
	// Generate produces a completion for the given prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: User prompt text
	//   - opts: Generation options (system prompt, token cap)
	//
	// Returns:
	//   - string: Generated text, all content blocks concatenated
	//   - error: Error if the provider call fails
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Provider returns the provider name ("claude" or "gemini")
	Provider() string
}
