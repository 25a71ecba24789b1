package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
)

// NewService creates the configured LLM provider
func NewService(config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		return NewGeminiService(&config.Gemini, kvStorage, logger)
	case common.LLMProviderClaude, "":
		return NewClaudeService(&config.Claude, kvStorage, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", config.LLM.DefaultProvider)
	}
}
