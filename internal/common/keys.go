package common

import (
	"context"
	"fmt"
	"os"

	"github.com/valora-io/valora/internal/interfaces"
)

// ResolveAPIKey resolves a provider API key with priority:
// environment variable, then KV store, then config fallback.
// The KV store layer lets operators rotate keys at runtime.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"ANTHROPIC_API_KEY", "VALORA_CLAUDE_API_KEY"},
		"gemini_api_key":    {"GEMINI_API_KEY", "VALORA_GEMINI_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
