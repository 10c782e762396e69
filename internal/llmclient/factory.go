// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
)

// newClient creates a single backend client from its model configuration.
func newClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported model provider: %q (supported: %s, %s)",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds the tier router from the agent's LLM configuration.
// Named model entries are instantiated once and shared between tiers that
// reference the same entry.
func NewRouterFromConfig(cfg config.LLMRouterConfig, logger *zap.Logger) (*Router, error) {
	cache := make(map[string]schemas.LLMClient)

	byName := func(name string) (schemas.LLMClient, error) {
		if client, ok := cache[name]; ok {
			return client, nil
		}
		modelCfg, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("model %q is not configured", name)
		}
		client, err := newClient(modelCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %q: %w", name, err)
		}
		cache[name] = client
		return client, nil
	}

	fast, err := byName(cfg.FastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := byName(cfg.PowerfulModel)
	if err != nil {
		return nil, err
	}
	return NewRouter(logger, fast, powerful)
}

// NewVisionClientFromConfig builds the client serving the perception model.
func NewVisionClientFromConfig(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[cfg.VisionModel]
	if !ok {
		return nil, fmt.Errorf("vision model %q is not configured", cfg.VisionModel)
	}
	client, err := newClient(modelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return client, nil
}
