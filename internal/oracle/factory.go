// File: internal/oracle/factory.go
package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// NewBackend creates the backend selected by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (Backend, error) {
	switch config.LLMProvider(strings.ToLower(string(cfg.Provider))) {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}

// NewFromConfig builds a ready to use decision oracle.
func NewFromConfig(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*Oracle, error) {
	backend, err := NewBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(backend, logger), nil
}
