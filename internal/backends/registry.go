package backends

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kotonoha/internal/config"
	"kotonoha/internal/interfaces"
)

// Registry holds the configured backends keyed by name. Backends are
// constructed lazily on first selection so a miswired provider only fails
// the submissions that actually select it.
type Registry struct {
	cfg    config.AIConfig
	logger *zap.Logger

	mu       sync.Mutex
	backends map[string]interfaces.Backend
}

// NewRegistry creates a backend registry. The dummy backend is always
// available regardless of configuration.
func NewRegistry(cfg config.AIConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger.Named("backends"),
		backends: map[string]interfaces.Backend{
			"dummy": NewDummyBackend(),
		},
	}
}

// Register installs a pre-built backend under the given name, replacing
// any existing registration
func (r *Registry) Register(name string, b interfaces.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Select returns the backend registered under name, constructing it on
// first use. Unknown names and missing credentials are configuration
// errors for that submission.
func (r *Registry) Select(ctx context.Context, name string) (interfaces.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[name]; ok {
		return b, nil
	}

	var (
		b   interfaces.Backend
		err error
	)
	switch name {
	case "openai":
		b, err = NewOpenAIBackend(r.cfg.OpenAI)
	case "gemini":
		b, err = NewGeminiBackend(ctx, r.cfg.Gemini)
	case "gemini-cli":
		b, err = NewGeminiCLIBackend(r.cfg.GeminiCLI)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", name)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("backend initialized", zap.String("backend", name))
	r.backends[name] = b
	return b, nil
}

// Dummy returns the always-available offline backend
func (r *Registry) Dummy() interfaces.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backends["dummy"]
}
