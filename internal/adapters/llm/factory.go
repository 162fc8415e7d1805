package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/carbon-advisor/internal/config"
	"github.com/PabloGalante/carbon-advisor/internal/domain"
)

// New chooses between the offline mock and Gemini by config.
func New(ctx context.Context, cfg config.LLMConfig) (domain.Generator, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			Backend: BackendGeminiAPI,
			APIKey:  cfg.APIKey,
		})
	case config.BackendVertex:
		return NewGeminiClient(ctx, GeminiConfig{
			Backend:  BackendVertexAI,
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
		})
	case config.BackendMock, "":
		return NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
