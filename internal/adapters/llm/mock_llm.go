package llm

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
)

// MockLLM is an offline Generator for local runs and tests. It echoes the
// prompt and fabricates one grounding chunk per enabled tool.
type MockLLM struct {
	mu       sync.Mutex
	err      error
	requests []domain.GenerateRequest
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// FailWith makes every following call return err. nil restores success.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of every request received so far.
func (m *MockLLM) Requests() []domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *MockLLM) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := url.QueryEscape(req.Prompt)
	res := &domain.GenerateResponse{
		Text: fmt.Sprintf("[%s] You asked %q. This is an offline answer.", req.Model, req.Prompt),
	}

	for _, t := range req.Tools {
		switch t {
		case domain.ToolWebSearch:
			res.GroundingChunks = append(res.GroundingChunks, domain.GroundingChunk{
				Web: &domain.GroundingSource{URI: "https://www.google.com/search?q=" + q, Title: "Web results"},
			})
		case domain.ToolMapsLookup:
			res.GroundingChunks = append(res.GroundingChunks, domain.GroundingChunk{
				Maps: &domain.GroundingSource{URI: "https://maps.google.com/?q=" + q, Title: "Map results"},
			})
		}
	}

	return res, nil
}
