package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

// Backend selects how the Gemini client authenticates.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini"
	BackendVertexAI  Backend = "vertex"
)

// GeminiConfig carries the environment-provided transport settings.
type GeminiConfig struct {
	Backend  Backend
	APIKey   string // gemini backend
	Project  string // vertex backend
	Location string // vertex backend
}

// GeminiClient implements domain.Generator on top of the genai SDK.
type GeminiClient struct {
	models *genai.Models
}

// NewGeminiClient creates a Generator for either the Gemini API (API key)
// or Vertex AI (project + location, application default credentials).
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}

	switch cfg.Backend {
	case BackendVertexAI:
		if cfg.Project == "" || cfg.Location == "" {
			return nil, errors.New("vertex backend requires project and location")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case BackendGeminiAPI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("gemini backend requires an API key")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{models: client.Models}, nil
}

// Generate implements domain.Generator.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	log := observability.LoggerFromContext(ctx).With("model", req.Model)

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	res, err := g.models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out, err := parseResponse(res)
	if err != nil {
		return nil, err
	}

	log.Log(ctx, observability.LevelTrace, "gemini response",
		"text_len", len(out.Text),
		"grounding_chunks", len(out.GroundingChunks),
	)
	return out, nil
}

// buildConfig translates a request into the genai generation config.
func buildConfig(req domain.GenerateRequest) *genai.GenerateContentConfig {
	temp := req.Temperature

	cfg := &genai.GenerateContentConfig{
		// According to official examples, the role here is usually RoleUser, not "system"
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       &temp,
	}

	for _, t := range req.Tools {
		switch t {
		case domain.ToolWebSearch:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		case domain.ToolMapsLookup:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		}
	}

	if req.ReasoningBudget != nil {
		budget := *req.ReasoningBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	return cfg
}

// parseResponse extracts the text and raw grounding chunks of the first
// candidate.
func parseResponse(res *genai.GenerateContentResponse) (*domain.GenerateResponse, error) {
	if res == nil {
		return nil, errors.New("gemini returned no response")
	}

	text := res.Text()
	if text == "" {
		return nil, errors.New("gemini returned empty text")
	}

	out := &domain.GenerateResponse{Text: text}

	if len(res.Candidates) == 0 || res.Candidates[0] == nil {
		return out, nil
	}
	meta := res.Candidates[0].GroundingMetadata
	if meta == nil {
		return out, nil
	}

	out.GroundingChunks = make([]domain.GroundingChunk, 0, len(meta.GroundingChunks))
	for _, c := range meta.GroundingChunks {
		if c == nil {
			out.GroundingChunks = append(out.GroundingChunks, domain.GroundingChunk{})
			continue
		}
		var chunk domain.GroundingChunk
		if c.Web != nil {
			chunk.Web = &domain.GroundingSource{URI: c.Web.URI, Title: c.Web.Title}
		}
		if c.Maps != nil {
			chunk.Maps = &domain.GroundingSource{URI: c.Maps.URI, Title: c.Maps.Title}
		}
		out.GroundingChunks = append(out.GroundingChunks, chunk)
	}

	return out, nil
}
