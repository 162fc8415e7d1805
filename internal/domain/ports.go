package domain

import "context"

// Generator defines how the core application talks to the generative service.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Tool is a retrieval augmentation the service may use while answering.
type Tool string

const (
	ToolWebSearch  Tool = "web_search"
	ToolMapsLookup Tool = "maps_lookup"
)

// ModelConfiguration is derived from a Mode on every call and never stored.
type ModelConfiguration struct {
	Model           string
	Tools           []Tool
	Temperature     float32
	ReasoningBudget *int32 // nil = no extended reasoning
}

// GenerateRequest is a single call to the generative service.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Tools             []Tool
	Temperature       float32
	ReasoningBudget   *int32
}

// GenerateResponse is what the service answered, grounding left raw.
type GenerateResponse struct {
	Text            string
	GroundingChunks []GroundingChunk
}

// GroundingChunk carries at most one of Web or Maps. Both may be nil.
type GroundingChunk struct {
	Web  *GroundingSource
	Maps *GroundingSource
}

type GroundingSource struct {
	URI   string
	Title string
}
