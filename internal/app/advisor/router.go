package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

// Model identifiers per tier.
const (
	ModelFast      = "gemini-3-flash-preview"
	ModelReasoning = "gemini-3-pro-preview"
	ModelMaps      = "gemini-2.5-flash"
)

const (
	// ReasoningBudget is the thinking allowance granted in thinking mode.
	ReasoningBudget int32 = 32768

	// DefaultCallTimeout bounds a single call to the generative service.
	DefaultCallTimeout = 60 * time.Second
)

// FallbackText is the assistant reply when the service call fails.
const FallbackText = "I apologize, but I'm having trouble processing that request."

// ErrServiceUnavailable wraps every failure of the external call.
var ErrServiceUnavailable = errors.New("advisor service unavailable")

// ConfigFor returns the model configuration for a mode. The table is closed
// over the three modes; any other value is a programming error.
func ConfigFor(mode domain.Mode) domain.ModelConfiguration {
	switch mode {
	case domain.ModeSearch:
		return domain.ModelConfiguration{
			Model:       ModelFast,
			Tools:       []domain.Tool{domain.ToolWebSearch},
			Temperature: 0.7,
		}
	case domain.ModeThinking:
		budget := ReasoningBudget
		return domain.ModelConfiguration{
			Model:           ModelReasoning,
			Tools:           []domain.Tool{},
			Temperature:     1.0,
			ReasoningBudget: &budget,
		}
	case domain.ModeMaps:
		return domain.ModelConfiguration{
			Model:       ModelMaps,
			Tools:       []domain.Tool{domain.ToolMapsLookup},
			Temperature: 0.7,
		}
	}
	panic(fmt.Sprintf("advisor: no configuration for mode %q", mode))
}

type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeFallback OutcomeKind = "fallback"
)

// Outcome is the result of one routed query. A fallback outcome keeps the
// cause in Err for diagnostics only.
type Outcome struct {
	Kind      OutcomeKind
	Text      string
	Citations []domain.Citation
	Err       error
}

func fallback(err error) Outcome {
	return Outcome{
		Kind:      OutcomeFallback,
		Text:      FallbackText,
		Citations: []domain.Citation{},
		Err:       fmt.Errorf("%w: %w", ErrServiceUnavailable, err),
	}
}

// Router sends one utterance to the generative service per Execute call.
type Router struct {
	gen         domain.Generator
	instruction string
	timeout     time.Duration
	logger      *slog.Logger
}

// RouterOption configures a Router built by NewRouter.
type RouterOption func(*Router)

// WithCallTimeout bounds each external call. Zero or negative disables the
// bound and the caller's context alone applies.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// WithSystemInstruction overrides DefaultSystemInstruction.
func WithSystemInstruction(s string) RouterOption {
	return func(r *Router) { r.instruction = s }
}

// WithLogger sets the base logger. Request-scoped fields from the context
// are still added on every call.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

func NewRouter(gen domain.Generator, opts ...RouterOption) *Router {
	r := &Router{
		gen:         gen,
		instruction: DefaultSystemInstruction,
		timeout:     DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute routes the utterance under mode and never fails: any error from
// the service is logged and replaced by the fallback outcome.
func (r *Router) Execute(ctx context.Context, utterance string, mode domain.Mode) Outcome {
	cfg := ConfigFor(mode)

	log := r.log(ctx).With("mode", mode, "model", cfg.Model)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := domain.GenerateRequest{
		Model:             cfg.Model,
		SystemInstruction: r.instruction,
		Prompt:            utterance,
		Tools:             cfg.Tools,
		Temperature:       cfg.Temperature,
		ReasoningBudget:   cfg.ReasoningBudget,
	}

	start := time.Now()
	res, err := r.generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		out := fallback(err)
		log.Error("advisor call failed", "error", out.Err, "elapsed_ms", elapsed.Milliseconds())
		return out
	}

	citations := Normalize(res.GroundingChunks)
	log.Info("advisor call completed",
		"elapsed_ms", elapsed.Milliseconds(),
		"chunks", len(res.GroundingChunks),
		"citations", len(citations),
	)

	return Outcome{
		Kind:      OutcomeSuccess,
		Text:      res.Text,
		Citations: citations,
	}
}

func (r *Router) generate(ctx context.Context, req domain.GenerateRequest) (res *domain.GenerateResponse, err error) {
	if r.gen == nil {
		return nil, errors.New("no generator configured")
	}

	// A misbehaving adapter must not take the session down with it.
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("generator panic: %v", p)
		}
	}()

	res, err = r.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, errors.New("empty response text")
	}
	return res, nil
}

func (r *Router) log(ctx context.Context) *slog.Logger {
	if r.logger != nil {
		return observability.WithContext(ctx, r.logger)
	}
	return observability.LoggerFromContext(ctx)
}
