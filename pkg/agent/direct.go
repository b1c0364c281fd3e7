package agent

import (
	"context"
	"fmt"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/pkg/session"
	"github.com/rs/zerolog"
)

const planPayloadMaxLen = 7000

// DirectEngine is the single-model planner. One model sees the goal, the
// latest observation, and a compacted tool index, and must answer with one
// contract JSON object. Invalid output is re-prompted up to PlanRetries
// times before the proposal fails.
type DirectEngine struct {
	providers   []LLMProvider
	model       string
	temperature float64
	maxTokens   int
	planRetries int
	logger      zerolog.Logger
}

// NewDirectEngine creates a direct planning engine.
func NewDirectEngine(providers []LLMProvider, cfg config.EngineConfig, logger zerolog.Logger) *DirectEngine {
	return &DirectEngine{
		providers:   providers,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		planRetries: cfg.PlanRetries,
		logger:      logger.With().Str("component", "engine-direct").Logger(),
	}
}

// Name returns the engine's configuration name
func (e *DirectEngine) Name() string {
	return "direct"
}

// Propose asks the model for the next action under the planner contract.
func (e *DirectEngine) Propose(ctx context.Context, transcript []session.Turn, catalog []CatalogEntry) (Action, error) {
	payload := buildPlanPayload(transcript, catalog)

	messages := []Message{
		{Role: "user", Content: compactJSON(payload, planPayloadMaxLen)},
	}

	var lastErr error
	for attempt := 0; attempt <= e.planRetries; attempt++ {
		req := LLMRequest{
			Model:        e.model,
			Messages:     messages,
			Temperature:  0, // planning always runs at temperature 0
			MaxTokens:    e.maxTokens,
			SystemPrompt: plannerSystemPrompt,
		}

		content, err := Complete(ctx, e.providers, req, e.logger)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %v", ErrEngine, err)
		}

		action, err := parsePlan(content)
		if err == nil {
			return action, nil
		}

		lastErr = err
		e.logger.Warn().
			Int("attempt", attempt+1).
			Err(err).
			Msg("Planner output rejected, re-prompting")

		messages = append(messages,
			Message{Role: "assistant", Content: content},
			Message{Role: "user", Content: retryPrompt},
		)
	}

	return Action{}, fmt.Errorf("%w: %v", ErrEngine, lastErr)
}
