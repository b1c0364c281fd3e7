package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/pkg/session"
	"github.com/rs/zerolog"
)

const reviewerSystemPrompt = `You review a proposed action from a planning agent. Return ONLY valid JSON.
Contract:
1) {"verdict":"approve"}
2) {"verdict":"revise","action":{"action":"run","tool":"TOOL_NAME","input":{}}}
3) {"verdict":"revise","action":{"action":"final","answer":"..."}}
Rules:
- Approve when the proposal is a sensible next step toward the goal.
- Revise when the proposal uses a wrong tool, malformed input, or answers prematurely.
- Reply with JSON only, no markdown or surrounding text.`

// TeamEngine is the multi-agent planner: a planner model proposes the next
// action and a reviewer model gets one round to approve or replace it. A
// reviewer that fails or answers off-contract forfeits its round and the
// planner's proposal stands.
type TeamEngine struct {
	planner   *DirectEngine
	providers []LLMProvider
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// NewTeamEngine creates a planner+reviewer engine sharing one provider pool.
func NewTeamEngine(providers []LLMProvider, cfg config.EngineConfig, logger zerolog.Logger) *TeamEngine {
	return &TeamEngine{
		planner:   NewDirectEngine(providers, cfg, logger),
		providers: providers,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With().Str("component", "engine-team").Logger(),
	}
}

// Name returns the engine's configuration name
func (e *TeamEngine) Name() string {
	return "team"
}

// Propose runs one plan-review round and returns the surviving action.
func (e *TeamEngine) Propose(ctx context.Context, transcript []session.Turn, catalog []CatalogEntry) (Action, error) {
	proposed, err := e.planner.Propose(ctx, transcript, catalog)
	if err != nil {
		return Action{}, err
	}

	reviewed, err := e.review(ctx, transcript, catalog, proposed)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Review round forfeited, planner proposal stands")
		return proposed, nil
	}

	return reviewed, nil
}

type reviewPayload struct {
	Goal       string        `json:"goal"`
	Proposed   interface{}   `json:"proposed_action"`
	ToolsIndex []toolSummary `json:"tools_index"`
}

func (e *TeamEngine) review(ctx context.Context, transcript []session.Turn, catalog []CatalogEntry, proposed Action) (Action, error) {
	payload := reviewPayload{
		Proposed:   contractObject(proposed),
		ToolsIndex: toolIndex(catalog),
	}
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == session.RoleUser {
			payload.Goal = transcript[i].Content
			break
		}
	}

	req := LLMRequest{
		Model:        e.model,
		Messages:     []Message{{Role: "user", Content: compactJSON(payload, planPayloadMaxLen)}},
		Temperature:  0,
		MaxTokens:    e.maxTokens,
		SystemPrompt: reviewerSystemPrompt,
	}

	content, err := Complete(ctx, e.providers, req, e.logger)
	if err != nil {
		return Action{}, err
	}

	verdict, err := extractFirstJSONObject(content)
	if err != nil {
		return Action{}, err
	}

	switch v, _ := verdict["verdict"].(string); v {
	case "approve":
		return proposed, nil

	case "revise":
		raw, err := json.Marshal(verdict["action"])
		if err != nil {
			return Action{}, fmt.Errorf("revision not serializable: %v", err)
		}
		revised, err := parsePlan(string(raw))
		if err != nil {
			return Action{}, fmt.Errorf("revision off-contract: %v", err)
		}
		e.logger.Info().
			Str("from", string(proposed.Kind)).
			Str("to", string(revised.Kind)).
			Msg("Reviewer revised the proposal")
		return revised, nil

	default:
		return Action{}, fmt.Errorf("invalid verdict %q", v)
	}
}

// contractObject renders an Action back into the planner contract shape for
// the reviewer's prompt.
func contractObject(a Action) map[string]interface{} {
	if a.Kind == ActionAnswer {
		return map[string]interface{}{"action": "final", "answer": a.Text}
	}
	return map[string]interface{}{"action": "run", "tool": a.Tool, "input": a.Input}
}
