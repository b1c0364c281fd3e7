package agent

import (
	"context"
	"errors"

	"github.com/harun/gofer/pkg/session"
)

// ActionKind discriminates the two things an engine may propose.
type ActionKind string

const (
	// ActionAnswer ends the run with a final answer
	ActionAnswer ActionKind = "answer"

	// ActionCallTool requests one tool invocation
	ActionCallTool ActionKind = "call_tool"
)

// Action is the single next step an engine proposes for a run.
type Action struct {
	Kind  ActionKind             `json:"kind"`
	Text  string                 `json:"text,omitempty"`
	Tool  string                 `json:"tool,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// CatalogEntry is the engine-facing description of one registered tool.
type CatalogEntry struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ErrEngine is returned when an engine cannot produce a usable action. The
// loop treats it as fatal to the run.
var ErrEngine = errors.New("engine returned no usable action")

// Engine proposes the next action given the conversation so far and the
// current tool catalog. Implementations are selected by configuration at run
// start; the loop never inspects which one is installed.
type Engine interface {
	// Name returns the engine's configuration name
	Name() string

	// Propose returns exactly one next action
	Propose(ctx context.Context, transcript []session.Turn, catalog []CatalogEntry) (Action, error)
}
