package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/gofer/internal/observability"
	"github.com/harun/gofer/pkg/registry"
	"github.com/harun/gofer/pkg/session"
	"github.com/harun/gofer/pkg/toolrunner"
	"github.com/rs/zerolog"
)

// Status is the terminal outcome of one run.
type Status string

const (
	// StatusDone means the engine produced a final answer
	StatusDone Status = "done"

	// StatusAborted means the run hit its step budget or was cancelled;
	// the partial transcript is preserved.
	StatusAborted Status = "aborted"

	// StatusFailed means the engine or session storage failed unrecoverably
	StatusFailed Status = "failed"
)

// RunParams bounds one run. MaxSteps and ToolTimeout come from the caller,
// never from loop-internal constants. Engine, when set, overrides the loop's
// default engine for this run only.
type RunParams struct {
	SessionKey  string
	Goal        string
	MaxSteps    int
	ToolTimeout time.Duration
	Engine      Engine
}

// RunResult reports a run's terminal state. BudgetExhausted marks the
// defined aborted-on-budget outcome, which is not an error to the caller.
type RunResult struct {
	RunID           string
	Status          Status
	Answer          string
	StepsTaken      int
	BudgetExhausted bool
}

// Loop is the bounded plan-act-observe state machine. One run cycles
// Planning -> Executing -> Observing until the engine answers, the step
// budget runs out, or an unrecoverable failure ends it. Tool failures are
// never retried by the loop itself; they are fed back to the engine as
// observations and retry policy stays a planning decision.
type Loop struct {
	engine   Engine
	runner   *toolrunner.Runner
	sessions *session.Store
	registry *registry.Registry
	logger   zerolog.Logger

	runLocks map[string]*sync.Mutex
	locksMu  sync.Mutex
}

// NewLoop creates an agent loop.
func NewLoop(engine Engine, runner *toolrunner.Runner, sessions *session.Store, reg *registry.Registry, logger zerolog.Logger) *Loop {
	observability.EnsureRegistered()

	return &Loop{
		engine:   engine,
		runner:   runner,
		sessions: sessions,
		registry: reg,
		logger:   logger.With().Str("component", "agent-loop").Logger(),
		runLocks: make(map[string]*sync.Mutex),
	}
}

func (l *Loop) runLock(key string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	if lock, exists := l.runLocks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	l.runLocks[key] = lock
	return lock
}

// Run drives one goal to a terminal state. At most one run per session key
// is active at a time: the per-key lock is held from before the first
// Planning step until the terminal state, so overlapping runs can never
// interleave transcript appends or double-consume the budget.
func (l *Loop) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	lock := l.runLock(params.SessionKey)
	lock.Lock()
	defer lock.Unlock()

	engine := l.engine
	if params.Engine != nil {
		engine = params.Engine
	}

	res := &RunResult{RunID: uuid.NewString()}
	start := time.Now()
	logger := l.logger.With().
		Str("run_id", res.RunID).
		Str("session_key", params.SessionKey).
		Logger()

	defer func() {
		observability.RecordAgentRun(string(res.Status), res.StepsTaken, time.Since(start))
		logger.Info().
			Str("status", string(res.Status)).
			Int("steps_taken", res.StepsTaken).
			Dur("duration", time.Since(start)).
			Msg("Agent run finished")
	}()

	if _, err := l.sessions.GetOrCreate(params.SessionKey); err != nil {
		res.Status = StatusFailed
		return res, err
	}

	if err := l.sessions.Append(params.SessionKey, session.Turn{
		Role:    session.RoleUser,
		Content: params.Goal,
	}); err != nil {
		res.Status = StatusFailed
		return res, err
	}

	logger.Info().
		Str("engine", engine.Name()).
		Int("max_steps", params.MaxSteps).
		Msg("Agent run started")

	for {
		// Planning. Cancellation and the budget are checked here, before
		// any engine call, so max_steps=0 aborts without planning at all.
		if ctx.Err() != nil {
			res.Status = StatusAborted
			return res, nil
		}
		if res.StepsTaken >= params.MaxSteps {
			res.Status = StatusAborted
			res.BudgetExhausted = true
			return res, nil
		}

		// The view is pinned per step: a registry reload mid-run only takes
		// effect at the next Planning boundary.
		view := l.registry.View()

		snap, err := l.sessions.Snapshot(params.SessionKey)
		if err != nil {
			res.Status = StatusFailed
			return res, err
		}

		action, err := engine.Propose(ctx, snap.Turns, catalogFromView(view))
		if err != nil {
			res.Status = StatusFailed
			return res, fmt.Errorf("planning step %d: %w", res.StepsTaken+1, err)
		}

		switch action.Kind {
		case ActionAnswer:
			if err := l.sessions.Append(params.SessionKey, session.Turn{
				Role:    session.RoleAssistant,
				Content: action.Text,
			}); err != nil {
				res.Status = StatusFailed
				return res, err
			}
			res.Status = StatusDone
			res.Answer = action.Text
			return res, nil

		case ActionCallTool:
			// Executing. Both turns of the round are appended
			// unconditionally so the transcript reflects every attempted
			// call, including failed ones.
			stepIndex := res.StepsTaken + 1

			if err := l.sessions.Append(params.SessionKey, session.Turn{
				Role:      session.RoleToolCall,
				ToolName:  action.Tool,
				StepIndex: stepIndex,
				Payload:   map[string]interface{}{"tool": action.Tool, "input": action.Input},
			}); err != nil {
				res.Status = StatusFailed
				return res, err
			}

			logger.Info().
				Str("tool", action.Tool).
				Int("step", stepIndex).
				Msg("Executing tool")

			inv, invErr := l.runner.Invoke(ctx, view, action.Tool, action.Input, params.ToolTimeout)
			obs := buildObservation(action.Tool, inv, invErr)

			if err := l.sessions.Append(params.SessionKey, session.Turn{
				Role:      session.RoleToolResult,
				ToolName:  action.Tool,
				StepIndex: stepIndex,
				Payload:   obs,
			}); err != nil {
				res.Status = StatusFailed
				return res, err
			}

			// Observing. Every tool call costs one step regardless of
			// outcome.
			res.StepsTaken++

		default:
			res.Status = StatusFailed
			return res, fmt.Errorf("%w: unknown action kind %q", ErrEngine, action.Kind)
		}
	}
}

func catalogFromView(view *registry.View) []CatalogEntry {
	specs := view.List()
	catalog := make([]CatalogEntry, 0, len(specs))
	for _, spec := range specs {
		catalog = append(catalog, CatalogEntry{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	return catalog
}
