package toolrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/harun/gofer/internal/observability"
	"github.com/harun/gofer/pkg/registry"
	"github.com/rs/zerolog"
)

const maxStderrBytes = 2048

// Resolver resolves tool names to specs. Both *registry.Registry and a
// pinned *registry.View satisfy it; the agent loop passes a view so a step
// keeps the registry version it planned against.
type Resolver interface {
	Lookup(name string) (*registry.ToolSpec, error)
}

// Invocation records one attempted tool call.
type Invocation struct {
	Tool     string                 `json:"tool"`
	Input    map[string]interface{} `json:"input"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Stderr   string                 `json:"stderr,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Runner executes tool entrypoints as isolated subprocesses. It writes the
// input payload as one JSON document to stdin and expects exactly one JSON
// object on stdout; stderr is captured as diagnostics only. The runner holds
// no cross-call state.
type Runner struct {
	logger zerolog.Logger
}

// New creates a new tool runner
func New(logger zerolog.Logger) *Runner {
	observability.EnsureRegistered()

	return &Runner{
		logger: logger.With().Str("component", "toolrunner").Logger(),
	}
}

// Invoke validates the input against the tool's schema and runs its
// entrypoint under the given timeout. Validation failures never start a
// process. The returned Invocation carries diagnostics even on failure.
func (r *Runner) Invoke(ctx context.Context, tools Resolver, name string, input map[string]interface{}, timeout time.Duration) (*Invocation, error) {
	inv := &Invocation{Tool: name, Input: input}
	start := time.Now()

	defer func() {
		inv.Duration = time.Since(start)
	}()

	spec, err := tools.Lookup(name)
	if err != nil {
		observability.RecordToolInvocation(name, Outcome(err), time.Since(start))
		return inv, err
	}

	if input == nil {
		input = map[string]interface{}{}
		inv.Input = input
	}

	if err := spec.ValidateInput(input); err != nil {
		terr := &ToolError{Tool: name, Kind: ErrSchemaValidation, Message: err.Error()}
		observability.RecordToolInvocation(name, Outcome(terr), time.Since(start))
		return inv, terr
	}

	payload, err := json.Marshal(input)
	if err != nil {
		terr := &ToolError{Tool: name, Kind: ErrSchemaValidation, Message: fmt.Sprintf("input not serializable: %v", err)}
		observability.RecordToolInvocation(name, Outcome(terr), time.Since(start))
		return inv, terr
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// CommandContext kills the process when the deadline fires, and Run
	// waits for it, so no process outlives the call. WaitDelay bounds the
	// wait when a child of the tool keeps the stdout pipe open after the
	// kill.
	cmd := exec.CommandContext(execCtx, spec.ResolvedEntrypoint)
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	inv.Stderr = truncate(stderr.String(), maxStderrBytes)

	// A cancelled parent context is not the tool's fault; surface it as an
	// interruption rather than a process failure.
	if execCtx.Err() == context.Canceled {
		r.record(inv, context.Canceled, start)
		return inv, fmt.Errorf("tool %q interrupted: %w", name, context.Canceled)
	}

	if execCtx.Err() == context.DeadlineExceeded {
		terr := &ToolError{
			Tool:    name,
			Kind:    ErrProcessTimeout,
			Message: fmt.Sprintf("exceeded timeout of %s", timeout),
			Stderr:  inv.Stderr,
		}
		r.record(inv, terr, start)
		return inv, terr
	}

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		terr := &ToolError{
			Tool:    name,
			Kind:    ErrProcess,
			Message: fmt.Sprintf("exit code %d", exitCode),
			Stderr:  inv.Stderr,
		}
		r.record(inv, terr, start)
		return inv, terr
	}

	output, err := decodeSingleObject(stdout.Bytes())
	if err != nil {
		terr := &ToolError{
			Tool:    name,
			Kind:    ErrMalformedOutput,
			Message: err.Error(),
			Stderr:  inv.Stderr,
		}
		r.record(inv, terr, start)
		return inv, terr
	}

	inv.Output = output
	r.record(inv, nil, start)

	return inv, nil
}

func (r *Runner) record(inv *Invocation, err error, start time.Time) {
	d := time.Since(start)
	observability.RecordToolInvocation(inv.Tool, Outcome(err), d)

	evt := r.logger.Debug()
	if err != nil {
		evt = r.logger.Warn().Err(err)
	}
	evt.
		Str("tool", inv.Tool).
		Dur("duration", d).
		Msg("Tool invocation finished")
}

// decodeSingleObject requires stdout to contain exactly one JSON object,
// optionally surrounded by whitespace.
func decodeSingleObject(data []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty stdout")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("not a JSON object: %v", err)
	}

	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}

	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
