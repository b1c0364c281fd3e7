package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/gofer/pkg/agent"
	"github.com/harun/gofer/pkg/session"
	"github.com/harun/gofer/pkg/toolrunner"
)

const chatSystemPrompt = "You have two modes: LLM mode (default) and agent mode (when needed). " +
	"In LLM mode, answer directly, short and concrete, without tools or meta-questions. " +
	"Only ask a follow-up question when the answer would otherwise be useless."

const observationMaxReplyLen = 2000

// HandleMessage classifies one message, applies any mode change, and
// dispatches it: directives bypass planning, agent mode enters the loop,
// llm mode is a plain chat exchange. The returned string is the reply to
// show the user.
func (d *Daemon) HandleMessage(ctx context.Context, key, text string) (string, error) {
	sess, err := d.sessions.GetOrCreate(key)
	if err != nil {
		return "", err
	}

	decision := d.router.Classify(sess.Mode, text, d.registry.View())

	if decision.Mode != sess.Mode {
		if err := d.sessions.SetMode(key, decision.Mode); err != nil {
			return "", err
		}
	}

	switch decision.Directive {
	case DirectiveListTools:
		return d.FormatToolList(), nil
	case DirectiveCallTool:
		return d.RunDirect(ctx, key, decision.Tool, decision.Input)
	}

	if decision.Mode == session.ModeAgent {
		return d.runAgent(ctx, key, text)
	}

	return d.chat(ctx, key, text)
}

// runAgent drives one bounded agent run and renders its terminal state.
func (d *Daemon) runAgent(ctx context.Context, key, text string) (string, error) {
	result, err := d.loop.Run(ctx, agent.RunParams{
		SessionKey:  key,
		Goal:        text,
		MaxSteps:    d.config.Agent.MaxSteps,
		ToolTimeout: d.config.Tools.Timeout,
		Engine:      d.engines[d.EngineFor(key)],
	})

	switch result.Status {
	case agent.StatusDone:
		return result.Answer, nil

	case agent.StatusAborted:
		if result.BudgetExhausted {
			return fmt.Sprintf("Could not complete within the step budget (%d steps taken). The attempted actions are in the session transcript.", result.StepsTaken), nil
		}
		return "Run cancelled. The attempted actions are in the session transcript.", nil

	default:
		d.logger.Error().Err(err).Str("session_key", key).Msg("Agent run failed")
		return fmt.Sprintf("Agent run failed: %v", err), nil
	}
}

// chat is the plain LLM exchange over the recent transcript.
func (d *Daemon) chat(ctx context.Context, key, text string) (string, error) {
	if err := d.sessions.Append(key, session.Turn{
		Role:    session.RoleUser,
		Content: text,
	}); err != nil {
		return "", err
	}

	snap, err := d.sessions.Snapshot(key)
	if err != nil {
		return "", err
	}

	answer, err := agent.Complete(ctx, d.providers, agent.LLMRequest{
		Model:        d.config.Engine.Model,
		Messages:     chatMessages(snap.Turns, d.config.Agent.ChatHistoryLimit),
		Temperature:  d.config.Engine.Temperature,
		MaxTokens:    d.config.Engine.MaxTokens,
		SystemPrompt: chatSystemPrompt,
	}, d.logger)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if err := d.sessions.Append(key, session.Turn{
		Role:    session.RoleAssistant,
		Content: answer,
	}); err != nil {
		return "", err
	}

	return answer, nil
}

// chatMessages converts the last limit user/assistant turns into provider
// messages. Tool turns stay out of the chat path.
func chatMessages(turns []session.Turn, limit int) []agent.Message {
	chat := make([]agent.Message, 0, limit)

	for _, t := range turns {
		if t.Role != session.RoleUser && t.Role != session.RoleAssistant {
			continue
		}
		chat = append(chat, agent.Message{Role: string(t.Role), Content: t.Content})
	}

	if limit > 0 && len(chat) > limit {
		chat = chat[len(chat)-limit:]
	}

	return chat
}

// RunDirect invokes one tool without engine planning, recording the round in
// the transcript like any agent step.
func (d *Daemon) RunDirect(ctx context.Context, key, tool string, input map[string]interface{}) (string, error) {
	if _, err := d.sessions.GetOrCreate(key); err != nil {
		return "", err
	}

	if err := d.sessions.Append(key, session.Turn{
		Role:     session.RoleToolCall,
		ToolName: tool,
		Payload:  map[string]interface{}{"tool": tool, "input": input},
	}); err != nil {
		return "", err
	}

	inv, invErr := d.runner.Invoke(ctx, d.registry.View(), tool, input, d.config.Tools.Timeout)
	obs := DirectObservation(tool, inv, invErr)

	if err := d.sessions.Append(key, session.Turn{
		Role:     session.RoleToolResult,
		ToolName: tool,
		Payload:  obs,
	}); err != nil {
		return "", err
	}

	return formatObservation(obs), nil
}

// DirectObservation wraps a direct invocation outcome in the same envelope
// the agent loop records.
func DirectObservation(tool string, inv *toolrunner.Invocation, err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{
			"ok":   false,
			"tool": tool,
			"error": map[string]interface{}{
				"type":    toolrunner.Outcome(err),
				"message": err.Error(),
			},
		}
	}
	return map[string]interface{}{
		"ok":     true,
		"tool":   tool,
		"result": inv.Output,
	}
}

func formatObservation(obs map[string]interface{}) string {
	s := compactValue(obs, observationMaxReplyLen)
	return "Observation:\n" + s
}

func compactValue(v interface{}, maxLen int) string {
	s := fmt.Sprintf("%v", v)
	if data, err := json.Marshal(v); err == nil {
		s = string(data)
	}
	if len(s) > maxLen {
		return s[:maxLen] + " ...[truncated]"
	}
	return s
}

// FormatToolList renders the current catalog for a user-facing reply.
func (d *Daemon) FormatToolList() string {
	specs := d.registry.List()
	if len(specs) == 0 {
		return "No tools registered."
	}

	lines := []string{"Tools:"}
	for _, spec := range specs {
		required := "-"
		if req, ok := spec.InputSchema["required"].([]interface{}); ok && len(req) > 0 {
			parts := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					parts = append(parts, s)
				}
			}
			required = strings.Join(parts, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (required: %s)", spec.Name, spec.Description, required))
	}

	return strings.Join(lines, "\n")
}
