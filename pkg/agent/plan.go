package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/gofer/pkg/session"
)

// The planner contract: the model must return exactly one JSON object,
// either a tool run or a final answer. Everything else is rejected and
// re-prompted up to the configured retry budget.
const plannerSystemPrompt = `You plan the next action for a tool-using assistant. Return ONLY valid JSON.
Contract:
1) {"action":"run","tool":"TOOL_NAME","input":{}}
2) {"action":"final","answer":"..."}
Rules:
- action must be run or final.
- Only use tool names from the provided list.
- When an observation is present, the next step must be based on it.
- If the goal is satisfied, return action=final.
- Reply with JSON only, no markdown or surrounding text.
- If the user explicitly asks to run a known tool, return action=run directly.`

const retryPrompt = "Your previous output was invalid. Return ONLY valid JSON following the contract."

// planPayload is the user-turn context handed to the planning model.
type planPayload struct {
	Goal              string        `json:"goal"`
	Step              int           `json:"step"`
	LatestObservation interface{}   `json:"latest_observation"`
	ToolsIndex        []toolSummary `json:"tools_index"`
}

type toolSummary struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Required    []string               `json:"required"`
	Fields      map[string]interface{} `json:"fields"`
}

// buildPlanPayload extracts the planning context from a transcript: the most
// recent user goal, the most recent observation, and the step count so far.
func buildPlanPayload(transcript []session.Turn, catalog []CatalogEntry) planPayload {
	payload := planPayload{
		ToolsIndex: toolIndex(catalog),
	}

	for i := len(transcript) - 1; i >= 0; i-- {
		t := transcript[i]
		if payload.Goal == "" && t.Role == session.RoleUser {
			payload.Goal = t.Content
		}
		if payload.LatestObservation == nil && t.Role == session.RoleToolResult {
			payload.LatestObservation = t.Payload
			payload.Step = t.StepIndex
		}
		if payload.Goal != "" && payload.LatestObservation != nil {
			break
		}
	}

	return payload
}

// toolIndex compacts the catalog for the prompt: field types instead of full
// schemas keeps the payload small for local models.
func toolIndex(catalog []CatalogEntry) []toolSummary {
	index := make([]toolSummary, 0, len(catalog))

	for _, entry := range catalog {
		summary := toolSummary{
			Name:        entry.Name,
			Description: entry.Description,
			Required:    []string{},
			Fields:      map[string]interface{}{},
		}

		if req, ok := entry.InputSchema["required"].([]interface{}); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					summary.Required = append(summary.Required, s)
				}
			}
		}

		if props, ok := entry.InputSchema["properties"].(map[string]interface{}); ok {
			for key, prop := range props {
				typ := "any"
				if p, ok := prop.(map[string]interface{}); ok {
					if t, ok := p["type"].(string); ok {
						typ = t
					}
				}
				summary.Fields[key] = typ
			}
		}

		index = append(index, summary)
	}

	return index
}

// compactJSON serializes a value and truncates it to keep prompts bounded.
func compactJSON(value interface{}, maxLen int) string {
	data, err := json.Marshal(value)
	if err != nil {
		s := fmt.Sprintf("%v", value)
		if len(s) > maxLen {
			return s[:maxLen] + " ...[truncated]"
		}
		return s
	}

	s := string(data)
	if len(s) > maxLen {
		return s[:maxLen] + " ...[truncated]"
	}
	return s
}

// extractFirstJSONObject pulls the first balanced-looking JSON object out of
// model output, tolerating markdown fences and surrounding prose.
func extractFirstJSONObject(text string) (map[string]interface{}, error) {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}

	return obj, nil
}

// parsePlan validates a planner response against the contract and converts
// it into an Action.
func parsePlan(content string) (Action, error) {
	plan, err := extractFirstJSONObject(content)
	if err != nil {
		return Action{}, err
	}

	actionName, _ := plan["action"].(string)
	switch actionName {
	case "final":
		answer, ok := plan["answer"].(string)
		if !ok {
			return Action{}, fmt.Errorf("final requires answer")
		}
		return Action{Kind: ActionAnswer, Text: answer}, nil

	case "run":
		// Unknown tool names are not rejected here: the runner reports them
		// as a failed observation so the planner can correct itself.
		tool, ok := plan["tool"].(string)
		if !ok || tool == "" {
			return Action{}, fmt.Errorf("run requires tool")
		}
		input, ok := plan["input"].(map[string]interface{})
		if !ok {
			input = map[string]interface{}{}
		}
		return Action{Kind: ActionCallTool, Tool: tool, Input: input}, nil

	default:
		return Action{}, fmt.Errorf("invalid action %q", actionName)
	}
}
