package agent

import (
	"github.com/harun/gofer/pkg/toolrunner"
)

const (
	observationMaxItems   = 10
	observationMaxKeys    = 20
	observationMaxPreview = 8
)

// buildObservation wraps one invocation outcome in the envelope the engine
// plans against: {ok, tool, result} on success, {ok, tool, error} on
// failure. Failures carry the taxonomy type so the planner can distinguish
// a bad input from a crashed tool.
func buildObservation(tool string, inv *toolrunner.Invocation, err error) map[string]interface{} {
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
		"result": summarizeResult(inv.Output),
	}
}

// summarizeResult compacts a tool result for the transcript and the planning
// prompt. Item lists are capped; large flat objects are reduced to their key
// set plus a preview.
func summarizeResult(output map[string]interface{}) map[string]interface{} {
	summary := map[string]interface{}{}

	if items, ok := output["items"].([]interface{}); ok {
		summary["items_count"] = len(items)
		if len(items) > observationMaxItems {
			items = items[:observationMaxItems]
		}
		summary["items_top"] = items
	}

	for _, k := range []string{"out_file", "run_at", "source", "query_url"} {
		if v, ok := output[k]; ok {
			summary[k] = v
		}
	}

	if len(summary) > 0 {
		return summary
	}

	keys := make([]string, 0, len(output))
	for k := range output {
		keys = append(keys, k)
		if len(keys) == observationMaxKeys {
			break
		}
	}
	summary["keys"] = keys

	preview := map[string]interface{}{}
	for _, k := range keys {
		preview[k] = output[k]
		if len(preview) == observationMaxPreview {
			break
		}
	}
	summary["preview"] = preview

	return summary
}
