package daemon

import (
	"strings"

	"github.com/harun/gofer/pkg/registry"
	"github.com/harun/gofer/pkg/session"
	"github.com/rs/zerolog"
)

// Directive is an explicit request that bypasses engine planning.
type Directive string

const (
	// DirectiveNone means ordinary text, handled per mode
	DirectiveNone Directive = "none"

	// DirectiveListTools requests the tool catalog
	DirectiveListTools Directive = "list_tools"

	// DirectiveCallTool requests one specific tool invocation
	DirectiveCallTool Directive = "call_tool"
)

// Decision is the router's classification of one message.
type Decision struct {
	Mode      session.Mode
	Directive Directive
	Tool      string
	Input     map[string]interface{}
}

// Phrases that push an llm-mode conversation into agent mode. The set leans
// Swedish because that is what the deployed conversations speak.
var agentTriggerWords = []string{
	"kör", "run", "start", "script", "skript",
	"läs fil", "read file", "hämta", "fetch",
	"databas", "database", "ta fram", "hitta", "sök",
	"jämför", "visa mig", "lista", "räkna", "beräkna", "analysera",
}

var runIntentWords = []string{"kör", "run", "start", "skr"}

var listToolsPhrases = []string{"tools", "list tools", "visa verktyg", "lista verktyg"}

// Router classifies incoming messages. Classify is a pure function of the
// session mode, the message text, and the registry view: replaying it with
// the same inputs yields the same decision. The router never touches the
// transcript; mode changes are applied by the caller.
type Router struct {
	logger zerolog.Logger
}

// NewRouter creates a message router.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Classify decides how one message should be handled.
func (r *Router) Classify(mode session.Mode, text string, view *registry.View) Decision {
	t := strings.ToLower(strings.TrimSpace(text))

	for _, phrase := range listToolsPhrases {
		if t == phrase {
			return Decision{Mode: mode, Directive: DirectiveListTools}
		}
	}

	if tool, input, ok := extractDirectToolCall(t, view); ok {
		return Decision{Mode: mode, Directive: DirectiveCallTool, Tool: tool, Input: input}
	}

	if mode == session.ModeLLM && hasAgentTrigger(t) {
		return Decision{Mode: session.ModeAgent, Directive: DirectiveNone}
	}

	return Decision{Mode: mode, Directive: DirectiveNone}
}

func hasAgentTrigger(t string) bool {
	if t == "" {
		return false
	}
	for _, trigger := range agentTriggerWords {
		if strings.Contains(t, trigger) {
			return true
		}
	}
	return false
}

func hasRunIntent(t string) bool {
	if t == "" {
		return false
	}
	for _, w := range runIntentWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// extractDirectToolCall recognizes "run <tool>" style requests that name a
// registered tool, and builds an input from the schema's declared defaults.
func extractDirectToolCall(t string, view *registry.View) (string, map[string]interface{}, bool) {
	if view == nil || !hasRunIntent(t) {
		return "", nil, false
	}

	for _, spec := range view.List() {
		if spec.Name == "" || !strings.Contains(t, strings.ToLower(spec.Name)) {
			continue
		}
		return spec.Name, defaultInput(spec.InputSchema), true
	}

	return "", nil, false
}

// defaultInput collects the schema properties that declare a default value.
func defaultInput(schema map[string]interface{}) map[string]interface{} {
	input := map[string]interface{}{}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return input
	}

	for key, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if def, ok := prop["default"]; ok {
			input[key] = def
		}
	}

	return input
}
