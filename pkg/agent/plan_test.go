package agent

import (
	"testing"

	"github.com/harun/gofer/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFirstJSONObject(t *testing.T) {
	obj, err := extractFirstJSONObject(`{"action":"final","answer":"done"}`)
	require.NoError(t, err)
	assert.Equal(t, "final", obj["action"])

	// Markdown fences and prose around the object are tolerated
	obj, err = extractFirstJSONObject("Here you go:\n```json\n{\"action\":\"run\",\"tool\":\"echo\",\"input\":{}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "run", obj["action"])

	_, err = extractFirstJSONObject("no json here")
	assert.Error(t, err)

	_, err = extractFirstJSONObject("{broken")
	assert.Error(t, err)
}

func TestParsePlanFinal(t *testing.T) {
	action, err := parsePlan(`{"action":"final","answer":"42"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
	assert.Equal(t, "42", action.Text)
}

func TestParsePlanRun(t *testing.T) {
	action, err := parsePlan(`{"action":"run","tool":"echo","input":{"text":"hi"}}`)
	require.NoError(t, err)
	assert.Equal(t, ActionCallTool, action.Kind)
	assert.Equal(t, "echo", action.Tool)
	assert.Equal(t, map[string]interface{}{"text": "hi"}, action.Input)
}

func TestParsePlanRunWithoutInput(t *testing.T) {
	action, err := parsePlan(`{"action":"run","tool":"echo"}`)
	require.NoError(t, err)
	assert.NotNil(t, action.Input)
	assert.Empty(t, action.Input)
}

func TestParsePlanRejectsOffContract(t *testing.T) {
	cases := []string{
		`{"action":"dance"}`,
		`{"action":"run"}`,
		`{"action":"final"}`,
		`{"tool":"echo"}`,
	}
	for _, c := range cases {
		_, err := parsePlan(c)
		assert.Error(t, err, "should reject %s", c)
	}
}

func TestBuildPlanPayload(t *testing.T) {
	transcript := []session.Turn{
		{Role: session.RoleUser, Content: "old goal"},
		{Role: session.RoleAssistant, Content: "old answer"},
		{Role: session.RoleUser, Content: "fetch listings"},
		{Role: session.RoleToolCall, ToolName: "echo", StepIndex: 1},
		{Role: session.RoleToolResult, ToolName: "echo", StepIndex: 1, Payload: map[string]interface{}{"ok": true}},
	}

	payload := buildPlanPayload(transcript, nil)

	assert.Equal(t, "fetch listings", payload.Goal)
	assert.Equal(t, 1, payload.Step)
	require.NotNil(t, payload.LatestObservation)
}

func TestToolIndexCompactsSchemas(t *testing.T) {
	catalog := []CatalogEntry{{
		Name:        "echo",
		Description: "echoes its input",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"text"},
			"properties": map[string]interface{}{
				"text":  map[string]interface{}{"type": "string"},
				"loud":  map[string]interface{}{"type": "boolean"},
				"other": "not-an-object",
			},
		},
	}}

	index := toolIndex(catalog)
	require.Len(t, index, 1)
	assert.Equal(t, "echo", index[0].Name)
	assert.Equal(t, []string{"text"}, index[0].Required)
	assert.Equal(t, "string", index[0].Fields["text"])
	assert.Equal(t, "boolean", index[0].Fields["loud"])
	assert.Equal(t, "any", index[0].Fields["other"])
}

func TestCompactJSONTruncates(t *testing.T) {
	long := map[string]interface{}{"text": string(make([]byte, 500))}
	s := compactJSON(long, 100)
	assert.LessOrEqual(t, len(s), 100+len(" ...[truncated]"))
	assert.Contains(t, s, "[truncated]")

	short := compactJSON(map[string]interface{}{"a": 1}, 100)
	assert.Equal(t, `{"a":1}`, short)
}
