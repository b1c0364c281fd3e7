package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/internal/logger"
	"github.com/harun/gofer/pkg/agent"
	"github.com/harun/gofer/pkg/session"
	"github.com/harun/gofer/pkg/toolrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()

	script := filepath.Join(dir, "echo.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat\n"), 0755))

	entries := []map[string]interface{}{{
		"name":        "echo",
		"entrypoint":  script,
		"description": "echoes its input",
		"input_schema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string", "default": "hello"},
			},
		},
	}}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	regPath := filepath.Join(dir, "tools.json")
	require.NoError(t, os.WriteFile(regPath, data, 0600))

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Tools.RegistryPath = regPath
	cfg.Tools.Watch = false
	cfg.Providers = []config.ProviderConfig{{Name: "openai", APIKey: "test-key"}}

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { d.Stop() })

	return d
}

func TestHandleMessageListToolsDirective(t *testing.T) {
	d := testDaemon(t)

	reply, err := d.HandleMessage(context.Background(), "chat-1", "tools")
	require.NoError(t, err)
	assert.Contains(t, reply, "echo")
	assert.Contains(t, reply, "echoes its input")
}

func TestHandleMessageDirectToolCall(t *testing.T) {
	d := testDaemon(t)

	reply, err := d.HandleMessage(context.Background(), "chat-1", "kör echo")
	require.NoError(t, err)
	assert.Contains(t, reply, "Observation:")
	assert.Contains(t, reply, `"ok":true`)

	// The direct round was recorded in the transcript
	snap, err := d.Sessions().Snapshot("chat-1")
	require.NoError(t, err)
	require.Len(t, snap.Turns, 2)
	assert.Equal(t, session.RoleToolCall, snap.Turns[0].Role)
	assert.Equal(t, session.RoleToolResult, snap.Turns[1].Role)
}

func TestRunDirectUnknownTool(t *testing.T) {
	d := testDaemon(t)

	reply, err := d.RunDirect(context.Background(), "chat-1", "nope", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, `"ok":false`)
	assert.Contains(t, reply, "unknown_tool")
}

func TestEngineSelection(t *testing.T) {
	d := testDaemon(t)

	assert.Equal(t, "direct", d.EngineFor("chat-1"))

	require.NoError(t, d.SetEngine("chat-1", "team"))
	assert.Equal(t, "team", d.EngineFor("chat-1"))
	assert.Equal(t, "direct", d.EngineFor("chat-2"))

	assert.Error(t, d.SetEngine("chat-1", "quantum"))
}

func TestChatMessagesFiltersAndLimits(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleUser, Content: "one"},
		{Role: session.RoleToolCall, ToolName: "echo"},
		{Role: session.RoleToolResult, ToolName: "echo"},
		{Role: session.RoleAssistant, Content: "two"},
		{Role: session.RoleUser, Content: "three"},
		{Role: session.RoleAssistant, Content: "four"},
	}

	msgs := chatMessages(turns, 2)
	require.Len(t, msgs, 2)
	assert.Equal(t, agent.Message{Role: "user", Content: "three"}, msgs[0])
	assert.Equal(t, agent.Message{Role: "assistant", Content: "four"}, msgs[1])
}

func TestDirectObservationEnvelope(t *testing.T) {
	inv := &toolrunner.Invocation{Tool: "echo", Output: map[string]interface{}{"text": "hi"}}

	obs := DirectObservation("echo", inv, nil)
	assert.Equal(t, true, obs["ok"])
	assert.Equal(t, map[string]interface{}{"text": "hi"}, obs["result"])

	obs = DirectObservation("echo", nil, &toolrunner.ToolError{
		Tool: "echo", Kind: toolrunner.ErrProcess, Message: "exit code 1",
	})
	assert.Equal(t, false, obs["ok"])
	errInfo := obs["error"].(map[string]interface{})
	assert.Equal(t, "process", errInfo["type"])
}

func TestNewRejectsUnknownEngineKind(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.Kind = "quantum"
	cfg.Providers = []config.ProviderConfig{{Name: "openai", APIKey: "test-key"}}

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine kind")
}
