package toolrunner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/harun/gofer/pkg/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRegistry builds a real registry whose tools are small shell scripts.
func testRegistry(t *testing.T, tools map[string]string) *registry.Registry {
	t.Helper()
	dir := t.TempDir()

	entries := make([]map[string]interface{}, 0, len(tools))
	for name, body := range tools {
		script := filepath.Join(dir, name+".sh")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755))

		entries = append(entries, map[string]interface{}{
			"name":        name,
			"entrypoint":  script,
			"description": "test tool",
			"input_schema": map[string]interface{}{
				"type":       "object",
				"required":   []string{"text"},
				"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
			},
		})
	}

	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(dir, "tools.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	reg, err := registry.Load(path, zerolog.Nop())
	require.NoError(t, err)
	return reg
}

func TestInvokeEchoScenario(t *testing.T) {
	reg := testRegistry(t, map[string]string{"echo": `cat`})
	runner := New(zerolog.Nop())

	inv, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{"text": "hi"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"text": "hi"}, inv.Output)
	assert.Greater(t, inv.Duration, time.Duration(0))
}

func TestInvokeUnknownTool(t *testing.T) {
	reg := testRegistry(t, map[string]string{"echo": `cat`})
	runner := New(zerolog.Nop())

	_, err := runner.Invoke(context.Background(), reg.View(), "nope", map[string]interface{}{}, time.Second)
	assert.ErrorIs(t, err, registry.ErrUnknownTool)
}

func TestInvokeSchemaValidationSpawnsNoProcess(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "spawned")

	reg := testRegistry(t, map[string]string{"echo": `touch ` + marker + `; cat`})
	runner := New(zerolog.Nop())

	_, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)

	// The entrypoint never ran
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvokeProcessError(t *testing.T) {
	reg := testRegistry(t, map[string]string{"echo": `echo "boom" >&2; exit 3`})
	runner := New(zerolog.Nop())

	inv, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{"text": "hi"}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcess)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, inv.Stderr, "boom")
}

func TestInvokeTimeoutKillsProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	reg := testRegistry(t, map[string]string{"echo": `echo $$ > ` + pidFile + `; sleep 5; echo '{}'`})
	runner := New(zerolog.Nop())

	start := time.Now()
	_, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{"text": "hi"}, 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessTimeout)

	// Invoke waited for termination, not for the full sleep
	assert.Less(t, time.Since(start), 3*time.Second)

	// The tool process itself is gone once Invoke returns
	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestInvokeParentCancellationIsNotAProcessFailure(t *testing.T) {
	reg := testRegistry(t, map[string]string{"echo": `sleep 5; echo '{}'`})
	runner := New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := runner.Invoke(ctx, reg.View(), "echo", map[string]interface{}{"text": "hi"}, 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrProcess)
	assert.NotErrorIs(t, err, ErrProcessTimeout)
}

func TestInvokeMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"not json":     `echo "hello world"`,
		"empty stdout": `true`,
		"two objects":  `echo '{"a":1} {"b":2}'`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			reg := testRegistry(t, map[string]string{"echo": body})
			runner := New(zerolog.Nop())

			_, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{"text": "hi"}, time.Second)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestInvokeStderrIsDiagnosticOnly(t *testing.T) {
	reg := testRegistry(t, map[string]string{"echo": `echo "noise" >&2; echo '{"ok":true}'`})
	runner := New(zerolog.Nop())

	inv, err := runner.Invoke(context.Background(), reg.View(), "echo", map[string]interface{}{"text": "hi"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, inv.Output)
	assert.Contains(t, inv.Stderr, "noise")
}

func TestOutcomeTaxonomy(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "schema_validation", Outcome(&ToolError{Kind: ErrSchemaValidation}))
	assert.Equal(t, "process_timeout", Outcome(&ToolError{Kind: ErrProcessTimeout}))
	assert.Equal(t, "malformed_output", Outcome(&ToolError{Kind: ErrMalformedOutput}))
	assert.Equal(t, "process", Outcome(&ToolError{Kind: ErrProcess}))
	assert.Equal(t, "interrupted", Outcome(context.Canceled))
}
