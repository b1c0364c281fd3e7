package agent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamProposeApproved(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"action":"run","tool":"echo","input":{"text":"hi"}}`,
		`{"verdict":"approve"}`,
	}}
	engine := NewTeamEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCallTool, action.Kind)
	assert.Equal(t, "echo", action.Tool)
	assert.Equal(t, 2, provider.calls)
}

func TestTeamProposeRevised(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"action":"final","answer":"probably done"}`,
		`{"verdict":"revise","action":{"action":"run","tool":"echo","input":{"text":"verify"}}}`,
	}}
	engine := NewTeamEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCallTool, action.Kind)
	assert.Equal(t, "echo", action.Tool)
	assert.Equal(t, "verify", action.Input["text"])
}

func TestTeamProposeReviewerForfeitsOnBadOutput(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"action":"final","answer":"done"}`,
		`i cannot decide`,
	}}
	engine := NewTeamEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	// The planner's proposal stands when the reviewer goes off-contract
	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
	assert.Equal(t, "done", action.Text)
}

func TestTeamProposeReviewerOffContractRevision(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"action":"final","answer":"done"}`,
		`{"verdict":"revise","action":{"action":"dance"}}`,
	}}
	engine := NewTeamEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
}

func TestTeamProposePlannerFailureIsFatal(t *testing.T) {
	provider := &stubProvider{responses: []string{`never json`}}
	cfg := testEngineConfig()
	cfg.PlanRetries = 0
	engine := NewTeamEngine([]LLMProvider{provider}, cfg, zerolog.Nop())

	_, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
}
