package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider replays scripted responses; the last one repeats.
type stubProvider struct {
	responses []string
	err       error
	calls     int
}

func (s *stubProvider) Provider() string { return "stub" }

func (s *stubProvider) Call(ctx context.Context, req LLMRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{Kind: "direct", Model: "test-model", MaxTokens: 512, PlanRetries: 2}
}

func testTranscript() []session.Turn {
	return []session.Turn{{Role: session.RoleUser, Content: "echo hi"}}
}

func TestDirectProposeFinal(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"action":"final","answer":"42"}`}}
	engine := NewDirectEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
	assert.Equal(t, "42", action.Text)
	assert.Equal(t, 1, provider.calls)
}

func TestDirectProposeRun(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"action":"run","tool":"echo","input":{"text":"hi"}}`}}
	engine := NewDirectEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCallTool, action.Kind)
	assert.Equal(t, "echo", action.Tool)
	assert.Equal(t, "hi", action.Input["text"])
}

func TestDirectProposeRetriesInvalidOutput(t *testing.T) {
	provider := &stubProvider{responses: []string{
		"sure, let me think about that",
		`{"action":"final","answer":"ok"}`,
	}}
	engine := NewDirectEngine([]LLMProvider{provider}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
	assert.Equal(t, 2, provider.calls)
}

func TestDirectProposeExhaustsRetries(t *testing.T) {
	provider := &stubProvider{responses: []string{"not json, ever"}}
	cfg := testEngineConfig()
	cfg.PlanRetries = 1
	engine := NewDirectEngine([]LLMProvider{provider}, cfg, zerolog.Nop())

	_, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
	assert.Equal(t, 2, provider.calls) // initial attempt + one retry
}

func TestDirectProposeProviderFailover(t *testing.T) {
	broken := &stubProvider{err: errors.New("connection refused")}
	healthy := &stubProvider{responses: []string{`{"action":"final","answer":"ok"}`}}
	engine := NewDirectEngine([]LLMProvider{broken, healthy}, testEngineConfig(), zerolog.Nop())

	action, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, action.Kind)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestDirectProposeAllProvidersDown(t *testing.T) {
	broken := &stubProvider{err: errors.New("connection refused")}
	engine := NewDirectEngine([]LLMProvider{broken}, testEngineConfig(), zerolog.Nop())

	_, err := engine.Propose(context.Background(), testTranscript(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
}

func TestNewProvidersOrdersByPriority(t *testing.T) {
	providers, err := NewProviders([]config.ProviderConfig{
		{Name: "anthropic", APIKey: "k1", Priority: 2},
		{Name: "openai", APIKey: "k2", Priority: 1},
	})
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0].Provider())
	assert.Equal(t, "anthropic", providers[1].Provider())
}

func TestNewProvidersRejectsUnknown(t *testing.T) {
	_, err := NewProviders([]config.ProviderConfig{{Name: "acme", APIKey: "k"}})
	assert.Error(t, err)

	_, err = NewProviders(nil)
	assert.Error(t, err)
}
