package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/internal/logger"
	"github.com/harun/gofer/pkg/agent"
	"github.com/harun/gofer/pkg/registry"
	"github.com/harun/gofer/pkg/session"
	"github.com/harun/gofer/pkg/toolrunner"
	"github.com/rs/zerolog"
)

// Daemon wires the registry, runner, session store, engines, and loop into
// one message-handling core. Transports (Telegram, CLI) talk to it through
// HandleMessage and the explicit session operations.
type Daemon struct {
	config   *config.Config
	logger   zerolog.Logger
	sessions *session.Store
	registry *registry.Registry
	watcher  *registry.Watcher
	runner   *toolrunner.Runner
	router   *Router
	loop     *agent.Loop

	providers []agent.LLMProvider
	engines   map[string]agent.Engine

	// Per-session engine choice, defaulting to config. In-memory only: a
	// restart falls back to the configured engine.
	engineMu       sync.Mutex
	sessionEngines map[string]string
}

// New creates a daemon from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	zl := log.GetZerolog()

	providers, err := agent.NewProviders(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}

	engines := map[string]agent.Engine{
		"direct": agent.NewDirectEngine(providers, cfg.Engine, zl),
		"team":   agent.NewTeamEngine(providers, cfg.Engine, zl),
	}

	defaultEngine, ok := engines[cfg.Engine.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown engine kind: %s", cfg.Engine.Kind)
	}

	reg, err := registry.Load(cfg.Tools.RegistryPath, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool registry: %w", err)
	}

	sessions, err := session.New(filepath.Join(cfg.DataDir, "sessions"), zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	runner := toolrunner.New(zl)

	d := &Daemon{
		config:         cfg,
		logger:         zl.With().Str("component", "daemon").Logger(),
		sessions:       sessions,
		registry:       reg,
		runner:         runner,
		router:         NewRouter(zl),
		loop:           agent.NewLoop(defaultEngine, runner, sessions, reg, zl),
		providers:      providers,
		engines:        engines,
		sessionEngines: make(map[string]string),
	}

	if cfg.Tools.Watch {
		watcher, err := registry.NewWatcher(reg, registry.WatcherConfig{}, zl)
		if err != nil {
			return nil, fmt.Errorf("failed to create registry watcher: %w", err)
		}
		d.watcher = watcher
	}

	return d, nil
}

// Start begins background work (registry watching).
func (d *Daemon) Start() error {
	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			return err
		}
	}

	d.logger.Info().
		Str("engine", d.config.Engine.Kind).
		Int("tools", d.registry.View().Len()).
		Msg("Daemon started")

	return nil
}

// Stop shuts the daemon down.
func (d *Daemon) Stop() error {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop registry watcher")
		}
	}

	if err := d.sessions.Close(); err != nil {
		return err
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Sessions exposes the session store for transports.
func (d *Daemon) Sessions() *session.Store {
	return d.sessions
}

// Registry exposes the tool registry for transports.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// EngineFor returns the engine kind active for a session.
func (d *Daemon) EngineFor(key string) string {
	d.engineMu.Lock()
	defer d.engineMu.Unlock()

	if kind, ok := d.sessionEngines[key]; ok {
		return kind
	}
	return d.config.Engine.Kind
}

// SetEngine switches the engine kind for a session.
func (d *Daemon) SetEngine(key, kind string) error {
	if _, ok := d.engines[kind]; !ok {
		return fmt.Errorf("unknown engine kind: %s", kind)
	}

	d.engineMu.Lock()
	d.sessionEngines[key] = kind
	d.engineMu.Unlock()

	d.logger.Info().
		Str("session_key", key).
		Str("engine", kind).
		Msg("Session engine changed")

	return nil
}

// EngineKinds returns the configured engine kinds.
func (d *Daemon) EngineKinds() []string {
	return []string{"direct", "team"}
}
