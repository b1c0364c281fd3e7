package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harun/gofer/internal/observability"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrLoad is returned when a registry file fails validation; the previous
	// table, if any, stays authoritative.
	ErrLoad = errors.New("registry load failed")

	// ErrUnknownTool is returned when a tool name is absent from the table
	ErrUnknownTool = errors.New("unknown tool")
)

// ToolSpec describes one callable external tool.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Entrypoint  string                 `json:"entrypoint"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`

	// Absolute entrypoint path resolved at load time
	ResolvedEntrypoint string `json:"-"`

	compiled *gojsonschema.Schema
}

// ValidateInput validates an input payload against the spec's input schema.
func (s *ToolSpec) ValidateInput(input map[string]interface{}) error {
	if s.compiled == nil {
		return fmt.Errorf("tool %s has no compiled schema", s.Name)
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("input validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// View is an immutable snapshot of the registry table. A view handed out
// before a reload keeps serving its own table, so a run in progress never
// observes a half-swapped registry.
type View struct {
	specs  []*ToolSpec
	byName map[string]*ToolSpec
}

// Lookup resolves a tool by name.
func (v *View) Lookup(name string) (*ToolSpec, error) {
	spec, ok := v.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return spec, nil
}

// List returns the specs in registration order.
func (v *View) List() []*ToolSpec {
	out := make([]*ToolSpec, len(v.specs))
	copy(out, v.specs)
	return out
}

// Len returns the number of tools in the view.
func (v *View) Len() int {
	return len(v.specs)
}

// Registry owns the active tool table and swaps it atomically on reload.
type Registry struct {
	path   string
	logger zerolog.Logger

	mu   sync.RWMutex
	view *View
}

// Load reads and validates the registry file. Any violation fails the entire
// load; there is no partial registry.
func Load(path string, logger zerolog.Logger) (*Registry, error) {
	observability.EnsureRegistered()

	r := &Registry{
		path:   path,
		logger: logger.With().Str("component", "registry").Logger(),
	}

	view, err := loadView(path)
	if err != nil {
		observability.RecordRegistryReload(false, 0)
		return nil, err
	}

	r.view = view
	observability.RecordRegistryReload(true, view.Len())
	r.logger.Info().Int("tools", view.Len()).Str("path", path).Msg("Tool registry loaded")

	return r, nil
}

// Reload validates the file into a fresh table and swaps it in. On failure
// the previous table remains in use.
func (r *Registry) Reload() error {
	view, err := loadView(r.path)
	if err != nil {
		observability.RecordRegistryReload(false, 0)
		r.logger.Error().Err(err).Msg("Registry reload rejected, previous table stays active")
		return err
	}

	r.mu.Lock()
	r.view = view
	r.mu.Unlock()

	observability.RecordRegistryReload(true, view.Len())
	r.logger.Info().Int("tools", view.Len()).Msg("Tool registry reloaded")

	return nil
}

// View returns the current table snapshot.
func (r *Registry) View() *View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Lookup resolves a tool in the current table.
func (r *Registry) Lookup(name string) (*ToolSpec, error) {
	return r.View().Lookup(name)
}

// List returns the current table's specs in registration order.
func (r *Registry) List() []*ToolSpec {
	return r.View().List()
}

func loadView(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	var specs []*ToolSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrLoad, err)
	}

	view := &View{
		specs:  make([]*ToolSpec, 0, len(specs)),
		byName: make(map[string]*ToolSpec, len(specs)),
	}

	baseDir := filepath.Dir(path)

	for i, spec := range specs {
		if spec == nil {
			return nil, fmt.Errorf("%w: entry %d is null", ErrLoad, i)
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has empty name", ErrLoad, i)
		}
		if _, exists := view.byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate tool name %q", ErrLoad, spec.Name)
		}

		resolved, err := resolveEntrypoint(baseDir, spec.Entrypoint)
		if err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrLoad, spec.Name, err)
		}
		spec.ResolvedEntrypoint = resolved

		if err := compileSchema(spec); err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrLoad, spec.Name, err)
		}

		view.specs = append(view.specs, spec)
		view.byName[spec.Name] = spec
	}

	return view, nil
}

func resolveEntrypoint(baseDir, entrypoint string) (string, error) {
	if entrypoint == "" {
		return "", fmt.Errorf("empty entrypoint")
	}

	candidate := entrypoint
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(baseDir, candidate)
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}

	// Bare command names may resolve on PATH instead
	if !strings.ContainsRune(entrypoint, os.PathSeparator) {
		if resolved, err := exec.LookPath(entrypoint); err == nil {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("entrypoint not resolvable: %s", entrypoint)
}

func compileSchema(spec *ToolSpec) error {
	if spec.InputSchema == nil {
		return fmt.Errorf("missing input_schema")
	}

	typ, _ := spec.InputSchema["type"].(string)
	if typ != "object" {
		return fmt.Errorf("input_schema type must be object, got %q", typ)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input_schema: %v", err)
	}

	spec.compiled = schema
	return nil
}
