// Package models discovers model definitions and builds the registry handed
// to the rest of the application. Loading is two-pass: every definition is
// instantiated before any association callback runs, so associations may
// reference models defined later in directory order.
package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
)

// Attribute describes one field of a model schema.
type Attribute struct {
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Unique     bool   `json:"unique"`
	PrimaryKey bool   `json:"primaryKey"`
}

// Association declares a relation to another model by name. Targets are
// resolved against the complete registry in the second load pass.
type Association struct {
	Kind       string `json:"kind"` // hasOne | hasMany | belongsTo
	Target     string `json:"target"`
	ForeignKey string `json:"foreignKey,omitempty"`
}

// Model is one instantiated model bound to the live connection.
type Model struct {
	Name         string
	TableName    string
	Attributes   map[string]Attribute
	Associations []Association

	related map[string]*Model
}

// Related returns the resolved model behind an association target. It is
// populated during the second load pass.
func (m *Model) Related(name string) (*Model, bool) {
	rel, ok := m.related[name]
	return rel, ok
}

// Definition is the loadable unit: a name, a definer that instantiates the
// model against the connection, and an optional association callback invoked
// with the complete registry.
type Definition struct {
	Name      string
	Define    func(ctx context.Context, conn adapter.Connection) (*Model, error)
	Associate func(ctx context.Context, reg *Registry) error
}

// Stage names for load failures.
const (
	StageDefine    = "define"
	StageAssociate = "associate"
)

// LoadFailure records one definition that could not be loaded or wired. A
// broken model is excluded from the registry, never aborting the load.
type LoadFailure struct {
	Name  string
	Stage string
	Err   error
}

// ModelLoadError reports a definition that failed to instantiate.
type ModelLoadError struct {
	Name  string
	Cause error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model %q failed to load: %v", e.Name, e.Cause)
}

func (e *ModelLoadError) Unwrap() error { return e.Cause }

// AssociationWiringError reports an association callback failure.
type AssociationWiringError struct {
	Name  string
	Cause error
}

func (e *AssociationWiringError) Error() string {
	return fmt.Sprintf("model %q association wiring failed: %v", e.Name, e.Cause)
}

func (e *AssociationWiringError) Unwrap() error { return e.Cause }

// Registry is the read-only lookup table built by Load: model name to
// instance, plus the raw connection and the structured load failures.
// Callers hold it and pass it explicitly; there is no package-global copy.
type Registry struct {
	conn     adapter.Connection
	models   map[string]*Model
	failures []LoadFailure
}

// Connection returns the live connection the models were loaded against.
func (r *Registry) Connection() adapter.Connection { return r.conn }

// Model looks up one model by name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models returns all loaded models sorted by name.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failures returns the definitions that failed to load or wire.
func (r *Registry) Failures() []LoadFailure { return r.failures }

// Degraded reports whether any definition failed; health checks surface it.
func (r *Registry) Degraded() bool { return len(r.failures) > 0 }

// Load instantiates every definition against conn, then wires associations.
// Per-definition failures are logged, recorded on the registry and skipped;
// only a nil connection is a hard error.
func Load(ctx context.Context, conn adapter.Connection, defs []Definition, logger *zap.SugaredLogger) (*Registry, error) {
	if conn == nil {
		return nil, errors.New("models: load requires a live connection")
	}

	reg := &Registry{
		conn:   conn,
		models: make(map[string]*Model, len(defs)),
	}

	// Pass 1: instantiate. Duplicate names are rejected, the later
	// definition loses.
	defined := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if _, dup := reg.models[def.Name]; dup {
			err := &ModelLoadError{Name: def.Name, Cause: errors.New("duplicate model name")}
			logger.Warnw("skipping duplicate model definition", "model", def.Name)
			reg.failures = append(reg.failures, LoadFailure{Name: def.Name, Stage: StageDefine, Err: err})
			continue
		}
		model, err := def.Define(ctx, conn)
		if err != nil {
			loadErr := &ModelLoadError{Name: def.Name, Cause: err}
			logger.Warnw("model failed to load", "model", def.Name, "error", err)
			reg.failures = append(reg.failures, LoadFailure{Name: def.Name, Stage: StageDefine, Err: loadErr})
			continue
		}
		reg.models[def.Name] = model
		defined = append(defined, def)
	}

	// Pass 2: every callback sees the complete pass-1 map, so the models
	// that failed wiring are removed only after the whole pass finishes.
	var wireFailed []string
	for _, def := range defined {
		if def.Associate == nil {
			continue
		}
		if err := def.Associate(ctx, reg); err != nil {
			wireErr := &AssociationWiringError{Name: def.Name, Cause: err}
			logger.Warnw("association wiring failed", "model", def.Name, "error", err)
			reg.failures = append(reg.failures, LoadFailure{Name: def.Name, Stage: StageAssociate, Err: wireErr})
			wireFailed = append(wireFailed, def.Name)
		}
	}
	for _, name := range wireFailed {
		delete(reg.models, name)
	}

	logger.Infow("model registry built",
		"models", len(reg.models), "failures", len(reg.failures))
	return reg, nil
}
