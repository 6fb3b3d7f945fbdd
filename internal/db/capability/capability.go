// Package capability describes each supported persistence adapter kind in a
// way the rest of the storage layer can consume uniformly: which config
// fields a kind requires, whether it supports ledger-tracked schema
// migrations, and which DDL flavor it speaks.
package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the canonical identifier for a persistence adapter kind.
type Kind string

const (
	// Relational covers SQL databases reached through database/sql
	// (postgres, mysql, sqlite dialects).
	Relational Kind = "relational"

	// Document covers document stores (MongoDB).
	Document Kind = "document"

	// SchemaFirst covers schema-first generated clients whose migrations
	// are managed by the client's own external tooling.
	SchemaFirst Kind = "schemafirst"

	// Memory is the in-process backend used for development and tests.
	Memory Kind = "memory"
)

// ErrUnknownKind is returned when a kind is not in the registry. This is a
// startup-time configuration mistake and is treated as fatal by callers.
var ErrUnknownKind = errors.New("unknown adapter kind")

// Capability describes what an adapter kind supports and requires.
type Capability struct {
	// Human-friendly name, e.g. "Relational SQL".
	Name string `json:"name"`

	// Canonical kind identifier.
	Kind Kind `json:"kind"`

	// Config fields that must be present before Connect is attempted.
	RequiredConfigFields []string `json:"requiredConfigFields"`

	// Whether the kind participates in the migration ledger. Schema-first
	// clients migrate through their own tooling and report false here.
	SupportsMigrations bool `json:"supportsMigrations"`

	// DDL flavor: "sql" (dialect-specific DDL emitted by this layer),
	// "none" (auto-provisioning backends) or "external" (delegated to the
	// adapter's own tooling).
	DDLFlavor string `json:"ddlFlavor"`

	// Common aliases (config values, generator labels) mapping to this kind.
	Aliases []string `json:"aliases,omitempty"`
}

// All is the registry of capabilities keyed by canonical kind.
var All = map[Kind]Capability{
	Relational: {
		Name:                 "Relational SQL",
		Kind:                 Relational,
		RequiredConfigFields: []string{"dialect", "database"},
		SupportsMigrations:   true,
		DDLFlavor:            "sql",
		Aliases:              []string{"sql", "postgres", "postgresql", "mysql", "sqlite", "sqlite3"},
	},
	Document: {
		Name:                 "Document store",
		Kind:                 Document,
		RequiredConfigFields: []string{"host", "database"},
		SupportsMigrations:   false,
		DDLFlavor:            "none",
		Aliases:              []string{"mongo", "mongodb"},
	},
	SchemaFirst: {
		Name:                 "Schema-first client",
		Kind:                 SchemaFirst,
		RequiredConfigFields: []string{"client"},
		SupportsMigrations:   false,
		DDLFlavor:            "external",
		Aliases:              []string{"schema-first", "generated"},
	},
	Memory: {
		Name:                 "In-memory",
		Kind:                 Memory,
		RequiredConfigFields: nil,
		SupportsMigrations:   false,
		DDLFlavor:            "none",
		Aliases:              []string{"mem", "inmemory"},
	},
}

// Describe returns the capability for a kind, or ErrUnknownKind.
func Describe(kind Kind) (Capability, error) {
	cap, ok := All[kind]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return cap, nil
}

// MustGet returns the capability for a kind and panics if it is unknown.
// Use only for the built-in kinds wired at startup.
func MustGet(kind Kind) Capability {
	cap, err := Describe(kind)
	if err != nil {
		panic(err)
	}
	return cap
}

// ParseKind resolves a user-supplied string (canonical id or alias,
// case-insensitive) to a Kind.
func ParseKind(s string) (Kind, bool) {
	needle := strings.ToLower(strings.TrimSpace(s))
	if needle == "" {
		return "", false
	}
	if _, ok := All[Kind(needle)]; ok {
		return Kind(needle), true
	}
	for kind, cap := range All {
		for _, alias := range cap.Aliases {
			if alias == needle {
				return kind, true
			}
		}
	}
	return "", false
}

// SupportsMigrations reports whether a kind participates in the ledger.
func SupportsMigrations(kind Kind) bool {
	cap, err := Describe(kind)
	return err == nil && cap.SupportsMigrations
}
