package adapter

import (
	"fmt"

	"github.com/trellishq/trellis/internal/db/capability"
)

// ConnectionConfig carries the adapter-specific connection parameters. It is
// loaded from process configuration at startup, never mutated, and owned by
// the bootstrapper until a live handle exists.
type ConnectionConfig struct {
	// Kind selects the adapter.
	Kind capability.Kind

	// Dialect narrows the relational adapter: "postgres", "mysql" or
	// "sqlite". Ignored by the other kinds.
	Dialect string

	// DSN, when set, overrides the discrete host/port/credential fields.
	// For sqlite this is the database file path.
	DSN string

	Host     string
	Port     int
	Username string
	Password string

	// Database is the target database name (relational, document) or file
	// path (sqlite).
	Database string

	// Client is the generated-client handle for the schema-first kind. The
	// schema-first backend type-asserts it against its client contract.
	Client any

	// Tool and SchemaPath configure the schema-first kind's external
	// migration tooling.
	Tool       string
	SchemaPath string
}

// Validate checks the fields the capability registry declares as required
// for the configured kind.
func (c ConnectionConfig) Validate() error {
	cap, err := capability.Describe(c.Kind)
	if err != nil {
		return &UnsupportedAdapterError{Kind: string(c.Kind)}
	}
	for _, field := range cap.RequiredConfigFields {
		var ok bool
		switch field {
		case "dialect":
			ok = c.Dialect != ""
		case "database":
			ok = c.Database != "" || c.DSN != ""
		case "host":
			ok = c.Host != "" || c.DSN != ""
		case "client":
			ok = c.Client != nil
		default:
			ok = true
		}
		if !ok {
			return NewConfigurationError(c.Kind, field, "required but not set")
		}
	}
	return nil
}

// Redacted returns a loggable description of the config without credentials.
func (c ConnectionConfig) Redacted() string {
	target := c.Database
	if target == "" && c.DSN != "" {
		target = "(dsn)"
	}
	if c.Host != "" {
		return fmt.Sprintf("%s %s@%s:%d/%s", c.Kind, c.Username, c.Host, c.Port, target)
	}
	return fmt.Sprintf("%s %s", c.Kind, target)
}
