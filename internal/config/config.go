package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/relational"
	"github.com/trellishq/trellis/internal/db/capability"
)

type Config struct {
	Env string `mapstructure:"TRL_ENV"`

	Database DBConfig `mapstructure:",squash"`
}

type DBConfig struct {
	Adapter  string `mapstructure:"TRL_DB_ADAPTER"` // relational | document | schemafirst | memory (aliases accepted)
	Dialect  string `mapstructure:"TRL_DB_DIALECT"` // postgres | mysql | sqlite
	DSN      string `mapstructure:"TRL_DB_DSN"`     // overrides the discrete fields when set
	Host     string `mapstructure:"TRL_DB_HOST"`
	Port     int    `mapstructure:"TRL_DB_PORT"`
	User     string `mapstructure:"TRL_DB_USER"`
	Password string `mapstructure:"TRL_DB_PASSWORD"`
	Name     string `mapstructure:"TRL_DB_NAME"`

	ModelsDir     string `mapstructure:"TRL_MODELS_DIR"`
	MigrationsDir string `mapstructure:"TRL_MIGRATIONS_DIR"`
	EagerSync     bool   `mapstructure:"TRL_DB_EAGER_SYNC"`

	SchemaTool string `mapstructure:"TRL_SCHEMA_TOOL"` // external migration tool for schema-first clients
	SchemaPath string `mapstructure:"TRL_SCHEMA_PATH"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("TRL_ENV", "dev")
	viper.SetDefault("TRL_DB_ADAPTER", "relational")
	viper.SetDefault("TRL_DB_DIALECT", "postgres")
	viper.SetDefault("TRL_DB_HOST", "localhost")
	viper.SetDefault("TRL_DB_PORT", 5432)
	viper.SetDefault("TRL_DB_USER", "postgres")
	viper.SetDefault("TRL_DB_PASSWORD", "")
	viper.SetDefault("TRL_DB_DSN", "")
	viper.SetDefault("TRL_DB_NAME", "trellis_dev")
	viper.SetDefault("TRL_SCHEMA_TOOL", "")
	viper.SetDefault("TRL_SCHEMA_PATH", "")
	viper.SetDefault("TRL_MODELS_DIR", "./models")
	viper.SetDefault("TRL_MIGRATIONS_DIR", "./migrations")
	viper.SetDefault("TRL_DB_EAGER_SYNC", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalizeAdapter()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// normalizeAdapter resolves adapter aliases. Setting TRL_DB_ADAPTER to a
// dialect name ("postgres", "sqlite") selects the relational kind and fills
// the dialect in one step.
func (c *Config) normalizeAdapter() {
	if dialect, ok := relational.ParseDialect(c.Database.Adapter); ok {
		c.Database.Dialect = string(dialect.Name())
		c.Database.Adapter = string(capability.Relational)
		return
	}
	if kind, ok := capability.ParseKind(c.Database.Adapter); ok {
		c.Database.Adapter = string(kind)
	}
}

func (c *Config) validate() error {
	kind, ok := capability.ParseKind(c.Database.Adapter)
	if !ok {
		return fmt.Errorf("invalid TRL_DB_ADAPTER %q", c.Database.Adapter)
	}
	if kind == capability.Relational && c.Database.DSN == "" && c.Database.Name == "" {
		return fmt.Errorf("TRL_DB_NAME or TRL_DB_DSN is required for the relational adapter")
	}
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid TRL_ENV %q (must be dev, test, or prod)", c.Env)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// AdapterKind resolves the configured adapter kind. validate has already
// checked it parses.
func (c *Config) AdapterKind() capability.Kind {
	kind, _ := capability.ParseKind(c.Database.Adapter)
	return kind
}

// ConnectionConfig maps the process configuration onto the bootstrapper's
// connection config.
func (c *Config) ConnectionConfig() adapter.ConnectionConfig {
	return adapter.ConnectionConfig{
		Kind:       c.AdapterKind(),
		Dialect:    c.Database.Dialect,
		DSN:        c.Database.DSN,
		Host:       c.Database.Host,
		Port:       c.Database.Port,
		Username:   c.Database.User,
		Password:   c.Database.Password,
		Database:   c.Database.Name,
		Tool:       c.Database.SchemaTool,
		SchemaPath: c.Database.SchemaPath,
	}
}
