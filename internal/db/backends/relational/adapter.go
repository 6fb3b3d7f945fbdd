// Package relational implements the persistence adapter for SQL databases
// reached through database/sql, with postgres, mysql and sqlite dialects.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// OpenFunc opens a database/sql handle. Swapped out in tests.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Adapter implements adapter.PersistenceAdapter for relational databases.
type Adapter struct {
	open   OpenFunc
	logger *zap.SugaredLogger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOpener overrides how database handles are opened. Tests use this to
// hand back sqlmock connections.
func WithOpener(open OpenFunc) Option {
	return func(a *Adapter) { a.open = open }
}

// NewAdapter creates the relational adapter.
func NewAdapter(logger *zap.SugaredLogger, opts ...Option) *Adapter {
	a := &Adapter{open: sql.Open, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind returns the adapter kind identifier.
func (a *Adapter) Kind() capability.Kind { return capability.Relational }

// Capabilities returns the capability metadata for the relational kind.
func (a *Adapter) Capabilities() capability.Capability {
	return capability.MustGet(capability.Relational)
}

// Connect establishes a connection to the configured database.
//
// When the first attempt fails specifically because the target database does
// not exist, an administrative connection to the dialect's system database
// issues the dialect's CREATE DATABASE DDL, and the original connection is
// retried exactly once. Every other failure, and a second failure after
// creation, propagates unchanged.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	dialect, ok := ParseDialect(config.Dialect)
	if !ok {
		return nil, adapter.NewConfigurationError(capability.Relational, "dialect",
			fmt.Sprintf("unknown relational dialect %q", config.Dialect))
	}

	dsn, err := resolveDSN(dialect, config)
	if err != nil {
		return nil, adapter.NewConfigurationError(capability.Relational, "dsn", err.Error())
	}

	db, err := a.openAndPing(ctx, dialect, dsn)
	if err != nil && dialect.SupportsCreateDatabase() && dialect.IsMissingDatabase(err) {
		name, nameErr := databaseName(dialect, config, dsn)
		if nameErr != nil {
			return nil, adapter.NewConnectionError(capability.Relational, config.Host, config.Port, nameErr)
		}
		a.logger.Infow("database does not exist, creating it", "dialect", dialect.Name(), "database", name)
		if createErr := a.createDatabase(ctx, dialect, config, dsn, name); createErr != nil {
			return nil, adapter.NewConnectionError(capability.Relational, config.Host, config.Port, createErr)
		}
		db, err = a.openAndPing(ctx, dialect, dsn)
	}
	if err != nil {
		return nil, adapter.NewConnectionError(capability.Relational, config.Host, config.Port, err)
	}

	return newConnection(db, dialect), nil
}

func (a *Adapter) openAndPing(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := a.open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// createDatabase opens a short-lived administrative connection against the
// dialect's system database and issues the create DDL. Postgres has no
// IF NOT EXISTS for CREATE DATABASE, so duplicate_database is tolerated.
func (a *Adapter) createDatabase(ctx context.Context, dialect Dialect, config adapter.ConnectionConfig, dsn, name string) error {
	adminDSN, err := dsnWithDatabase(dialect, config, dsn, dialect.AdminDatabase())
	if err != nil {
		return fmt.Errorf("derive admin connection: %w", err)
	}
	admin, err := a.openAndPing(ctx, dialect, adminDSN)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, dialect.CreateDatabaseSQL(name)); err != nil {
		if dialect.IsDuplicateDatabase(err) {
			return nil
		}
		return fmt.Errorf("create database %q: %w", name, err)
	}
	return nil
}

// resolveDSN returns the configured DSN, or builds one from the discrete
// connection fields.
func resolveDSN(dialect Dialect, config adapter.ConnectionConfig) (string, error) {
	if config.DSN != "" {
		return config.DSN, nil
	}
	switch dialect.Name() {
	case DialectPostgres:
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
			Path:   "/" + config.Database,
		}
		if config.Username != "" {
			u.User = url.UserPassword(config.Username, config.Password)
		}
		q := url.Values{}
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case DialectMySQL:
		mc := mysql.NewConfig()
		mc.User = config.Username
		mc.Passwd = config.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
		mc.DBName = config.Database
		mc.ParseTime = true
		mc.MultiStatements = true
		return mc.FormatDSN(), nil
	case DialectSQLite:
		if config.Database == "" {
			return "", fmt.Errorf("sqlite requires a database file path")
		}
		return config.Database, nil
	default:
		return "", fmt.Errorf("unknown dialect")
	}
}

// databaseName extracts the target database name from the config or, when
// only a DSN was supplied, from the DSN itself.
func databaseName(dialect Dialect, config adapter.ConnectionConfig, dsn string) (string, error) {
	if config.Database != "" {
		return config.Database, nil
	}
	switch dialect.Name() {
	case DialectPostgres:
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		name := strings.TrimPrefix(u.Path, "/")
		if name == "" {
			return "", fmt.Errorf("postgres dsn has no database name")
		}
		return name, nil
	case DialectMySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		if mc.DBName == "" {
			return "", fmt.Errorf("mysql dsn has no database name")
		}
		return mc.DBName, nil
	default:
		return "", fmt.Errorf("database name unavailable for dialect %s", dialect.Name())
	}
}

// dsnWithDatabase rewrites a DSN to target a different database; used to
// derive the administrative connection from the application one.
func dsnWithDatabase(dialect Dialect, config adapter.ConnectionConfig, dsn, database string) (string, error) {
	switch dialect.Name() {
	case DialectPostgres:
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		u.Path = "/" + database
		return u.String(), nil
	case DialectMySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.DBName = database
		return mc.FormatDSN(), nil
	default:
		return "", fmt.Errorf("admin connection unavailable for dialect %s", dialect.Name())
	}
}
