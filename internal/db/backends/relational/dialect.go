package relational

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// DialectName is the normalized name of a relational dialect.
type DialectName string

const (
	DialectPostgres DialectName = "postgres"
	DialectMySQL    DialectName = "mysql"
	DialectSQLite   DialectName = "sqlite"
	DialectUnknown  DialectName = ""
)

// Dialect captures the per-engine differences the orchestration layer needs:
// identifier quoting, placeholder style, database-creation DDL, the
// "database does not exist" error class and ledger/table introspection.
type Dialect struct {
	name DialectName
}

// ParseDialect builds a dialect from a config string (case-insensitive).
func ParseDialect(s string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgsql":
		return Dialect{name: DialectPostgres}, true
	case "mysql", "mariadb":
		return Dialect{name: DialectMySQL}, true
	case "sqlite", "sqlite3":
		return Dialect{name: DialectSQLite}, true
	default:
		return Dialect{}, false
	}
}

// Name returns the normalized dialect name.
func (d Dialect) Name() DialectName { return d.name }

// DriverName returns the database/sql driver this dialect uses.
func (d Dialect) DriverName() string {
	switch d.name {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return ""
	}
}

// QuoteIdentifier quotes a table or column name for this dialect. Dotted
// names are quoted per segment.
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case DialectMySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind converts ? placeholders to the dialect-specific form. Only postgres
// needs rewriting ($1, $2, ...).
func (d Dialect) Rebind(query string) string {
	if d.name != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// SupportsCreateDatabase reports whether the dialect has a server-side
// database to create. SQLite files are created on first open.
func (d Dialect) SupportsCreateDatabase() bool {
	return d.name == DialectPostgres || d.name == DialectMySQL
}

// AdminDatabase returns the system database an administrative connection
// targets when the application database does not exist yet. MySQL accepts a
// connection with no schema selected.
func (d Dialect) AdminDatabase() string {
	if d.name == DialectPostgres {
		return "postgres"
	}
	return ""
}

// CreateDatabaseSQL returns the dialect-specific DDL to create a database.
// MySQL supports IF NOT EXISTS; postgres does not, so its caller treats a
// duplicate_database failure as success instead.
func (d Dialect) CreateDatabaseSQL(name string) string {
	switch d.name {
	case DialectMySQL:
		return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", d.QuoteIdentifier(name))
	default:
		return fmt.Sprintf("CREATE DATABASE %s", d.QuoteIdentifier(name))
	}
}

// IsMissingDatabase reports whether err is the distinguishable "target
// database does not exist" class; only this class triggers the
// create-and-retry path.
func (d Dialect) IsMissingDatabase(err error) bool {
	if err == nil {
		return false
	}
	switch d.name {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "3D000"
	case DialectMySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1049
	default:
		return false
	}
}

// IsDuplicateDatabase reports whether err means the database already exists;
// the postgres create path tolerates this (two bootstrappers racing).
func (d Dialect) IsDuplicateDatabase(err error) bool {
	if err == nil {
		return false
	}
	switch d.name {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "42P04"
	case DialectMySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1007
	default:
		return false
	}
}

// TableExistsQuery returns the introspection query selecting a boolean for
// a single table name parameter, in the dialect's placeholder style.
func (d Dialect) TableExistsQuery() string {
	switch d.name {
	case DialectPostgres:
		return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`
	case DialectMySQL:
		return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?)`
	default:
		return `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`
	}
}

// ListTablesQuery returns the query enumerating user tables in sorted order.
func (d Dialect) ListTablesQuery() string {
	switch d.name {
	case DialectPostgres:
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	case DialectMySQL:
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
}

// DropTableSQL returns the DDL dropping one table. Postgres cascades so
// dependent constraints from association wiring do not block the drop.
func (d Dialect) DropTableSQL(name string) string {
	if d.name == DialectPostgres {
		return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", d.QuoteIdentifier(name))
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.QuoteIdentifier(name))
}

// ColumnType maps a model attribute type to the dialect's column type.
func (d Dialect) ColumnType(attrType string) string {
	switch strings.ToLower(attrType) {
	case "string", "text":
		return "TEXT"
	case "int", "integer":
		return "INTEGER"
	case "int64", "bigint":
		return "BIGINT"
	case "float", "float64", "double":
		return "DOUBLE PRECISION"
	case "bool", "boolean":
		return "BOOLEAN"
	case "time", "timestamp", "datetime":
		if d.name == DialectMySQL {
			return "DATETIME"
		}
		return "TIMESTAMP"
	case "json":
		if d.name == DialectPostgres {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}
