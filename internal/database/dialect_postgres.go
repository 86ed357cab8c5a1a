package database

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"
)

const postgresApplicationName = "familygallery"

type PostgresDialect struct{}

func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// DSN accepts a postgres:// URL or a key=value string and tags the
// connection with an application_name unless one is set. An unparseable
// URL is passed through and fails at Ping.
func (d *PostgresDialect) DSN(config DialectConfig) string {
	dsn := config.URL
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return config.URL
		}
		dsn = converted
	}
	if strings.Contains(dsn, "application_name=") {
		return dsn
	}
	return strings.TrimSpace(dsn + " application_name=" + postgresApplicationName)
}

func (d *PostgresDialect) RewriteQuery(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

// SupportsLastInsertId is false; inserts append RETURNING id instead.
func (d *PostgresDialect) SupportsLastInsertId() bool {
	return false
}

func (d *PostgresDialect) ConfigureConnection(db *sql.DB) error {
	configurePool(db)
	return nil
}

func (d *PostgresDialect) MigrationsSubdir() string {
	return "postgres"
}

func (d *PostgresDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT UNIQUE NOT NULL,
			executed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`
}

// ForUpdate locks the owner row counted by quota-enforcing inserts.
func (d *PostgresDialect) ForUpdate() string {
	return " FOR UPDATE"
}
