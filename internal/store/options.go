package store

import (
	"fmt"
	"strings"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // data source name: SQLite file path or PostgreSQL connection string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(path string) Option {
	return func(o *Opts) { o.DSN = path }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSN types reported by DetectDSNType.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// DetectDSNType reports whether dsn addresses PostgreSQL or an SQLite file.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	// key=value connection strings
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open creates the backend matching dsn. An empty dsn yields an InMemoryStore.
func Open(dsn string) (Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DSNTypePostgres:
		return NewPostgresStore(WithPostgresDSN(dsn))
	case DSNTypeSQLite:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported DSN %q", dsn)
	}
}

// Backend is a Store that also keeps the inbound delivery ledger.
type Backend interface {
	Store
	InboundLedger
}
