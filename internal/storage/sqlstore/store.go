// Package sqlstore implements storage.Storage on a relational database.
//
// Two dialects are supported: SQLite (embedded, via ncruces/go-sqlite3) for
// single-node deployments and tests, and MySQL for shared deployments, which
// includes a Dolt sql-server since Dolt speaks the MySQL wire protocol.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/workgraph/internal/storage"
)

// Dialect selects the SQL flavour.
type Dialect string

// Supported dialects
const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// Config configures how the store is opened.
type Config struct {
	Dialect Dialect
	Path    string // SQLite database file
	DSN     string // MySQL DSN, e.g. root@tcp(127.0.0.1:3306)/workgraph

	MaxOpenConns int // MySQL only; SQLite always uses a single connection

	// Transaction retry for busy/deadlock failures and ErrGraphConflict.
	MaxRetries int           // default 5
	MaxElapsed time.Duration // default 10s

	Logger *slog.Logger
}

// Store is a SQL-backed storage.Storage.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
	log     *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the database described by cfg and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case DialectSQLite, "":
		cfg.Dialect = DialectSQLite
		db, err = openSQLite(cfg.Path)
	case DialectMySQL:
		db, err = openMySQL(cfg.DSN, cfg.MaxOpenConns)
	default:
		return nil, fmt.Errorf("unknown sql dialect: %s (supported: sqlite, mysql)", cfg.Dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}

	s := &Store{db: db, dialect: cfg.Dialect, cfg: cfg, log: log}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; a transaction holds it for its whole lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func openMySQL(dsn string, maxOpen int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// Report matched rather than changed rows so no-op updates are not mistaken for missing rows.
	parsed.ClientFoundRows = true
	db, err := sql.Open("mysql", parsed.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// initSchema creates all tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectMySQL {
		schema = mysqlSchema
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}
	return tx.Commit()
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB returns the underlying *sql.DB for advanced use.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// readOnly runs fn against a short-lived transaction so multi-query reads see
// one consistent snapshot. The transaction is always rolled back.
func (s *Store) readOnly(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}
