// Package factory opens storage backends from configuration.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/workgraph/internal/config"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/storage/sqlstore"
	"github.com/steveyegge/workgraph/internal/telemetry"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, opts Options) (storage.Storage, error)

// backendRegistry holds registered backend factories
var backendRegistry = map[string]BackendFactory{
	"sqlite": openSQLite,
	"mysql":  openMySQL,
	"dolt":   openMySQL, // dolt sql-server speaks the MySQL protocol
}

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configures how the storage backend is opened
type Options struct {
	Path         string // SQLite file
	DSN          string // MySQL/Dolt server
	MaxOpenConns int
	MaxRetries   int
	MaxElapsed   time.Duration
	Logger       *slog.Logger
}

// New creates a storage backend of the given type. The result is wrapped
// with telemetry instrumentation when telemetry is enabled.
func New(ctx context.Context, backend string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = "sqlite"
	}
	factory, ok := backendRegistry[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	store, err := factory(ctx, opts)
	if err != nil {
		return nil, err
	}
	return telemetry.WrapStorage(store), nil
}

// NewFromConfig opens the backend described by the database and transaction
// sections of s.
func NewFromConfig(ctx context.Context, s config.Settings, log *slog.Logger) (storage.Storage, error) {
	return New(ctx, s.Database.Backend, Options{
		Path:         s.Database.Path,
		DSN:          s.Database.DSN,
		MaxOpenConns: s.Database.MaxOpenConns,
		MaxRetries:   s.Transaction.MaxRetries,
		MaxElapsed:   s.Transaction.MaxElapsed,
		Logger:       log,
	})
}

func openSQLite(ctx context.Context, opts Options) (storage.Storage, error) {
	return sqlstore.Open(ctx, sqlstore.Config{
		Dialect:    sqlstore.DialectSQLite,
		Path:       opts.Path,
		MaxRetries: opts.MaxRetries,
		MaxElapsed: opts.MaxElapsed,
		Logger:     opts.Logger,
	})
}

func openMySQL(ctx context.Context, opts Options) (storage.Storage, error) {
	return sqlstore.Open(ctx, sqlstore.Config{
		Dialect:      sqlstore.DialectMySQL,
		DSN:          opts.DSN,
		MaxOpenConns: opts.MaxOpenConns,
		MaxRetries:   opts.MaxRetries,
		MaxElapsed:   opts.MaxElapsed,
		Logger:       opts.Logger,
	})
}
