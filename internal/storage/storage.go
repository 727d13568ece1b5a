// Package storage contains the storage-agnostic contracts for the shuffler:
// the Repository interface every database backend implements, the connection
// Config handed to backend factories, and the factory registry that maps a
// backend kind (e.g. "mysql") to its constructor.
//
// Backend packages (mysql, postgres, mssql, sqlite) register themselves with
// this package at init time; importing shuffle/internal/storage/all wires in
// every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config carries everything a backend needs to open a connection. Either the
// discrete credential fields or a pre-built DSN may be used, at the backend's
// discretion; DSN wins when both are set.
type Config struct {
	// Kind selects the backend ("mysql", "postgres", "mssql", "sqlite").
	Kind string

	// Database is the target database (schema) name. For sqlite it is the
	// database file path, or ":memory:".
	Database string

	User     string
	Password string
	Host     string
	Port     int

	// DSN, when non-empty, is passed to the driver verbatim.
	DSN string
}

// ShuffleSpec names the table, identifier column, and target columns for one
// shuffle operation. Names are assumed to have passed the identifier
// allow-list; backends still quote them with their own quoting rule.
type ShuffleSpec struct {
	Table    string
	IDColumn string
	Columns  []string
}

// Repository is the backend contract. Implementations are expected to run
// exactly one statement at a time; nothing here is called concurrently.
type Repository interface {
	// Ping issues the connectivity probe (SELECT 1 or the engine equivalent).
	Ping(ctx context.Context) error

	// DatabaseExists reports whether the configured database exists.
	DatabaseExists(ctx context.Context) (bool, error)

	// TableColumns returns the column names of table from the engine's schema
	// catalog, in ordinal order. A missing or inaccessible table is an error.
	TableColumns(ctx context.Context, table string) ([]string, error)

	// Shuffle permutes the values of the spec's target columns across the
	// table's rows and returns the number of rows the update touched. The
	// operation is a single atomic unit per table: on error the table is left
	// in its pre-shuffle state.
	Shuffle(ctx context.Context, sp ShuffleSpec) (int64, error)

	// Exec runs an arbitrary statement. Used by tests and operational tooling,
	// never by the run controller.
	Exec(ctx context.Context, sql string) error

	// Close releases the underlying pool.
	Close()
}

// Factory constructs a Repository for a Config. Constructors perform the
// connectivity probe and fail fast on unreachable servers.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for a backend kind. It is
// typically called from backend packages' init() functions; tests re-register
// kinds to inject fakes.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind using the registered factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered backend kinds.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
