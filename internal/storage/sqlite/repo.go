// Package sqlite implements the SQLite shuffle backend on database/sql and
// the modernc.org/sqlite driver (no cgo).
//
// The "database" here is a file path (or ":memory:"), so the existence probe
// is a stat. The pool is capped at one connection: SQLite allows one writer,
// and pinning a single connection keeps temp tables and pragmas attached to
// the session that created them.
//
// Foreign key enforcement is deferred with PRAGMA defer_foreign_keys, which
// is transaction-scoped and resets itself on commit or rollback.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"shuffle/internal/storage"
)

// Config holds SQLite repository configuration.
type Config struct {
	// Database is the database file path, or ":memory:".
	Database string

	// DSN overrides Database as the driver connection string when non-empty,
	// e.g. "file:shuffle.db?cache=shared".
	DSN string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database, runs the SELECT 1 probe, and returns a
// Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Database
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	// Single writer; also keeps :memory: databases alive across statements.
	db.SetMaxOpenConns(1)

	r := &Repository{db: db, cfg: cfg}
	if err := r.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	close := func() { _ = db.Close() }
	return r, close, nil
}

// Ping issues the connectivity probe.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connectivity probe: %w", err)
	}
	return nil
}

// DatabaseExists stats the database file. In-memory databases always exist.
func (r *Repository) DatabaseExists(ctx context.Context) (bool, error) {
	db := r.cfg.Database
	if db == "" || db == ":memory:" || strings.Contains(db, "mode=memory") {
		return true, nil
	}
	if _, err := os.Stat(strings.TrimPrefix(db, "file:")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("database probe: %w", err)
	}
	return true, nil
}

// TableColumns returns the column names of table in ordinal order via the
// pragma_table_info table-valued function, which takes the table name as a
// bound parameter.
func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return cols, nil
}

// Shuffle permutes the spec's target columns across the table's rows inside a
// single transaction.
func (r *Repository) Shuffle(ctx context.Context, sp storage.ShuffleSpec) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	// Transaction-scoped; resets itself when the tx ends either way.
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		rollback()
		return 0, fmt.Errorf("defer foreign keys: %w", err)
	}

	tmp := storage.TempName(sp.Table)
	create, update, drop := shuffleStatements(sp, tmp)

	if _, err := tx.ExecContext(ctx, create); err != nil {
		rollback()
		return 0, fmt.Errorf("create shuffle copy: %w", err)
	}
	res, err := tx.ExecContext(ctx, update)
	if err != nil {
		rollback()
		return 0, fmt.Errorf("apply permutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		rollback()
		return 0, fmt.Errorf("drop shuffle copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// shuffleStatements builds the three statements for one shuffle run.
func shuffleStatements(sp storage.ShuffleSpec, tmp string) (create, update, drop string) {
	target := sqIdent(sp.Table)
	id := sqIdent(sp.IDColumn)
	cols := mapIdent(sp.Columns)

	create = fmt.Sprintf(
		"CREATE TEMP TABLE %s AS SELECT ROW_NUMBER() OVER (ORDER BY random()) AS rn, %s FROM %s",
		sqIdent(tmp),
		strings.Join(cols, ", "),
		target,
	)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = pick.%s", c, c)
	}
	update = fmt.Sprintf(
		"UPDATE %s AS dst SET %s"+
			" FROM (SELECT ord.rid, %s FROM (SELECT %s AS rid, ROW_NUMBER() OVER (ORDER BY %s) AS rn FROM %s) AS ord"+
			" JOIN %s AS src ON src.rn = ord.rn) AS pick"+
			" WHERE dst.%s = pick.rid",
		target,
		strings.Join(sets, ", "),
		strings.Join(prefixIdent("src", sp.Columns), ", "),
		id, id, target,
		sqIdent(tmp),
		id,
	)

	drop = "DROP TABLE temp." + sqIdent(tmp)
	return create, update, drop
}

// sqIdent quotes a SQLite identifier with double quotes, escaping embedded ones.
func sqIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = sqIdent(c)
	}
	return out
}

// prefixIdent qualifies quoted column names with a table alias.
func prefixIdent(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + sqIdent(c)
	}
	return out
}
