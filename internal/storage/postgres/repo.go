// Package postgres implements the Postgres shuffle backend using pgx v5.
//
// Unlike MySQL, the target database is part of the connection itself, so the
// repository connects straight to it and the existence probe reads
// pg_database. The whole shuffle runs in one transaction: the temp copy is
// created ON COMMIT DROP, constraint checking is deferred with SET CONSTRAINTS
// (which only affects deferrable constraints), and SET LOCAL keeps the
// performance knobs transaction-scoped, so every setting is restored on any
// exit path without explicit cleanup.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"shuffle/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string

	// DSN overrides the assembled connection string when non-empty.
	DSN string
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository opens a pool against the target database, runs the SELECT 1
// probe, and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dsn := cfg.DSN
	if dsn == "" {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:   "/" + cfg.Database,
		}
		dsn = u.String()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	r := &Repository{pool: pool, cfg: cfg}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	close := func() { pool.Close() }
	return r, close, nil
}

// Ping issues the connectivity probe.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connectivity probe: %w", err)
	}
	return nil
}

// DatabaseExists checks pg_database for the configured database name.
func (r *Repository) DatabaseExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)",
		r.cfg.Database,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database probe: %w", err)
	}
	return exists, nil
}

// TableColumns returns the column names of table in ordinal order, resolved
// against the connection's current schema search path.
func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT column_name
		   FROM information_schema.columns
		  WHERE table_name = $1
		    AND table_schema = ANY (current_schemas(false))
		  ORDER BY ordinal_position`,
		table,
	)
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
		return nil, fmt.Errorf("table %s does not exist or is not readable by the current user", table)
	}
	return cols, nil
}

// Shuffle permutes the spec's target columns across the table's rows inside a
// single transaction.
func (r *Repository) Shuffle(ctx context.Context, sp storage.ShuffleSpec) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Transaction-scoped tuning; all of it dies with the tx.
	if _, err := tx.Exec(ctx, "SET CONSTRAINTS ALL DEFERRED"); err != nil {
		return 0, fmt.Errorf("defer constraints: %w", err)
	}
	if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
		return 0, fmt.Errorf("apply tx tuning: %w", err)
	}

	tmp := storage.TempName(sp.Table)
	create, update := shuffleStatements(sp, tmp)

	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create shuffle copy: %w", err)
	}
	tag, err := tx.Exec(ctx, update)
	if err != nil {
		return 0, fmt.Errorf("apply permutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.pool.Exec(ctx, sqlText)
	return err
}

// shuffleStatements builds the temp-copy and join-update statements. The temp
// table is ON COMMIT DROP, so no drop statement is needed.
func shuffleStatements(sp storage.ShuffleSpec, tmp string) (create, update string) {
	target := pgIdent(sp.Table)
	id := pgIdent(sp.IDColumn)
	cols := mapIdent(sp.Columns)

	create = fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT row_number() OVER (ORDER BY random()) AS rn, %s FROM %s",
		pgIdent(tmp),
		strings.Join(cols, ", "),
		target,
	)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = pick.%s", c, c)
	}
	update = fmt.Sprintf(
		"UPDATE %s AS dst SET %s"+
			" FROM (SELECT ord.rid, %s FROM (SELECT %s AS rid, row_number() OVER (ORDER BY %s) AS rn FROM %s) AS ord"+
			" JOIN %s AS src USING (rn)) AS pick"+
			" WHERE dst.%s = pick.rid",
		target,
		strings.Join(sets, ", "),
		strings.Join(prefixIdent("src", sp.Columns), ", "),
		id, id, target,
		pgIdent(tmp),
		id,
	)
	return create, update
}

// pgIdent quotes a Postgres identifier with double quotes, escaping embedded ones.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// prefixIdent qualifies quoted column names with a table alias.
func prefixIdent(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + pgIdent(c)
	}
	return out
}
