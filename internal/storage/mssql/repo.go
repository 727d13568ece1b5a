// Package mssql implements the SQL Server shuffle backend on database/sql and
// go-mssqldb.
//
// The shuffle runs in one transaction: SELECT ... INTO a session-scoped #temp
// table ordered by NEWID() for the random draw, one join-update matching
// ROW_NUMBER ordinals, then an explicit DROP. #temp tables are per-session,
// so a failed transaction cannot leak the copy to other sessions.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"shuffle/internal/storage"
)

// Config holds SQL Server repository configuration.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string

	// DSN overrides the assembled connection string when non-empty.
	DSN string
}

// Repository is a SQL Server-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the connection with the target database as the default
// catalog, runs the SELECT 1 probe, and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dsn := cfg.DSN
	if dsn == "" {
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			RawQuery: url.Values{"database": []string{cfg.Database}}.Encode(),
		}
		dsn = u.String()
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
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

// DatabaseExists checks sys.databases for the configured database.
func (r *Repository) DatabaseExists(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.databases WHERE name = @p1",
		r.cfg.Database,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("database probe: %w", err)
	}
	return n > 0, nil
}

// TableColumns returns the column names of table in ordinal order, resolved
// in the connection's default catalog.
func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COLUMN_NAME
		   FROM INFORMATION_SCHEMA.COLUMNS
		  WHERE TABLE_NAME = @p1
		  ORDER BY ORDINAL_POSITION`,
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	tmp := "#" + storage.TempName(sp.Table)
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

// shuffleStatements builds the three statements for one shuffle run. tmp must
// carry the leading '#'.
func shuffleStatements(sp storage.ShuffleSpec, tmp string) (create, update, drop string) {
	target := msIdent(sp.Table)
	id := msIdent(sp.IDColumn)
	cols := mapIdent(sp.Columns)

	create = fmt.Sprintf(
		"SELECT ROW_NUMBER() OVER (ORDER BY NEWID()) AS rn, %s INTO %s FROM %s",
		strings.Join(cols, ", "),
		msIdent(tmp),
		target,
	)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("dst.%s = src.%s", c, c)
	}
	update = fmt.Sprintf(
		"UPDATE dst SET %s"+
			" FROM %s AS dst"+
			" JOIN (SELECT %s AS rid, ROW_NUMBER() OVER (ORDER BY %s) AS rn FROM %s) AS ord ON dst.%s = ord.rid"+
			" JOIN %s AS src ON src.rn = ord.rn",
		strings.Join(sets, ", "),
		target,
		id, id, target, id,
		msIdent(tmp),
	)

	drop = "DROP TABLE " + msIdent(tmp)
	return create, update, drop
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
