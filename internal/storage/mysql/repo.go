// Package mysql implements the MySQL shuffle backend on database/sql and
// go-sql-driver/mysql.
//
// The connection is opened server-level (no default schema); every statement
// qualifies table names with the target database, so the existence probes can
// run before the database is known to exist.
//
// The shuffle itself is three statements on one pinned session:
//
//  1. CREATE TEMPORARY TABLE ... AS SELECT ROW_NUMBER() OVER (ORDER BY RAND()),
//     target columns. This is the single random draw that defines this run's
//     permutation, with an explicit ordinal per copied row.
//  2. One UPDATE joining the live rows (numbered by ROW_NUMBER() OVER
//     (ORDER BY id)) to the temp rows on ordinal position, writing the temp
//     values back keyed by the identifier column. All-or-nothing at the
//     storage engine.
//  3. DROP TEMPORARY TABLE.
//
// Session tuning (bigger bulk-insert buffer, unique_checks and
// foreign_key_checks off) is scoped to the pinned session and restored on
// every exit path, including failures.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/go-sql-driver/mysql"

	"shuffle/internal/storage"
)

// bulkInsertBufferSize is the session bulk_insert_buffer_size applied for the
// duration of a shuffle (256 MiB).
const bulkInsertBufferSize = 256 << 20

// Config holds MySQL repository configuration.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int

	// Database is the target schema; statements qualify table names with it.
	Database string

	// DSN overrides the assembled DSN when non-empty.
	DSN string
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the connection, runs the SELECT 1 connectivity probe,
// and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dsn := cfg.DSN
	if dsn == "" {
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		dsn = mc.FormatDSN()
	}

	db, err := sql.Open("mysql", dsn)
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

// DatabaseExists checks the schema catalog for the configured database.
func (r *Repository) DatabaseExists(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?",
		r.cfg.Database,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("database probe: %w", err)
	}
	return n > 0, nil
}

// TableColumns returns the column names of table in ordinal order. Column
// lookups are fully parameterized; only the shuffle statements interpolate
// (allow-listed, quoted) identifiers.
func (r *Repository) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COLUMN_NAME
		   FROM information_schema.COLUMNS
		  WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		  ORDER BY ORDINAL_POSITION`,
		r.cfg.Database, table,
	)
	if err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", r.cfg.Database, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("describe %s.%s: %w", r.cfg.Database, table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", r.cfg.Database, table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s does not exist or is not readable by the current user", r.cfg.Database, table)
	}
	return cols, nil
}

// Shuffle permutes the spec's target columns across the table's rows. The
// temp copy and the session tuning live on one pinned connection so both die
// with it even on the failure paths.
func (r *Repository) Shuffle(ctx context.Context, sp storage.ShuffleSpec) (int64, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire session: %w", err)
	}
	defer conn.Close()

	restore, err := applyTuning(ctx, conn)
	if err != nil {
		return 0, err
	}
	defer restore()

	tmp := storage.TempName(sp.Table)
	create, update, drop := shuffleStatements(r.cfg.Database, sp, tmp)

	if _, err := conn.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create shuffle copy: %w", err)
	}
	defer func() {
		// The temp table dies with the session anyway; dropping eagerly keeps
		// long runs from accumulating copies.
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), drop); err != nil {
			log.Printf("mysql: drop %s: %v", tmp, err)
		}
	}()

	res, err := conn.ExecContext(ctx, update)
	if err != nil {
		return 0, fmt.Errorf("apply permutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// applyTuning relaxes the session knobs for the bulk rewrite and returns a
// restore function that reinstates the captured prior values. Restore runs on
// every exit path and ignores surrounding cancellation, so a failed shuffle
// cannot leave the session with checks disabled.
func applyTuning(ctx context.Context, conn *sql.Conn) (func(), error) {
	var (
		bulkBuf      uint64
		uniqueChecks int
		fkChecks     int
	)
	err := conn.QueryRowContext(ctx,
		"SELECT @@SESSION.bulk_insert_buffer_size, @@SESSION.unique_checks, @@SESSION.foreign_key_checks",
	).Scan(&bulkBuf, &uniqueChecks, &fkChecks)
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}

	set := fmt.Sprintf(
		"SET SESSION bulk_insert_buffer_size = %d, unique_checks = 0, foreign_key_checks = 0",
		bulkInsertBufferSize,
	)
	if _, err := conn.ExecContext(ctx, set); err != nil {
		return nil, fmt.Errorf("apply session tuning: %w", err)
	}

	restore := func() {
		stmt := fmt.Sprintf(
			"SET SESSION bulk_insert_buffer_size = %d, unique_checks = %d, foreign_key_checks = %d",
			bulkBuf, uniqueChecks, fkChecks,
		)
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), stmt); err != nil {
			log.Printf("mysql: restore session state: %v", err)
		}
	}
	return restore, nil
}

// shuffleStatements builds the three statements for one shuffle run. tmp must
// come from storage.TempName; db and the spec's identifiers must have passed
// the allow-list.
func shuffleStatements(db string, sp storage.ShuffleSpec, tmp string) (create, update, drop string) {
	target := myIdent(db) + "." + myIdent(sp.Table)
	id := myIdent(sp.IDColumn)
	cols := mapIdent(sp.Columns)

	create = fmt.Sprintf(
		"CREATE TEMPORARY TABLE %s AS SELECT ROW_NUMBER() OVER (ORDER BY RAND()) AS rn, %s FROM %s",
		myIdent(tmp),
		strings.Join(cols, ", "),
		target,
	)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("dst.%s = src.%s", c, c)
	}
	update = fmt.Sprintf(
		"UPDATE %s AS dst"+
			" JOIN (SELECT %s AS rid, ROW_NUMBER() OVER (ORDER BY %s) AS rn FROM %s) AS ord ON dst.%s = ord.rid"+
			" JOIN %s AS src ON src.rn = ord.rn"+
			" SET %s",
		target,
		id, id, target, id,
		myIdent(tmp),
		strings.Join(sets, ", "),
	)

	drop = "DROP TEMPORARY TABLE IF EXISTS " + myIdent(tmp)
	return create, update, drop
}

// myIdent quotes a MySQL identifier with backticks, escaping embedded ones.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
