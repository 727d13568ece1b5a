package sqlite

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuffle/internal/storage"
)

// newTestRepo opens an in-memory database seeded with a users table of n rows
// whose name and email are derived from the row id.
func newTestRepo(t *testing.T, n int) *Repository {
	t.Helper()
	ctx := context.Background()

	repo, closeFn, err := NewRepository(ctx, Config{Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(closeFn)

	require.NoError(t, repo.Exec(ctx,
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT, created_at INTEGER)"))
	for i := 1; i <= n; i++ {
		require.NoError(t, repo.Exec(ctx, fmt.Sprintf(
			"INSERT INTO users VALUES (%d, 'name%d', 'mail%d@example.com', %d)", i, i, i, i*100)))
	}
	return repo
}

// snapshot reads the users table keyed by id.
type row struct {
	name, email string
	createdAt   int
}

func snapshot(t *testing.T, repo *Repository) map[int]row {
	t.Helper()
	rows, err := repo.db.Query("SELECT id, name, email, created_at FROM users")
	require.NoError(t, err)
	defer rows.Close()

	out := map[int]row{}
	for rows.Next() {
		var id int
		var r row
		require.NoError(t, rows.Scan(&id, &r.name, &r.email, &r.createdAt))
		out[id] = r
	}
	require.NoError(t, rows.Err())
	return out
}

func multiset(rows map[int]row, pick func(row) string) []string {
	vals := make([]string, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, pick(r))
	}
	sort.Strings(vals)
	return vals
}

func TestShuffle_PermutationProperty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const n = 50
	repo := newTestRepo(t, n)
	before := snapshot(t, repo)

	rows, err := repo.Shuffle(ctx, storage.ShuffleSpec{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"name", "email"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, n, rows, "the join-update should touch every row")

	after := snapshot(t, repo)
	require.Len(t, after, n, "row count must not change")

	// Same multiset of values per target column, no value created or lost.
	assert.Equal(t,
		multiset(before, func(r row) string { return r.name }),
		multiset(after, func(r row) string { return r.name }))
	assert.Equal(t,
		multiset(before, func(r row) string { return r.email }),
		multiset(after, func(r row) string { return r.email }))

	// name and email travel together: they came from the same temp row.
	pairs := map[string]string{}
	for _, r := range before {
		pairs[r.name] = r.email
	}
	for id, r := range after {
		assert.Equal(t, pairs[r.name], r.email, "row %d: name/email pairing broken", id)
	}
}

func TestShuffle_NonTargetInvariance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newTestRepo(t, 20)
	before := snapshot(t, repo)

	_, err := repo.Shuffle(ctx, storage.ShuffleSpec{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"name"},
	})
	require.NoError(t, err)

	after := snapshot(t, repo)
	for id, b := range before {
		a, ok := after[id]
		require.True(t, ok, "row %d disappeared", id)
		assert.Equal(t, b.email, a.email, "row %d: email is not a target", id)
		assert.Equal(t, b.createdAt, a.createdAt, "row %d: created_at is not a target", id)
	}
}

func TestShuffle_ActuallyPermutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// With 50 rows the chance of drawing the identity permutation is ~1/50!,
	// so a completely unmoved table means the realignment is broken.
	repo := newTestRepo(t, 50)
	before := snapshot(t, repo)

	_, err := repo.Shuffle(ctx, storage.ShuffleSpec{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"name"},
	})
	require.NoError(t, err)

	after := snapshot(t, repo)
	moved := 0
	for id := range before {
		if before[id].name != after[id].name {
			moved++
		}
	}
	assert.Greater(t, moved, 0, "no value changed rows; not a random permutation")
}

func TestShuffle_RepeatedRunsStaySane(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const n = 30
	repo := newTestRepo(t, n)
	before := snapshot(t, repo)

	sp := storage.ShuffleSpec{Table: "users", IDColumn: "id", Columns: []string{"name", "email"}}
	for i := 0; i < 3; i++ {
		_, err := repo.Shuffle(ctx, sp)
		require.NoError(t, err, "run %d", i)
	}

	after := snapshot(t, repo)
	require.Len(t, after, n, "row count changed across repeated shuffles")
	assert.Equal(t,
		multiset(before, func(r row) string { return r.name }),
		multiset(after, func(r row) string { return r.name }))
}

func TestShuffle_FailureLeavesTableIntact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newTestRepo(t, 10)
	before := snapshot(t, repo)

	// A target column that does not exist makes the temp-copy statement fail;
	// the transaction must roll back without touching the table.
	_, err := repo.Shuffle(ctx, storage.ShuffleSpec{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"no_such_column"},
	})
	require.Error(t, err)

	assert.Equal(t, before, snapshot(t, repo))
}

func TestTableColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newTestRepo(t, 1)

	cols, err := repo.TableColumns(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email", "created_at"}, cols)

	_, err = repo.TableColumns(ctx, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestDatabaseExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newTestRepo(t, 1)
	ok, err := repo.DatabaseExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok, ":memory: databases always exist")
}

func TestSqIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"users"`, sqIdent("users"))
	assert.Equal(t, `"we""ird"`, sqIdent(`we"ird`))
}
