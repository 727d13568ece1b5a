package postgres

import (
	"testing"

	"shuffle/internal/storage"
)

func TestPgIdent(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"users", `"users"`},
		{"mixedCase", `"mixedCase"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, tc := range tests {
		if got := pgIdent(tc.in); got != tc.want {
			t.Errorf("pgIdent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShuffleStatements(t *testing.T) {
	t.Parallel()

	sp := storage.ShuffleSpec{
		Table:    "users",
		IDColumn: "id",
		Columns:  []string{"name", "email"},
	}
	create, update := shuffleStatements(sp, "shuffle_tmp_00ff")

	wantCreate := `CREATE TEMP TABLE "shuffle_tmp_00ff" ON COMMIT DROP AS` +
		` SELECT row_number() OVER (ORDER BY random()) AS rn, "name", "email" FROM "users"`
	if create != wantCreate {
		t.Errorf("create =\n%s\nwant\n%s", create, wantCreate)
	}

	wantUpdate := `UPDATE "users" AS dst SET "name" = pick."name", "email" = pick."email"` +
		` FROM (SELECT ord.rid, src."name", src."email"` +
		` FROM (SELECT "id" AS rid, row_number() OVER (ORDER BY "id") AS rn FROM "users") AS ord` +
		` JOIN "shuffle_tmp_00ff" AS src USING (rn)) AS pick` +
		` WHERE dst."id" = pick.rid`
	if update != wantUpdate {
		t.Errorf("update =\n%s\nwant\n%s", update, wantUpdate)
	}
}
