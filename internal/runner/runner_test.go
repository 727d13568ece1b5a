package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SingleValidSpec(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{schema: map[string][]string{
		"users": {"id", "name", "email", "created_at"},
	}}
	outs := Run(context.Background(), repo, []string{"users:id:name,email"})

	require.Len(t, outs, 1)
	assert.Equal(t, StatusShuffled, outs[0].Status)
	assert.Equal(t, "users", outs[0].Spec.Name)
	require.Len(t, repo.shuffleCalls, 1)
	assert.Equal(t, []string{"name", "email"}, repo.shuffleCalls[0].Columns)
	assert.Equal(t, "id", repo.shuffleCalls[0].IDColumn)
}

// The validation gate: no shuffle statement may be issued for a spec that
// fails validation.
func TestRun_InvalidSpecNeverShuffles(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{schema: map[string][]string{}}
	outs := Run(context.Background(), repo, []string{"ghost:id:col"})

	require.Len(t, outs, 1)
	assert.Equal(t, StatusSkipped, outs[0].Status)
	assert.Empty(t, repo.shuffleCalls, "shuffle must not run for an invalid spec")
	require.NotEmpty(t, outs[0].Issues)
	assert.Contains(t, outs[0].Issues[0].Message, "ghost")
}

// Partial-failure isolation: a failing spec in the middle of the batch must
// not affect the specs around it.
func TestRun_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{schema: map[string][]string{
		"users":  {"id", "name"},
		"orders": {"id", "amount"},
	}}
	outs := Run(context.Background(), repo, []string{
		"users:id:name",
		"fakes:id:x",
		"orders:id:amount",
	})

	require.Len(t, outs, 3)
	assert.Equal(t, StatusShuffled, outs[0].Status)
	assert.Equal(t, StatusSkipped, outs[1].Status)
	assert.Equal(t, StatusShuffled, outs[2].Status)

	require.Len(t, repo.shuffleCalls, 2)
	assert.Equal(t, "users", repo.shuffleCalls[0].Table)
	assert.Equal(t, "orders", repo.shuffleCalls[1].Table)
}

func TestRun_MalformedSpecSkipped(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{schema: map[string][]string{
		"users": {"id", "name"},
	}}
	outs := Run(context.Background(), repo, []string{"users:id", "users:id:name"})

	require.Len(t, outs, 2)
	assert.Equal(t, StatusSkipped, outs[0].Status)
	assert.Equal(t, StatusShuffled, outs[1].Status)
	assert.Len(t, repo.shuffleCalls, 1)
}

func TestRun_ShuffleErrorIsPerTable(t *testing.T) {
	t.Parallel()

	boom := errors.New("lock wait timeout exceeded")
	repo := &fakeRepo{
		schema: map[string][]string{
			"users":  {"id", "name"},
			"orders": {"id", "amount"},
		},
		shuffleErr: boom,
	}
	outs := Run(context.Background(), repo, []string{"users:id:name", "orders:id:amount"})

	require.Len(t, outs, 2)
	for _, o := range outs {
		assert.Equal(t, StatusFailed, o.Status)
		assert.ErrorIs(t, o.Err, boom)
	}
	// Both tables were attempted despite the first failure; no retries.
	assert.Len(t, repo.shuffleCalls, 2)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode([]Outcome{
		{Status: StatusShuffled},
		{Status: StatusShuffled},
	}))
	assert.Equal(t, 2, ExitCode([]Outcome{
		{Status: StatusShuffled},
		{Status: StatusSkipped},
	}))
	assert.Equal(t, 2, ExitCode([]Outcome{
		{Status: StatusFailed},
	}))
}
