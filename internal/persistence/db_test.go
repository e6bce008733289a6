package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/params"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func bmeOutcome(t *testing.T) (engine.Outcome, params.Set) {
	t.Helper()
	set := params.DefaultSet()
	set.Years = 1
	out, err := engine.RunVariant(engine.VariantBME, set, engine.Env{
		Source: entropy.NewSeeded(3),
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return out, set
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	out, set := bmeOutcome(t)

	id := uuid.New()
	require.NoError(t, db.SaveRun(ctx, RunInfo{
		ID:       id,
		Scenario: "Bear",
		Seed:     3,
		Years:    1,
		Params:   set.BME,
	}, out))

	run, err := db.GetRun(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String(), run.ID)
	assert.Equal(t, "bme", run.Variant)
	assert.Equal(t, "Bear", run.Scenario)
	assert.Equal(t, int64(3), run.Seed)
	require.NotNil(t, run.Metrics)
	assert.Equal(t, out.Metrics, *run.Metrics)
	assert.False(t, run.CreatedAt.IsZero())

	var stored params.BME
	require.NoError(t, json.Unmarshal([]byte(run.ParamsJSON), &stored))
	assert.Equal(t, set.BME, stored)

	n, err := db.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSnapshots(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	out, set := bmeOutcome(t)

	id := uuid.New()
	require.NoError(t, db.SaveRun(ctx, RunInfo{ID: id, Scenario: "Baseline", Years: 1, Params: set.BME}, out))

	snaps, err := db.Snapshots(ctx, id.String(), false)
	require.NoError(t, err)
	require.Len(t, snaps, 12)
	for i, s := range snaps {
		assert.Equal(t, i+1, s.MonthIndex)
		assert.Equal(t, out.Summaries[i].Price, s.Price)
		assert.Equal(t, out.Summaries[i].Circulating, s.Circulating)
		assert.Nil(t, s.State)
	}

	snaps, err = db.Snapshots(ctx, id.String(), true)
	require.NoError(t, err)
	var last engine.BMEState
	require.NoError(t, json.Unmarshal(snaps[11].State, &last))
	assert.Equal(t, 12, last.Month)
	assert.Equal(t, out.Summaries[11].Burned, last.TotalBurned)
}

func TestMissingRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.Snapshots(ctx, "nope", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRunRejectsMismatchedHistory(t *testing.T) {
	db := openTestDB(t)
	out, _ := bmeOutcome(t)
	out.Snapshots = out.Snapshots[:3]

	err := db.SaveRun(context.Background(), RunInfo{ID: uuid.New()}, out)
	assert.Error(t, err)

	n, err := db.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	out, set := bmeOutcome(t)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	want := map[string]bool{}
	for range 3 {
		id := uuid.New()
		want[id.String()] = true
		require.NoError(t, db.SaveRun(ctx, RunInfo{ID: id, Scenario: "Baseline", Years: 1, Params: set.BME}, out))
	}

	runs, err = db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.True(t, want[r.ID])
		assert.NotNil(t, r.Metrics)
	}

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetMeta("version")
	assert.Error(t, err)

	require.NoError(t, db.SaveMeta("version", "0.1.0"))
	require.NoError(t, db.SaveMeta("version", "0.2.0"))
	v, err := db.GetMeta("version")
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", v)
}
