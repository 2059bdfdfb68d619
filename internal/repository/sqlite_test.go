package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-civic/budget-tracker/constants"
	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/entity"
)

func testRepos(t *testing.T) (AggregateRepository, JobRepository) {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteAggregateRepository(db, slog.Default()),
		NewSQLiteJobRepository(db, slog.Default())
}

func entry(dept string, amount float64) entity.BudgetEntry {
	return entity.BudgetEntry{Year: 2024, Department: dept, Category: "Operations", AmountUSD: amount}
}

func TestAggregateFirstWriteCreates(t *testing.T) {
	aggregates, _ := testRepos(t)
	ctx := context.Background()

	_, err := aggregates.Get(ctx, "user-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	batch := []entity.BudgetEntry{entry("Parks", 100), entry("Roads", 200)}
	agg, err := aggregates.Append(ctx, "user-1", batch)
	require.NoError(t, err)
	assert.Equal(t, "user-1", agg.UID)
	assert.Equal(t, batch, agg.Entries)

	got, err := aggregates.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, batch, got.Entries)
}

func TestAggregateAppendPreservesOrderAndDuplicates(t *testing.T) {
	aggregates, _ := testRepos(t)
	ctx := context.Background()

	first := []entity.BudgetEntry{entry("Parks", 100)}
	second := []entity.BudgetEntry{entry("Roads", 200), entry("Parks", 100)}

	_, err := aggregates.Append(ctx, "user-1", first)
	require.NoError(t, err)
	agg, err := aggregates.Append(ctx, "user-1", second)
	require.NoError(t, err)

	// earlier batch first, later batch appended, identical entries kept
	want := append(append([]entity.BudgetEntry{}, first...), second...)
	assert.Equal(t, want, agg.Entries)
}

func TestAggregateAppendIsolatedPerUID(t *testing.T) {
	aggregates, _ := testRepos(t)
	ctx := context.Background()

	_, err := aggregates.Append(ctx, "user-a", []entity.BudgetEntry{entry("Parks", 1)})
	require.NoError(t, err)
	_, err = aggregates.Append(ctx, "user-b", []entity.BudgetEntry{entry("Roads", 2)})
	require.NoError(t, err)

	a, err := aggregates.Get(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, a.Entries, 1)
	assert.Equal(t, "Parks", a.Entries[0].Department)

	b, err := aggregates.Get(ctx, "user-b")
	require.NoError(t, err)
	assert.Len(t, b.Entries, 1)
	assert.Equal(t, "Roads", b.Entries[0].Department)
}

func TestAggregateConcurrentAppendsLoseNothing(t *testing.T) {
	aggregates, _ := testRepos(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = aggregates.Append(ctx, "user-1",
				[]entity.BudgetEntry{entry("Dept", float64(i))})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	agg, err := aggregates.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, agg.Entries, writers)
}

func TestJobLifecycle(t *testing.T) {
	_, jobs := testRepos(t)
	ctx := context.Background()

	job, err := jobs.Create(ctx, "user-1", constants.JobKindDocumentExtraction, "https://example.com/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.NotEqual(t, uuid.Nil, job.ID)

	require.NoError(t, jobs.MarkRunning(ctx, job.ID, "wf-123"))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, got.Status)
	assert.Equal(t, "wf-123", got.WorkflowID)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, jobs.FinishSuccess(ctx, job.ID, 7))
	got, err = jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, 7, got.EntryCount)
	assert.NotNil(t, got.FinishedAt)
}

func TestJobFailure(t *testing.T) {
	_, jobs := testRepos(t)
	ctx := context.Background()

	job, err := jobs.Create(ctx, "user-1", constants.JobKindDocumentExtraction, "https://example.com/b.pdf")
	require.NoError(t, err)

	require.NoError(t, jobs.FinishFailure(ctx, job.ID, "workflow processing timeout"))
	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "workflow processing timeout", got.ErrorMessage)
}

func TestJobNotFound(t *testing.T) {
	_, jobs := testRepos(t)
	_, err := jobs.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://localhost:5432/budget"))
	assert.True(t, IsPostgresDSN("postgresql://u:p@host/db"))
	assert.False(t, IsPostgresDSN("./budget-tracker.db"))
	assert.False(t, IsPostgresDSN("/var/lib/budget/budget.db"))
}
