// Package repository persists the per-user budget aggregate and the
// extraction job records. Two backends implement the same interfaces:
// Postgres through a pgx pool, and an embedded SQLite database for local use.
package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/atlas-civic/budget-tracker/constants"
	"github.com/atlas-civic/budget-tracker/internal/entity"
)

// AggregateRepository owns the one-row-per-uid accumulated entries record.
//
// Append is the upsert-or-append merge: first write for a uid inserts, later
// writes concatenate preserving order, duplicates kept. Implementations must
// make concurrent appends for the same uid safe (no lost batches).
type AggregateRepository interface {
	Get(ctx context.Context, uid string) (*entity.UserBudgetAggregate, error)
	Append(ctx context.Context, uid string, entries []entity.BudgetEntry) (*entity.UserBudgetAggregate, error)
}

// JobRepository tracks document extraction jobs across their lifecycle.
type JobRepository interface {
	Create(ctx context.Context, uid string, kind constants.JobKind, documentURL string) (*entity.ExtractionJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID, workflowID string) error
	FinishSuccess(ctx context.Context, id uuid.UUID, entryCount int) error
	FinishFailure(ctx context.Context, id uuid.UUID, message string) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
}

// IsPostgresDSN reports whether dsn points at a Postgres server; anything
// else is treated as a SQLite file path.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
