package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-civic/budget-tracker/constants"
	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/entity"
)

// OpenPostgres creates a pgx pool and ensures the schema exists.
func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.NewAppError("DB_CONFIG", "parse DSN", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "budget-tracker"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DB_CONNECT", "connect", common.WrapError(common.ErrPersistence, err.Error()))
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, common.NewAppError("DB_SCHEMA", "init schema", common.WrapError(common.ErrPersistence, err.Error()))
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS budget_aggregates (
	uid        TEXT PRIMARY KEY,
	entries    JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_jobs (
	id            UUID PRIMARY KEY,
	uid           TEXT NOT NULL,
	kind          TEXT NOT NULL,
	document_url  TEXT,
	workflow_id   TEXT,
	status        TEXT NOT NULL,
	error_message TEXT,
	entry_count   INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_extraction_jobs_uid ON extraction_jobs(uid);
`

type pgAggregateRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPGAggregateRepository(pool *pgxpool.Pool, log *slog.Logger) AggregateRepository {
	return &pgAggregateRepo{pool: pool, log: log}
}

func (r *pgAggregateRepo) Get(ctx context.Context, uid string) (*entity.UserBudgetAggregate, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT entries FROM budget_aggregates WHERE uid = $1`, uid).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("AGGREGATE_NOT_FOUND", "no entries for uid", common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("failed to fetch aggregate", "uid", uid, "error", err)
		return nil, common.NewAppError("AGGREGATE_GET", "fetch aggregate", common.WrapError(common.ErrPersistence, err.Error()))
	}
	return decodeAggregate(uid, raw)
}

// Append merges one extracted batch into the uid's aggregate in a single
// atomic statement: jsonb concatenation on conflict. Two concurrent merges
// for the same uid serialize on the row, so neither batch is lost; their
// relative order is completion order.
func (r *pgAggregateRepo) Append(ctx context.Context, uid string, entries []entity.BudgetEntry) (*entity.UserBudgetAggregate, error) {
	batch, err := json.Marshal(entries)
	if err != nil {
		return nil, common.NewAppError("AGGREGATE_ENCODE", "encode entries", err)
	}
	var raw []byte
	err = r.pool.QueryRow(ctx, `
		INSERT INTO budget_aggregates (uid, entries)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (uid) DO UPDATE
		SET entries = budget_aggregates.entries || EXCLUDED.entries,
		    updated_at = now()
		RETURNING entries`, uid, batch).Scan(&raw)
	if err != nil {
		r.log.Error("failed to append entries", "uid", uid, "count", len(entries), "error", err)
		return nil, common.NewAppError("AGGREGATE_APPEND", "append entries", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("entries merged", "uid", uid, "appended", len(entries))
	return decodeAggregate(uid, raw)
}

func decodeAggregate(uid string, raw []byte) (*entity.UserBudgetAggregate, error) {
	agg := &entity.UserBudgetAggregate{UID: uid}
	if err := json.Unmarshal(raw, &agg.Entries); err != nil {
		return nil, common.NewAppError("AGGREGATE_DECODE", "decode entries", common.WrapError(common.ErrPersistence, err.Error()))
	}
	return agg, nil
}

type pgJobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPGJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &pgJobRepo{pool: pool, log: log}
}

func (r *pgJobRepo) Create(ctx context.Context, uid string, kind constants.JobKind, documentURL string) (*entity.ExtractionJob, error) {
	job := &entity.ExtractionJob{
		ID:          uuid.New(),
		UID:         uid,
		Kind:        kind,
		DocumentURL: documentURL,
		Status:      constants.JobStatusQueued,
		StartedAt:   time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extraction_jobs (id, uid, kind, document_url, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.UID, string(job.Kind), job.DocumentURL, string(job.Status), job.StartedAt)
	if err != nil {
		r.log.Error("extraction_job create failed", "uid", uid, "error", err)
		return nil, common.NewAppError("JOB_CREATE", "create job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("extraction_job created", "job_id", job.ID, "uid", uid, "kind", string(kind))
	return job, nil
}

func (r *pgJobRepo) MarkRunning(ctx context.Context, id uuid.UUID, workflowID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE extraction_jobs SET status = $2, workflow_id = $3 WHERE id = $1`,
		id, string(constants.JobStatusRunning), workflowID)
	if err != nil {
		r.log.Error("extraction_job mark running failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "mark running", common.WrapError(common.ErrPersistence, err.Error()))
	}
	return nil
}

func (r *pgJobRepo) FinishSuccess(ctx context.Context, id uuid.UUID, entryCount int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE extraction_jobs
		SET status = $2, entry_count = $3, finished_at = now()
		WHERE id = $1`,
		id, string(constants.JobStatusCompleted), entryCount)
	if err != nil {
		r.log.Error("extraction_job finish failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "finish job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("extraction_job finished", "job_id", id, "entries", entryCount)
	return nil
}

func (r *pgJobRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE extraction_jobs
		SET status = $2, error_message = $3, finished_at = now()
		WHERE id = $1`,
		id, string(constants.JobStatusFailed), message)
	if err != nil {
		r.log.Error("extraction_job fail-mark failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "mark failed", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Warn("extraction_job failed", "job_id", id, "error", message)
	return nil
}

func (r *pgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	job := &entity.ExtractionJob{}
	var kind, status string
	var docURL, workflowID, errMsg *string
	var finished *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, uid, kind, document_url, workflow_id, status, error_message,
		       entry_count, started_at, finished_at
		FROM extraction_jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.UID, &kind, &docURL, &workflowID, &status, &errMsg,
			&job.EntryCount, &job.StartedAt, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("JOB_NOT_FOUND", "no such job", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("JOB_GET", "fetch job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	job.Kind = constants.JobKind(kind)
	job.Status = constants.JobStatus(status)
	if docURL != nil {
		job.DocumentURL = *docURL
	}
	if workflowID != nil {
		job.WorkflowID = *workflowID
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	job.FinishedAt = finished
	return job, nil
}
