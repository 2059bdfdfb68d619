package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/atlas-civic/budget-tracker/constants"
	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/entity"
)

// OpenSQLite opens or creates the embedded database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func OpenSQLite(dbPath string, logger *slog.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, common.NewAppError("DB_DIR", "create database directory", err)
		}
	}
	// _txlock=immediate makes every write transaction take the database
	// write lock at BEGIN, so concurrent appends serialize cleanly.
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, common.NewAppError("DB_OPEN", "open database", common.WrapError(common.ErrPersistence, err.Error()))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, common.NewAppError("DB_WAL", "enable WAL", common.WrapError(common.ErrPersistence, err.Error()))
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.NewAppError("DB_SCHEMA", "init schema", common.WrapError(common.ErrPersistence, err.Error()))
	}
	logger.Info("opened embedded database", "path", dbPath)
	return db, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS budget_aggregates (
	uid        TEXT PRIMARY KEY,
	entries    TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS extraction_jobs (
	id            TEXT PRIMARY KEY,
	uid           TEXT NOT NULL,
	kind          TEXT NOT NULL,
	document_url  TEXT,
	workflow_id   TEXT,
	status        TEXT NOT NULL,
	error_message TEXT,
	entry_count   INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_extraction_jobs_uid ON extraction_jobs(uid);
`

type sqliteAggregateRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteAggregateRepository(db *sql.DB, log *slog.Logger) AggregateRepository {
	return &sqliteAggregateRepo{db: db, log: log}
}

func (r *sqliteAggregateRepo) Get(ctx context.Context, uid string) (*entity.UserBudgetAggregate, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT entries FROM budget_aggregates WHERE uid = ?`, uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("AGGREGATE_NOT_FOUND", "no entries for uid", common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("failed to fetch aggregate", "uid", uid, "error", err)
		return nil, common.NewAppError("AGGREGATE_GET", "fetch aggregate", common.WrapError(common.ErrPersistence, err.Error()))
	}
	return decodeAggregate(uid, []byte(raw))
}

// Append runs the read-modify-write inside an IMMEDIATE transaction, which
// takes the database write lock up front; concurrent merges for the same uid
// serialize instead of losing a batch.
func (r *sqliteAggregateRepo) Append(ctx context.Context, uid string, entries []entity.BudgetEntry) (*entity.UserBudgetAggregate, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.NewAppError("AGGREGATE_TX", "begin", common.WrapError(common.ErrPersistence, err.Error()))
	}
	defer func() { _ = tx.Rollback() }()

	existing := []entity.BudgetEntry{}
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT entries FROM budget_aggregates WHERE uid = ?`, uid).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, common.NewAppError("AGGREGATE_GET", "fetch aggregate", common.WrapError(common.ErrPersistence, err.Error()))
	default:
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return nil, common.NewAppError("AGGREGATE_DECODE", "decode entries", common.WrapError(common.ErrPersistence, err.Error()))
		}
	}

	merged := append(existing, entries...)
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, common.NewAppError("AGGREGATE_ENCODE", "encode entries", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO budget_aggregates (uid, entries) VALUES (?, ?)
		ON CONFLICT (uid) DO UPDATE SET entries = excluded.entries, updated_at = CURRENT_TIMESTAMP`,
		uid, string(out))
	if err != nil {
		r.log.Error("failed to append entries", "uid", uid, "count", len(entries), "error", err)
		return nil, common.NewAppError("AGGREGATE_APPEND", "append entries", common.WrapError(common.ErrPersistence, err.Error()))
	}
	if err := tx.Commit(); err != nil {
		return nil, common.NewAppError("AGGREGATE_TX", "commit", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("entries merged", "uid", uid, "appended", len(entries))
	return &entity.UserBudgetAggregate{UID: uid, Entries: merged}, nil
}

type sqliteJobRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteJobRepository(db *sql.DB, log *slog.Logger) JobRepository {
	return &sqliteJobRepo{db: db, log: log}
}

func (r *sqliteJobRepo) Create(ctx context.Context, uid string, kind constants.JobKind, documentURL string) (*entity.ExtractionJob, error) {
	job := &entity.ExtractionJob{
		ID:          uuid.New(),
		UID:         uid,
		Kind:        kind,
		DocumentURL: documentURL,
		Status:      constants.JobStatusQueued,
		StartedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs (id, uid, kind, document_url, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.UID, string(job.Kind), job.DocumentURL, string(job.Status), job.StartedAt)
	if err != nil {
		r.log.Error("extraction_job create failed", "uid", uid, "error", err)
		return nil, common.NewAppError("JOB_CREATE", "create job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("extraction_job created", "job_id", job.ID, "uid", uid, "kind", string(kind))
	return job, nil
}

func (r *sqliteJobRepo) MarkRunning(ctx context.Context, id uuid.UUID, workflowID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ?, workflow_id = ? WHERE id = ?`,
		string(constants.JobStatusRunning), workflowID, id.String())
	if err != nil {
		r.log.Error("extraction_job mark running failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "mark running", common.WrapError(common.ErrPersistence, err.Error()))
	}
	return nil
}

func (r *sqliteJobRepo) FinishSuccess(ctx context.Context, id uuid.UUID, entryCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE extraction_jobs
		SET status = ?, entry_count = ?, finished_at = ?
		WHERE id = ?`,
		string(constants.JobStatusCompleted), entryCount, time.Now().UTC(), id.String())
	if err != nil {
		r.log.Error("extraction_job finish failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "finish job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Info("extraction_job finished", "job_id", id, "entries", entryCount)
	return nil
}

func (r *sqliteJobRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE extraction_jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		string(constants.JobStatusFailed), message, time.Now().UTC(), id.String())
	if err != nil {
		r.log.Error("extraction_job fail-mark failed", "job_id", id, "error", err)
		return common.NewAppError("JOB_UPDATE", "mark failed", common.WrapError(common.ErrPersistence, err.Error()))
	}
	r.log.Warn("extraction_job failed", "job_id", id, "error", message)
	return nil
}

func (r *sqliteJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	job := &entity.ExtractionJob{}
	var idStr, kind, status string
	var docURL, workflowID, errMsg sql.NullString
	var finished sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, uid, kind, document_url, workflow_id, status, error_message,
		       entry_count, started_at, finished_at
		FROM extraction_jobs WHERE id = ?`, id.String()).
		Scan(&idStr, &job.UID, &kind, &docURL, &workflowID, &status, &errMsg,
			&job.EntryCount, &job.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("JOB_NOT_FOUND", "no such job", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("JOB_GET", "fetch job", common.WrapError(common.ErrPersistence, err.Error()))
	}
	job.ID, _ = uuid.Parse(idStr)
	job.Kind = constants.JobKind(kind)
	job.Status = constants.JobStatus(status)
	job.DocumentURL = docURL.String
	job.WorkflowID = workflowID.String
	job.ErrorMessage = errMsg.String
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return job, nil
}
