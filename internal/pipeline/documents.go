// Package pipeline orchestrates the extraction flows: submit a unit of work
// to the engine, wait for its output, normalize it, and merge the result into
// the caller's persisted aggregate.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-civic/budget-tracker/constants"
	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/entity"
	"github.com/atlas-civic/budget-tracker/internal/repository"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

// Engine workflow names.
const (
	WorkflowDocumentExtractor  = "budget_json_extractor"
	WorkflowSentimentAnalysis  = "sentiment_analysis_workflow"
	WorkflowSimilarEmbeddings  = "get_similar_embeddings"
	WorkflowGenerateEmbeddings = "generate_embeddings_task_2"
)

// DocumentConfig bounds the document extraction wait. The workflow has no
// usable terminal state, so attempts are unbounded and Timeout is the
// backstop against a hung workflow.
type DocumentConfig struct {
	PollDelay time.Duration
	Timeout   time.Duration
}

// DocumentService drives document extraction end to end and records each run
// as an extraction job.
type DocumentService struct {
	client     *workflow.Client
	poller     *workflow.Poller
	creds      workflow.CredentialProvider
	aggregates repository.AggregateRepository
	jobs       repository.JobRepository
	cfg        DocumentConfig
	schema     map[string]any
	log        *slog.Logger
}

func NewDocumentService(
	client *workflow.Client,
	poller *workflow.Poller,
	creds workflow.CredentialProvider,
	aggregates repository.AggregateRepository,
	jobs repository.JobRepository,
	cfg DocumentConfig,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		client:     client,
		poller:     poller,
		creds:      creds,
		aggregates: aggregates,
		jobs:       jobs,
		cfg:        cfg,
		schema:     workflow.BuildBudgetEntriesSchema(),
		log:        logger,
	}
}

// Process runs the whole pipeline synchronously: submit, wait until the
// extraction task publishes budget_entries, validate the payload, and merge
// it into the uid's aggregate. The calling goroutine is occupied for the full
// polling duration.
func (s *DocumentService) Process(ctx context.Context, uid, documentURL string) ([]entity.BudgetEntry, error) {
	job, err := s.jobs.Create(ctx, uid, constants.JobKindDocumentExtraction, documentURL)
	if err != nil {
		return nil, err
	}
	entries, err := s.run(ctx, job, uid, documentURL)
	if err != nil {
		_ = s.jobs.FinishFailure(context.WithoutCancel(ctx), job.ID, err.Error())
		return nil, err
	}
	if err := s.jobs.FinishSuccess(ctx, job.ID, len(entries)); err != nil {
		return nil, err
	}
	return entries, nil
}

// Enqueue records a job and processes it on a background goroutine, so the
// caller gets the job id immediately and fetches the result later. The
// goroutine's context is detached from the request and bounded by the
// configured document timeout.
func (s *DocumentService) Enqueue(ctx context.Context, uid, documentURL string) (*entity.ExtractionJob, error) {
	job, err := s.jobs.Create(ctx, uid, constants.JobKindDocumentExtraction, documentURL)
	if err != nil {
		return nil, err
	}
	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		entries, err := s.run(bg, job, uid, documentURL)
		if err != nil {
			s.log.Error("document.job.failed", "job_id", job.ID, "uid", uid, "error", err)
			// bg may be past its deadline here; the failure write must
			// still land or the job stays RUNNING forever.
			_ = s.jobs.FinishFailure(context.WithoutCancel(bg), job.ID, err.Error())
			return
		}
		if err := s.jobs.FinishSuccess(context.WithoutCancel(bg), job.ID, len(entries)); err != nil {
			s.log.Error("document.job.finish_failed", "job_id", job.ID, "error", err)
		}
	}()
	return job, nil
}

func (s *DocumentService) run(ctx context.Context, job *entity.ExtractionJob, uid, documentURL string) ([]entity.BudgetEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	token, err := s.creds.Token(ctx)
	if err != nil {
		return nil, common.NewAppError("CREDENTIALS", "resolve engine credentials", err)
	}

	workflowID, err := s.client.Submit(ctx, WorkflowDocumentExtractor, token, map[string]string{
		"document_url": documentURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.jobs.MarkRunning(ctx, job.ID, workflowID); err != nil {
		return nil, err
	}

	out, err := s.poller.Wait(ctx, workflowID, token, workflow.DocumentInterpreter{}, workflow.Policy{
		Delay: s.cfg.PollDelay,
	})
	if err != nil {
		return nil, err
	}

	entries, err := s.decodeEntries(out.Payload)
	if err != nil {
		return nil, err
	}
	if _, err := s.aggregates.Append(ctx, uid, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// decodeEntries validates the completed payload against the budget_entries
// schema and unmarshals it. A payload that fails here arrived but is
// unusable; that is reported as malformed output, not a timeout.
func (s *DocumentService) decodeEntries(payload map[string]any) ([]entity.BudgetEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewAppError("OUTPUT_ENCODE", "re-encode payload", err)
	}
	if err := workflow.ValidateJSONAgainstSchema(s.schema, raw); err != nil {
		return nil, common.NewAppError("OUTPUT_MALFORMED", "extraction output failed validation", common.WrapError(common.ErrMalformedOutput, err.Error()))
	}
	var decoded struct {
		BudgetEntries []entity.BudgetEntry `json:"budget_entries"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, common.NewAppError("OUTPUT_DECODE", "decode budget entries", common.WrapError(common.ErrMalformedOutput, err.Error()))
	}
	return decoded.BudgetEntries, nil
}

// Entries returns the uid's accumulated aggregate.
func (s *DocumentService) Entries(ctx context.Context, uid string) (*entity.UserBudgetAggregate, error) {
	return s.aggregates.Get(ctx, uid)
}

// Job returns one extraction job's current state.
func (s *DocumentService) Job(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	return s.jobs.GetByID(ctx, id)
}
