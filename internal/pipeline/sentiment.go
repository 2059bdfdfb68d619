package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

// extractClassificationTask is the reference name of the task consulted when
// the sentiment workflow output carries no direct result.
const extractClassificationTask = "extract_classification"

// SentimentConfig bounds one classification wait.
type SentimentConfig struct {
	PollDelay   time.Duration
	MaxAttempts int
}

// Classification is the result of one sentiment run. Label may be a sentinel
// (NO_MATCH for terminated workflows, UNKNOWN when no result was located).
type Classification struct {
	Label      string `json:"sentiment"`
	Text       string `json:"original_text"`
	WorkflowID string `json:"workflow_id"`
}

// SentimentService classifies free text through the engine's sentiment
// workflow.
type SentimentService struct {
	client *workflow.Client
	poller *workflow.Poller
	creds  workflow.CredentialProvider
	cfg    SentimentConfig
	log    *slog.Logger
}

func NewSentimentService(client *workflow.Client, poller *workflow.Poller, creds workflow.CredentialProvider, cfg SentimentConfig, logger *slog.Logger) *SentimentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentimentService{client: client, poller: poller, creds: creds, cfg: cfg, log: logger}
}

// Classify submits text and waits for a label. A workflow the engine
// terminates is not an error: it yields the NO_MATCH sentinel.
func (s *SentimentService) Classify(ctx context.Context, text string) (*Classification, error) {
	if text == "" {
		return nil, common.NewAppError("INVALID_TEXT", "text is required", common.ErrInvalidInput)
	}

	token, err := s.creds.Token(ctx)
	if err != nil {
		return nil, common.NewAppError("CREDENTIALS", "resolve engine credentials", err)
	}

	workflowID, err := s.client.Submit(ctx, WorkflowSentimentAnalysis, token, map[string]string{
		"text": text,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.poller.Wait(ctx, workflowID, token,
		workflow.SentimentInterpreter{TaskRef: extractClassificationTask},
		workflow.Policy{Delay: s.cfg.PollDelay, MaxAttempts: s.cfg.MaxAttempts})
	if err != nil {
		return nil, err
	}

	s.log.Info("sentiment.classified", "workflow_id", workflowID, "label", out.Result)
	return &Classification{Label: out.Result, Text: text, WorkflowID: workflowID}, nil
}
