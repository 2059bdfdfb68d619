package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/llm"
	"github.com/atlas-civic/budget-tracker/internal/text"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

// AssistantConfig bounds the similarity-search wait. The source workflow had
// no attempt cap at all; a bounded one is used here so a query with no match
// surfaces as a timeout instead of hanging the request.
type AssistantConfig struct {
	PollDelay   time.Duration
	MaxAttempts int
}

// AssistantService answers questions about meeting transcripts: it finds the
// most similar indexed passage through the engine and grounds a chat
// completion on it.
type AssistantService struct {
	client *workflow.Client
	poller *workflow.Poller
	creds  workflow.CredentialProvider
	chat   *llm.Client
	cfg    AssistantConfig
	log    *slog.Logger
}

func NewAssistantService(client *workflow.Client, poller *workflow.Poller, creds workflow.CredentialProvider, chat *llm.Client, cfg AssistantConfig, logger *slog.Logger) *AssistantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssistantService{client: client, poller: poller, creds: creds, chat: chat, cfg: cfg, log: logger}
}

// Ask filters the question (duplicate words, then stop words), retrieves the
// closest passage, and asks the chat model for a grounded answer.
func (s *AssistantService) Ask(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", common.NewAppError("INVALID_TEXT", "text is required", common.ErrInvalidInput)
	}
	filtered := text.StripStopWords(text.DedupeWords(question))

	token, err := s.creds.Token(ctx)
	if err != nil {
		return "", common.NewAppError("CREDENTIALS", "resolve engine credentials", err)
	}

	workflowID, err := s.client.Submit(ctx, WorkflowSimilarEmbeddings, token, map[string]string{
		"text": filtered,
	})
	if err != nil {
		return "", err
	}

	out, err := s.poller.Wait(ctx, workflowID, token, workflow.SimilarityInterpreter{},
		workflow.Policy{Delay: s.cfg.PollDelay, MaxAttempts: s.cfg.MaxAttempts})
	if err != nil {
		return "", err
	}
	passage := out.Result

	answer, err := s.chat.Chat(ctx, assistantSystemPrompt, assistantUserPrompt(passage, filtered))
	if err != nil {
		return "", err
	}
	s.log.Info("assistant.answered", "workflow_id", workflowID, "passage_len", len(passage))
	return answer, nil
}

const assistantSystemPrompt = "You are a helpful assistant."

func assistantUserPrompt(passage, question string) string {
	return fmt.Sprintf(`You are Ava, the Atlas Virtual Assistant, a kind and high-spirited government budget interpretability assistant that helps answer questions based on the provided context, which is a transcription portion of a board meeting.
Your goal is to provide accurate, helpful responses based only on the information given.
If the context doesn't contain much relevant information, acknowledge that you don't have enough information.

%s

User question: %s

Please provide a helpful response based on the above context.`, passage, question)
}
