package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-civic/budget-tracker/internal/common"
	"github.com/atlas-civic/budget-tracker/internal/text"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

// EmbeddingConfig controls chunking for the indexing pipeline.
type EmbeddingConfig struct {
	ChunkSize int
}

// EmbeddingResult reports how a generation run went. Failed chunks do not
// abort their siblings; they are only counted.
type EmbeddingResult struct {
	Chunks    int `json:"chunks"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}

// EmbeddingService splits transcript text into sentence-aligned chunks and
// submits each one to the embedding-generation workflow. Submissions are
// fire-and-forget: nothing polls them.
type EmbeddingService struct {
	client *workflow.Client
	creds  workflow.CredentialProvider
	cfg    EmbeddingConfig
	log    *slog.Logger
}

func NewEmbeddingService(client *workflow.Client, creds workflow.CredentialProvider, cfg EmbeddingConfig, logger *slog.Logger) *EmbeddingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingService{client: client, creds: creds, cfg: cfg, log: logger}
}

// Generate chunks the input and submits the chunks sequentially. A failed
// submission is logged and counted but never stops the remaining chunks.
func (s *EmbeddingService) Generate(ctx context.Context, input string) (*EmbeddingResult, error) {
	if input == "" {
		return nil, common.NewAppError("INVALID_TEXT", "text is required", common.ErrInvalidInput)
	}

	// One token for the whole run, not one per chunk.
	token, err := s.creds.Token(ctx)
	if err != nil {
		return nil, common.NewAppError("CREDENTIALS", "resolve engine credentials", err)
	}

	chunks := text.Chunk(input, s.cfg.ChunkSize)
	result := &EmbeddingResult{Chunks: len(chunks)}
	for i, chunk := range chunks {
		id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
		if _, err := s.client.Submit(ctx, WorkflowGenerateEmbeddings, token, map[string]string{
			"id":   id,
			"text": chunk,
		}); err != nil {
			s.log.Error("embeddings.chunk_failed", "chunk", i, "error", err)
			result.Failed++
			continue
		}
		result.Submitted++
	}

	s.log.Info("embeddings.generated",
		"chunks", result.Chunks,
		"submitted", result.Submitted,
		"failed", result.Failed,
	)
	return result, nil
}
