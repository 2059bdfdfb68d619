package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-civic/budget-tracker/internal/export"
	"github.com/atlas-civic/budget-tracker/internal/llm"
	"github.com/atlas-civic/budget-tracker/internal/pipeline"
	"github.com/atlas-civic/budget-tracker/internal/repository"
	"github.com/atlas-civic/budget-tracker/internal/workflow"
)

// fakeEngine answers submissions with sequential ids and every poll with the
// configured state.
type fakeEngine struct {
	mu    sync.Mutex
	n     int
	state map[string]any
}

func (e *fakeEngine) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			e.mu.Lock()
			e.n++
			id := e.n
			e.mu.Unlock()
			fmt.Fprintf(w, "wf-%d", id)
			return
		}
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state)
	})
}

func newTestServer(t *testing.T, engine *fakeEngine) http.Handler {
	t.Helper()
	engineSrv := httptest.NewServer(engine.handler())
	t.Cleanup(engineSrv.Close)

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	aggregates := repository.NewSQLiteAggregateRepository(db, slog.Default())
	jobs := repository.NewSQLiteJobRepository(db, slog.Default())

	client := workflow.NewClient(engineSrv.URL, engineSrv.Client(), nil)
	poller := workflow.NewPoller(client, nil)
	creds := workflow.StaticKey("tok")

	documents := pipeline.NewDocumentService(client, poller, creds, aggregates, jobs,
		pipeline.DocumentConfig{PollDelay: time.Millisecond, Timeout: 5 * time.Second}, nil)
	sentiment := pipeline.NewSentimentService(client, poller, creds,
		pipeline.SentimentConfig{PollDelay: time.Millisecond, MaxAttempts: 5}, nil)
	assistant := pipeline.NewAssistantService(client, poller, creds,
		&llm.Client{BaseURL: "http://unused", Model: "gpt-4"},
		pipeline.AssistantConfig{PollDelay: time.Millisecond, MaxAttempts: 5}, nil)
	embeddings := pipeline.NewEmbeddingService(client, creds,
		pipeline.EmbeddingConfig{ChunkSize: 500}, nil)

	srv := NewServer(documents, sentiment, assistant, embeddings,
		export.NewService(aggregates, slog.Default()),
		&llm.Client{BaseURL: "http://unused", Model: "whisper-1"},
		zap.NewNop())
	return srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func completedExtraction() map[string]any {
	return map[string]any{
		"status": "COMPLETED",
		"tasks": []any{
			map[string]any{},
			map[string]any{"outputData": map[string]any{"budget_entries": []any{
				map[string]any{"year": 2024, "department": "Parks", "amount_usd": 150000.0},
			}}},
		},
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})
	rec := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetEntriesEmptyUID(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/entries", `{"uid":"nobody"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "unknown uid has an empty ledger, not an error")
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/entries", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessDocumentEndToEnd(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: completedExtraction()})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents/process",
		`{"uid":"user-1","document_url":"https://example.com/budget.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "Parks", resp.Entries[0]["department"])

	rec = doJSON(t, h, http.MethodPost, "/api/v1/entries", `{"uid":"user-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 1)
}

func TestSubmitDocumentAsync(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: completedExtraction()})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents",
		`{"uid":"user-1","document_url":"https://example.com/budget.pdf"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "QUEUED", accepted.Status)
	require.NotEmpty(t, accepted.JobID)

	require.Eventually(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var job struct {
			Status string `json:"status"`
		}
		return json.Unmarshal(rec.Body.Bytes(), &job) == nil && job.Status == "COMPLETED"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitDocumentValidation(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents", `{"uid":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/documents", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})
	rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSentimentEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{
		"status": "COMPLETED",
		"output": map[string]any{"result": "POSITIVE"},
	}})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sentiment", `{"text":"great news for parks"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sentiment string `json:"sentiment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "POSITIVE", resp.Sentiment)
}

func TestSentimentTimeoutStatus(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sentiment", `{"text":"never finishes"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: completedExtraction()})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents/process",
		`{"uid":"user-1","document_url":"https://example.com/budget.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/export", `{"uid":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestEmbeddingsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeEngine{state: map[string]any{"status": "RUNNING"}})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/embeddings",
		`{"text":"The board met. Budgets were discussed."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Chunks    int `json:"chunks"`
		Submitted int `json:"submitted"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Chunks)
	assert.Equal(t, 1, resp.Submitted)
	assert.Zero(t, resp.Failed)
}
