package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-civic/budget-tracker/internal/common"
)

type documentRequest struct {
	UID         string `json:"uid"`
	DocumentURL string `json:"document_url"`
}

func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UID == "" || req.DocumentURL == "" {
		s.respondError(w, http.StatusBadRequest, "uid and document_url are required")
		return
	}
	job, err := s.documents.Enqueue(r.Context(), req.UID, req.DocumentURL)
	if err != nil {
		s.logger.Error("document enqueue failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID.String(),
		"status": string(job.Status),
	})
}

// handleProcessDocument preserves the original blocking behavior: the request
// is held open for the whole extraction and answers with the new entries.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UID == "" || req.DocumentURL == "" {
		s.respondError(w, http.StatusBadRequest, "uid and document_url are required")
		return
	}
	entries, err := s.documents.Process(r.Context(), req.UID, req.DocumentURL)
	if err != nil {
		s.logger.Error("document processing failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.documents.Job(r.Context(), id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		s.respondError(w, http.StatusBadRequest, "uid is required")
		return
	}
	agg, err := s.documents.Entries(r.Context(), req.UID)
	if errors.Is(err, common.ErrNotFound) {
		// A uid that never uploaded anything has an empty ledger, not a 404.
		s.respondJSON(w, http.StatusOK, map[string]any{"entries": []any{}})
		return
	}
	if err != nil {
		s.logger.Error("fetch entries failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": agg.Entries})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "invalid input text")
		return
	}
	result, err := s.sentiment.Classify(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("sentiment analysis failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "invalid input text")
		return
	}
	answer, err := s.assistant.Ask(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("assistant query failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"data": answer})
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "invalid input text")
		return
	}
	result, err := s.embeddings.Generate(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("embedding generation failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		s.respondError(w, http.StatusBadRequest, "uid is required")
		return
	}
	data, err := s.exporter.ExportEntriesXLSX(r.Context(), req.UID)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="budget-entries.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AudioURL == "" {
		s.respondError(w, http.StatusBadRequest, "audio_url is required")
		return
	}
	transcription, err := s.media.Transcribe(r.Context(), req.AudioURL)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to process audio file")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"transcription": transcription})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError maps pipeline errors onto status codes; timeouts and
// upstream failures get their own codes so clients can tell them apart.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	message := "processing failed"
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	s.respondError(w, status, message)
}
