package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlas-civic/budget-tracker/constants"
)

// ExtractionJob represents one document-extraction job for data transfer
// between layers. WorkflowID is the engine's opaque handle; it is empty until
// submission succeeds.
type ExtractionJob struct {
	ID           uuid.UUID           `json:"id"`
	UID          string              `json:"uid"`
	Kind         constants.JobKind   `json:"kind"`
	DocumentURL  string              `json:"document_url,omitempty"`
	WorkflowID   string              `json:"workflow_id,omitempty"`
	Status       constants.JobStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	EntryCount   int                 `json:"entry_count"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
