package constants

// JobStatus is the canonical status for rows in extraction_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // accepted, not yet picked up
	JobStatusRunning   JobStatus = "RUNNING"   // submitted to the engine, polling
	JobStatusCompleted JobStatus = "COMPLETED" // entries extracted and merged
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)

// JobKind identifies which engine workflow a job was submitted to.
type JobKind string

const (
	JobKindDocumentExtraction JobKind = "DOCUMENT_EXTRACTION"
	JobKindTextEmbedding      JobKind = "TEXT_EMBEDDING"
	JobKindSentiment          JobKind = "SENTIMENT"
	JobKindSimilaritySearch   JobKind = "SIMILARITY_SEARCH"
)

// Sentiment sentinels. The engine terminates the sentiment workflow on
// unclassifiable input; that maps to NO_MATCH, not an error. UNKNOWN means the
// workflow completed but no result field could be located in the output.
const (
	SentimentNoMatch = "NO_MATCH"
	SentimentUnknown = "UNKNOWN"
)
