package worker

// IngestTaskPayload carries one document's text through the ingest.task
// topic. Chunking parameters travel with the task so the settings in force
// at submission time are the ones applied.
type IngestTaskPayload struct {
	SourceID     string `json:"source_id"`
	Name         string `json:"name"`
	Text         string `json:"text"`
	MaxChars     int    `json:"max_chars"`
	OverlapChars int    `json:"overlap_chars"`

	CorrelationID string `json:"correlation_id"`
}

// IngestResultPayload is published to ingest.result after each task, for
// observability consumers.
type IngestResultPayload struct {
	SourceID         string `json:"source_id"`
	Status           string `json:"status"` // "completed" or "failed"
	Added            int    `json:"added"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	FailedEmbedding  int    `json:"failed_embedding"`
	Error            string `json:"error,omitempty"`

	CorrelationID string `json:"correlation_id"`
}
