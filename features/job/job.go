package job

import (
	"encoding/json"
	"time"
)

// Job is a failed ingestion task parked for operator-driven retry. The
// original NSQ payload is kept verbatim so a retry replays it unchanged.
type Job struct {
	ID        string          `json:"id"`
	SourceID  string          `json:"source_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
