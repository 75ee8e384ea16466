package job

import (
	"encoding/json"
	"time"
)

// Job is a usage increment that could not be applied.
type Job struct {
	ID        string          `json:"id"`
	ChunkID   string          `json:"chunk_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
