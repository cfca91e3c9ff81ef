package store

import (
	"encoding/json"
	"time"
)

// Archive is one persisted SOP generation: the source diagram and the
// produced context, keyed by a caller-assigned or generated UUID.
type Archive struct {
	ID          string          `json:"id"`
	ProcessName string          `json:"process_name"`
	ProcessCode string          `json:"process_code,omitempty"`
	SourceXML   []byte          `json:"-"`
	Context     json.RawMessage `json:"context"`
	StepCount   int             `json:"step_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Revision is one immutable entry in an archive's regeneration history.
// Revision numbers are contiguous per archive, starting at 1.
type Revision struct {
	ID        int64           `json:"id"`
	ArchiveID string          `json:"archive_id"`
	Revision  int64           `json:"revision"`
	Context   json.RawMessage `json:"context"`
	Note      string          `json:"note,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Session is a client session on the tool or HTTP surface.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ArchiveFilter specifies criteria for listing archives.
type ArchiveFilter struct {
	ProcessName string     `json:"process_name,omitempty"`
	ProcessCode string     `json:"process_code,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
