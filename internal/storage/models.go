package storage

import (
	"time"

	"github.com/vrcneta/topic-gateway/internal/segment"
)

// Conversation is one recording session and its segments
type Conversation struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
	Segments  []segment.Segment `json:"segments"`
}
