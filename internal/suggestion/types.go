package suggestion

import "time"

// Suggestion is one proposed conversation topic
type Suggestion struct {
	Topic    string `json:"topic"`
	DeepDive string `json:"deepDive,omitempty"` // follow-up question or angle
}

// Set is the parsed result of one suggestion request
type Set struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	Suggestions []Suggestion `json:"suggestions"`
}
