// Package segment owns the transcript segment log of a recording session.
package segment

import "time"

// Segment is a closed stretch of transcript, delimited by silence or stop
type Segment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	ClosedAt  time.Time `json:"closedAt"`
}
