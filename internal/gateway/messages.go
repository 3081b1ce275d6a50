package gateway

import (
	"time"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

// Client events
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
)

// Server events
const (
	EventState       = "state"
	EventTranscript  = "transcript"
	EventSegment     = "segment"
	EventSuggestions = "suggestions"
	EventError       = "error"
)

// ClientMessage is a message from the browser extension
type ClientMessage struct {
	Event string        `json:"event"`
	Start *StartPayload `json:"start,omitempty"`
	Media *MediaPayload `json:"media,omitempty"`
}

// StartPayload describes the client's audio format. Error carries the
// DOMException name when the client failed to open the microphone.
type StartPayload struct {
	SampleRate int    `json:"sampleRate"`
	Encoding   string `json:"encoding"`
	Error      string `json:"error,omitempty"`
}

// MediaPayload carries one audio frame
type MediaPayload struct {
	Payload string `json:"payload"` // Base64 encoded audio
	Chunk   string `json:"chunk"`   // Alternative field name for payload
}

// ServerMessage is a message to the browser extension
type ServerMessage struct {
	Event       string             `json:"event"`
	SessionID   string             `json:"sessionId,omitempty"`
	State       *StatePayload      `json:"state,omitempty"`
	Transcript  *TranscriptPayload `json:"transcript,omitempty"`
	Segment     *segment.Segment   `json:"segment,omitempty"`
	Suggestions *suggestion.Set    `json:"suggestions,omitempty"`
	Error       *ErrorPayload      `json:"error,omitempty"`
	Timestamp   int64              `json:"timestamp"`
}

// StatePayload reports a recording state change
type StatePayload struct {
	State     string    `json:"state"`
	StartedAt time.Time `json:"startedAt"`
	ElapsedMs int64     `json:"elapsedMs"`
}

// TranscriptPayload reports one transcription result
type TranscriptPayload struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
	Live    string `json:"live"`
}

// ErrorPayload reports a typed failure
type ErrorPayload struct {
	Code       apperr.Code       `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func errorPayload(err *apperr.Error) *ErrorPayload {
	return &ErrorPayload{
		Code:       err.Code,
		Message:    err.Message,
		StatusCode: err.StatusCode,
		Metadata:   err.Metadata,
	}
}
