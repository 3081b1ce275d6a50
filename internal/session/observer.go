// Package session runs one recording session: capture, silence
// segmentation, transcription and suggestion requests.
package session

import (
	"time"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

// State is the recording state of a Controller
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// StateChange describes a recording state transition
type StateChange struct {
	SessionID string
	State     State
	StartedAt time.Time
	Elapsed   time.Duration
}

// TranscriptUpdate carries one transcription result plus the live text
// that has not yet been closed into a segment
type TranscriptUpdate struct {
	SessionID string
	Text      string
	IsFinal   bool
	Live      string
}

// Observer receives everything a session publishes. Callbacks may arrive
// from several goroutines, and suggestion results may arrive after the
// session has stopped.
type Observer interface {
	OnTranscriptUpdate(update TranscriptUpdate)
	OnSegmentCreated(seg segment.Segment)
	OnSuggestions(set *suggestion.Set)
	OnRecordingStateChanged(change StateChange)
	OnError(sessionID string, err *apperr.Error)
}

// NopObserver discards all callbacks
type NopObserver struct{}

func (NopObserver) OnTranscriptUpdate(TranscriptUpdate) {}
func (NopObserver) OnSegmentCreated(segment.Segment)    {}
func (NopObserver) OnSuggestions(*suggestion.Set)       {}
func (NopObserver) OnRecordingStateChanged(StateChange) {}
func (NopObserver) OnError(string, *apperr.Error)       {}
