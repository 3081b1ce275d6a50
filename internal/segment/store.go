package segment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/transcript"
)

// Persister stores closed segments
type Persister interface {
	AppendSegment(ctx context.Context, seg Segment) error
}

// Requester asks for suggestions over the segment log and the live partial
type Requester interface {
	RequestAsync(sessionID string, segments []Segment, partial string)
}

// Listener is notified of each new segment
type Listener interface {
	OnSegmentCreated(seg Segment)
}

// Store turns buffered transcript into segments at boundaries and keeps the
// in-memory log for the current session.
type Store struct {
	minRecording time.Duration
	buffer       *transcript.Buffer
	persister    Persister
	requester    Requester
	listener     Listener
	logger       zerolog.Logger
	now          func() time.Time

	mu        sync.Mutex
	sessionID string
	startedAt time.Time
	log       []Segment
}

// NewStore creates a segment store over buffer. persister, requester and
// listener may be nil.
func NewStore(buffer *transcript.Buffer, minRecording time.Duration, persister Persister,
	requester Requester, listener Listener, logger zerolog.Logger) *Store {
	return &Store{
		minRecording: minRecording,
		buffer:       buffer,
		persister:    persister,
		requester:    requester,
		listener:     listener,
		logger:       observability.WithComponent(logger, "segment"),
		now:          time.Now,
	}
}

// Reset starts a new session with an empty log
func (s *Store) Reset(sessionID string, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = sessionID
	s.startedAt = startedAt
	s.log = nil
}

// OnBoundary closes the buffered transcript into a segment and requests
// suggestions. Before the minimum recording time has elapsed it does nothing
// and leaves the buffer untouched.
func (s *Store) OnBoundary(ctx context.Context) (*Segment, bool) {
	s.mu.Lock()
	guarded := s.minRecording > 0 && s.now().Sub(s.startedAt) < s.minRecording
	s.mu.Unlock()

	if guarded {
		s.logger.Debug().Msg("Boundary ignored before minimum recording time")
		return nil, false
	}

	seg, ok := s.close(ctx, "silence")
	if !ok {
		return nil, false
	}

	if s.requester != nil {
		s.requester.RequestAsync(seg.SessionID, s.Segments(), s.buffer.LiveText())
	}
	return seg, true
}

// Flush closes any remaining buffered transcript at stop. It ignores the
// minimum recording time and does not request suggestions.
func (s *Store) Flush(ctx context.Context) (*Segment, bool) {
	return s.close(ctx, "stop")
}

func (s *Store) close(ctx context.Context, trigger string) (*Segment, bool) {
	text := s.buffer.DrainAndClear()
	if text == "" {
		return nil, false
	}

	s.mu.Lock()
	seg := Segment{
		ID:        uuid.New().String(),
		SessionID: s.sessionID,
		Sequence:  len(s.log),
		Text:      text,
		ClosedAt:  s.now(),
	}
	s.log = append(s.log, seg)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.AppendSegment(ctx, seg); err != nil {
			observability.RecordStorageError("append_segment")
			s.logger.Error().Err(err).Str("session_id", seg.SessionID).Int("sequence", seg.Sequence).Msg("Failed to persist segment")
		}
	}

	observability.RecordSegmentCreated(trigger)
	s.logger.Info().
		Str("session_id", seg.SessionID).
		Int("sequence", seg.Sequence).
		Str("trigger", trigger).
		Int("chars", len(seg.Text)).
		Msg("Segment created")

	if s.listener != nil {
		s.listener.OnSegmentCreated(seg)
	}
	return &seg, true
}

// Segments returns a copy of the session log, oldest first
func (s *Store) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Segment, len(s.log))
	copy(out, s.log)
	return out
}

// Len returns the number of segments in the log
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}
