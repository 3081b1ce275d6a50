package segment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/transcript"
)

type fakePersister struct {
	segments []Segment
	err      error
}

func (f *fakePersister) AppendSegment(ctx context.Context, seg Segment) error {
	if f.err != nil {
		return f.err
	}
	f.segments = append(f.segments, seg)
	return nil
}

type requestCall struct {
	sessionID string
	segments  []Segment
	partial   string
}

type fakeRequester struct {
	calls []requestCall
}

func (f *fakeRequester) RequestAsync(sessionID string, segments []Segment, partial string) {
	f.calls = append(f.calls, requestCall{sessionID, segments, partial})
}

type fakeListener struct {
	created []Segment
}

func (f *fakeListener) OnSegmentCreated(seg Segment) {
	f.created = append(f.created, seg)
}

type fixture struct {
	store     *Store
	buffer    *transcript.Buffer
	persister *fakePersister
	requester *fakeRequester
	listener  *fakeListener
	clock     time.Time
}

func newFixture(minRecording time.Duration) *fixture {
	f := &fixture{
		buffer:    transcript.NewBuffer(nil),
		persister: &fakePersister{},
		requester: &fakeRequester{},
		listener:  &fakeListener{},
		clock:     time.Unix(1700000000, 0),
	}
	f.store = NewStore(f.buffer, minRecording, f.persister, f.requester, f.listener, zerolog.Nop())
	f.store.now = func() time.Time { return f.clock }
	f.store.Reset("session-1", f.clock)
	return f
}

func TestStore_OnBoundaryCreatesSegment(t *testing.T) {
	f := newFixture(0)
	f.buffer.Append("Hello there")
	f.buffer.SetInterim("How are")

	seg, ok := f.store.OnBoundary(context.Background())
	if !ok {
		t.Fatal("Expected a segment")
	}
	if seg.Text != "Hello there" || seg.Sequence != 0 || seg.SessionID != "session-1" || seg.ID == "" {
		t.Errorf("Unexpected segment %+v", seg)
	}
	if f.buffer.CurrentText() != "" {
		t.Error("Buffer must be empty after drain")
	}
	if len(f.persister.segments) != 1 || len(f.listener.created) != 1 {
		t.Error("Expected segment persisted and notified")
	}
	if len(f.requester.calls) != 1 {
		t.Fatalf("Expected one suggestion request, got %d", len(f.requester.calls))
	}
	call := f.requester.calls[0]
	if len(call.segments) != 1 || call.partial != "How are" {
		t.Errorf("Unexpected request %+v", call)
	}
}

func TestStore_EmptyBoundaryIsNoop(t *testing.T) {
	f := newFixture(0)

	if _, ok := f.store.OnBoundary(context.Background()); ok {
		t.Error("Empty buffer must not create a segment")
	}
	if f.store.Len() != 0 || len(f.requester.calls) != 0 || len(f.persister.segments) != 0 {
		t.Error("Empty boundary must have no effect")
	}
}

func TestStore_BoundaryIsIdempotent(t *testing.T) {
	f := newFixture(0)
	f.buffer.Append("once")

	f.store.OnBoundary(context.Background())
	f.store.OnBoundary(context.Background())

	if f.store.Len() != 1 {
		t.Errorf("Expected 1 segment, got %d", f.store.Len())
	}
}

func TestStore_MinimumRecordingGuard(t *testing.T) {
	f := newFixture(30 * time.Second)
	f.buffer.Append("early words")

	f.clock = f.clock.Add(10 * time.Second)
	if _, ok := f.store.OnBoundary(context.Background()); ok {
		t.Fatal("Boundary before the guard must be ignored")
	}
	if f.buffer.CurrentText() != "early words" {
		t.Error("Guarded boundary must leave the buffer untouched")
	}

	f.clock = f.clock.Add(25 * time.Second)
	seg, ok := f.store.OnBoundary(context.Background())
	if !ok || seg.Text != "early words" {
		t.Errorf("Expected segment after guard, got %+v", seg)
	}
}

func TestStore_FlushBypassesGuardWithoutRequest(t *testing.T) {
	f := newFixture(30 * time.Second)
	f.buffer.Append("short session")

	seg, ok := f.store.Flush(context.Background())
	if !ok || seg.Text != "short session" {
		t.Fatalf("Expected flushed segment, got %+v", seg)
	}
	if len(f.requester.calls) != 0 {
		t.Error("Flush must not request suggestions")
	}

	if _, ok := f.store.Flush(context.Background()); ok {
		t.Error("Second flush must be a no-op")
	}
}

func TestStore_PersistFailureIsNonFatal(t *testing.T) {
	f := newFixture(0)
	f.persister.err = errors.New("database is locked")
	f.buffer.Append("kept in memory")

	if _, ok := f.store.OnBoundary(context.Background()); !ok {
		t.Fatal("Expected segment despite storage failure")
	}
	if f.store.Len() != 1 || len(f.listener.created) != 1 {
		t.Error("Segment must still be logged and notified")
	}
}

func TestStore_SequenceAndReset(t *testing.T) {
	f := newFixture(0)
	for _, text := range []string{"a", "b", "c"} {
		f.buffer.Append(text)
		f.store.OnBoundary(context.Background())
	}

	segs := f.store.Segments()
	if len(segs) != 3 || segs[2].Text != "c" {
		t.Fatalf("Unexpected segments %+v", segs)
	}
	if segs[2].Sequence != 2 {
		t.Errorf("Expected sequence 2, got %d", segs[2].Sequence)
	}

	f.store.Reset("session-2", f.clock)
	if f.store.Len() != 0 {
		t.Error("Reset must clear the log")
	}
}
