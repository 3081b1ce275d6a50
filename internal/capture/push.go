package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vrcneta/topic-gateway/internal/audio"
	"github.com/vrcneta/topic-gateway/internal/observability"
)

const (
	defaultWindowSize = 2048
	frameQueueSize    = 64
)

// ErrNoStream is returned when audio is pushed with no stream acquired
var ErrNoStream = errors.New("no active capture stream")

// PushProvider hands out streams fed by frames pushed from a remote client.
// One provider serves one client connection; at most one stream is live.
type PushProvider struct {
	mu      sync.Mutex
	stream  *PushStream
	failure error
	format  Constraints
}

// NewPushProvider creates a new push provider
func NewPushProvider() *PushProvider {
	return &PushProvider{}
}

// Fail records a capture failure reported by the client. The next
// AcquireStream returns it.
func (p *PushProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failure = err
}

// SetFormat records the sample rate and encoding the client sends. Zero
// values keep the caller's constraints.
func (p *PushProvider) SetFormat(sampleRate int, encoding Encoding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = Constraints{SampleRate: sampleRate, Encoding: encoding}
}

// AcquireStream implements Provider
func (p *PushProvider) AcquireStream(ctx context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format.SampleRate > 0 {
		c.SampleRate = p.format.SampleRate
	}
	if p.format.Encoding != "" {
		c.Encoding = p.format.Encoding
	}

	if p.failure != nil {
		err := p.failure
		p.failure = nil
		return nil, err
	}

	if p.stream != nil {
		p.stream.Release()
	}

	s, err := NewPushStream(c)
	if err != nil {
		return nil, err
	}
	p.stream = s
	return s, nil
}

// Push forwards one client frame to the live stream
func (p *PushProvider) Push(payload []byte) error {
	p.mu.Lock()
	s := p.stream
	p.mu.Unlock()

	if s == nil {
		return ErrNoStream
	}
	return s.Write(payload)
}

// Close releases the live stream, if any
func (p *PushProvider) Close() {
	p.mu.Lock()
	s := p.stream
	p.stream = nil
	p.mu.Unlock()

	if s != nil {
		s.Release()
	}
}

// PushStream is a Stream written to by its owner
type PushStream struct {
	encoding   Encoding
	sampleRate int
	window     *audio.SampleWindow
	frames     chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewPushStream creates a stream for the given constraints
func NewPushStream(c Constraints) (*PushStream, error) {
	if c.Encoding == "" {
		c.Encoding = EncodingLinear16
	}
	if c.Encoding != EncodingLinear16 && c.Encoding != EncodingMulaw {
		return nil, fmt.Errorf("unsupported encoding: %s", c.Encoding)
	}
	if c.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}

	return &PushStream{
		encoding:   c.Encoding,
		sampleRate: c.SampleRate,
		window:     audio.NewSampleWindow(c.WindowSize),
		frames:     make(chan []byte, frameQueueSize),
	}, nil
}

// Write decodes a frame into the sample window and queues it as linear16
// for transcription. Frames are dropped when the queue is full.
func (s *PushStream) Write(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	pcm := payload
	if s.encoding == EncodingMulaw {
		var err error
		if pcm, err = audio.ConvertPCMUToPCM(payload); err != nil {
			return err
		}
	}

	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.ErrStreamClosed
	}

	s.window.Write(audio.ToTimeDomainBytes(samples))

	select {
	case s.frames <- pcm:
	default:
		s.dropped++
		observability.RecordFrameDropped()
	}
	return nil
}

// ReadWindow implements audio.SampleSource
func (s *PushStream) ReadWindow(dst []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return audio.ErrStreamClosed
	}
	s.window.Snapshot(dst)
	return nil
}

// Audio implements Stream
func (s *PushStream) Audio() <-chan []byte {
	return s.frames
}

// SampleRate implements Stream
func (s *PushStream) SampleRate() int {
	return s.sampleRate
}

// Dropped returns the number of frames dropped on a full queue
func (s *PushStream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Release implements Stream. Safe to call more than once.
func (s *PushStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.window.Clear()
	close(s.frames)
}
