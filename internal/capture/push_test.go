package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
)

func TestPushProvider_AcquireAndPush(t *testing.T) {
	provider := NewPushProvider()

	if err := provider.Push([]byte{0, 0}); !errors.Is(err, ErrNoStream) {
		t.Errorf("Expected ErrNoStream before acquire, got %v", err)
	}

	stream, err := provider.AcquireStream(context.Background(), Constraints{SampleRate: 16000, WindowSize: 4})
	if err != nil {
		t.Fatalf("AcquireStream failed: %v", err)
	}
	defer stream.Release()

	pcm := audio.EncodePCM16([]int16{0, 32767, -32768, 256})
	if err := provider.Push(pcm); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	window := make([]byte, 4)
	if err := stream.ReadWindow(window); err != nil {
		t.Fatalf("ReadWindow failed: %v", err)
	}
	expected := []byte{128, 255, 0, 129}
	for i := range expected {
		if window[i] != expected[i] {
			t.Errorf("Window %d: expected %d, got %d", i, expected[i], window[i])
		}
	}

	select {
	case frame := <-stream.Audio():
		if len(frame) != len(pcm) {
			t.Errorf("Expected frame of %d bytes, got %d", len(pcm), len(frame))
		}
	default:
		t.Error("Expected a queued frame")
	}

	if stream.SampleRate() != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", stream.SampleRate())
	}
}

func TestPushProvider_MulawFrames(t *testing.T) {
	provider := NewPushProvider()
	stream, err := provider.AcquireStream(context.Background(), Constraints{
		SampleRate: 8000,
		Encoding:   EncodingMulaw,
		WindowSize: 2,
	})
	if err != nil {
		t.Fatalf("AcquireStream failed: %v", err)
	}
	defer stream.Release()

	if err := provider.Push([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	frame := <-stream.Audio()
	if len(frame) != 4 {
		t.Errorf("Expected 4 bytes of linear16, got %d", len(frame))
	}

	window := make([]byte, 2)
	stream.ReadWindow(window)
	if audio.Loudness(window) != 0 {
		t.Errorf("Expected silent window, got level %f", audio.Loudness(window))
	}
}

func TestPushProvider_Fail(t *testing.T) {
	provider := NewPushProvider()
	provider.Fail(ErrorFromDOMException("NotAllowedError"))

	_, err := provider.AcquireStream(context.Background(), Constraints{SampleRate: 16000})
	if !apperr.IsCode(err, apperr.PermissionDenied) {
		t.Fatalf("Expected PermissionDenied, got %v", err)
	}

	// The failure is consumed by one acquire
	stream, err := provider.AcquireStream(context.Background(), Constraints{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Expected second acquire to succeed, got %v", err)
	}
	stream.Release()
}

func TestPushStream_Release(t *testing.T) {
	provider := NewPushProvider()
	stream, err := provider.AcquireStream(context.Background(), Constraints{SampleRate: 16000})
	if err != nil {
		t.Fatalf("AcquireStream failed: %v", err)
	}

	provider.Close()
	stream.Release() // second release is a no-op

	if err := stream.ReadWindow(make([]byte, 8)); !errors.Is(err, audio.ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", err)
	}
	if _, ok := <-stream.Audio(); ok {
		t.Error("Expected audio channel to be closed")
	}
	if err := provider.Push([]byte{0, 0}); !errors.Is(err, ErrNoStream) {
		t.Errorf("Expected ErrNoStream after close, got %v", err)
	}
}

func TestPushStream_DropsWhenFull(t *testing.T) {
	stream, err := NewPushStream(Constraints{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewPushStream failed: %v", err)
	}
	defer stream.Release()

	for i := 0; i < frameQueueSize+3; i++ {
		if err := stream.Write([]byte{1, 0}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if stream.Dropped() != 3 {
		t.Errorf("Expected 3 dropped frames, got %d", stream.Dropped())
	}
}

func TestNewPushStream_Invalid(t *testing.T) {
	if _, err := NewPushStream(Constraints{SampleRate: 0}); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := NewPushStream(Constraints{SampleRate: 16000, Encoding: "opus"}); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
}

func TestErrorFromDOMException(t *testing.T) {
	tests := []struct {
		name     string
		expected apperr.Code
	}{
		{"NotAllowedError", apperr.PermissionDenied},
		{"SecurityError", apperr.PermissionDenied},
		{"NotFoundError", apperr.DeviceNotFound},
		{"OverconstrainedError", apperr.DeviceNotFound},
		{"NotSupportedError", apperr.CapabilityUnsupported},
		{"", apperr.CapabilityUnsupported},
	}

	for _, tt := range tests {
		if got := ErrorFromDOMException(tt.name).Code; got != tt.expected {
			t.Errorf("ErrorFromDOMException(%q) = %s, expected %s", tt.name, got, tt.expected)
		}
	}
}

func TestUnsupported(t *testing.T) {
	_, err := Unsupported{}.AcquireStream(context.Background(), Constraints{})
	if !apperr.IsCode(err, apperr.CapabilityUnsupported) {
		t.Errorf("Expected CapabilityUnsupported, got %v", err)
	}
}

func TestPushProvider_SetFormat(t *testing.T) {
	p := NewPushProvider()
	p.SetFormat(8000, EncodingMulaw)

	s, err := p.AcquireStream(context.Background(), Constraints{SampleRate: 16000, Encoding: EncodingLinear16})
	if err != nil {
		t.Fatalf("AcquireStream failed: %v", err)
	}
	defer s.Release()

	if s.SampleRate() != 8000 {
		t.Errorf("Expected client sample rate 8000, got %d", s.SampleRate())
	}

	// One μ-law byte decodes to one 16-bit sample
	if err := p.Push([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	frame := <-s.Audio()
	if len(frame) != 4 {
		t.Errorf("Expected 4 bytes of linear16, got %d", len(frame))
	}
}
