//go:build portaudio

package capture

import (
	"context"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
)

const framesPerBuffer = 1024

// PortAudioProvider captures from the default input device
type PortAudioProvider struct{}

// NewLocalProvider returns the PortAudio provider
func NewLocalProvider() Provider {
	return &PortAudioProvider{}
}

// AcquireStream opens and starts the default input device
func (p *PortAudioProvider) AcquireStream(ctx context.Context, c Constraints) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(err, apperr.CapabilityUnsupported, "initialize portaudio")
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil || dev.MaxInputChannels < 1 {
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.DeviceNotFound, "no default input device")
	}

	c.Encoding = EncodingLinear16
	push, err := NewPushStream(c)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.CapabilityUnsupported, "invalid capture constraints")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.PermissionDenied, "open input stream")
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.PermissionDenied, "start input stream")
	}

	s := &portAudioStream{PushStream: push, stream: stream, done: make(chan struct{})}
	go s.readLoop(buf, dev.Name)

	log.Info().Str("device", dev.Name).Int("sample_rate", c.SampleRate).Msg("Started audio capture")
	return s, nil
}

type portAudioStream struct {
	*PushStream
	stream   *portaudio.Stream
	done     chan struct{}
	stopOnce sync.Once
}

func (s *portAudioStream) readLoop(buf []int16, device string) {
	defer s.Release()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			log.Debug().Err(err).Str("device", device).Msg("Audio read error")
			return
		}

		if err := s.PushStream.Write(audio.EncodePCM16(buf)); err != nil {
			return
		}
	}
}

// Release stops the device and closes the stream. Safe to call more than once.
func (s *portAudioStream) Release() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.stream.Stop()
		_ = s.stream.Close()
		_ = portaudio.Terminate()
		s.PushStream.Release()
	})
}
