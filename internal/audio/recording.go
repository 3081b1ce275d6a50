package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavChannels    = 1
	wavFormatPCM   = 1
	wavFileModeDir = 0o755

	// samples converted per encoder write
	encodeChunk = 16384
)

// Recorder accumulates the PCM of a session so it can be saved as WAV
type Recorder struct {
	sampleRate int
	samples    []int16
	mu         sync.Mutex
}

// NewRecorder creates a mono 16-bit recorder
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{sampleRate: sampleRate}
}

// Write appends samples to the recording
func (r *Recorder) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, samples...)
}

// Len returns the number of recorded samples
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Duration returns the recorded length
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(r.samples)) * time.Second / time.Duration(r.sampleRate)
}

// Encode writes the recording as a RIFF WAV file. Samples are widened for
// the encoder one chunk at a time.
func (r *Recorder) Encode(w io.WriteSeeker) error {
	r.mu.Lock()
	samples := r.samples[:len(r.samples):len(r.samples)]
	r.mu.Unlock()

	encoder := wav.NewEncoder(w, r.sampleRate, wavBitDepth, wavChannels, wavFormatPCM)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: wavChannels,
			SampleRate:  r.sampleRate,
		},
		Data:           make([]int, 0, encodeChunk),
		SourceBitDepth: wavBitDepth,
	}

	for len(samples) > 0 {
		n := len(samples)
		if n > encodeChunk {
			n = encodeChunk
		}

		buf.Data = buf.Data[:n]
		for i, s := range samples[:n] {
			buf.Data[i] = int(s)
		}
		samples = samples[n:]

		if err := encoder.Write(buf); err != nil {
			return fmt.Errorf("encoder write buffer: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("encoder close: %w", err)
	}

	return nil
}

// SaveFile writes the recording to path, creating parent directories
func (r *Recorder) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), wavFileModeDir); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}

	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
