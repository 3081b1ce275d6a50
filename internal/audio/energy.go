package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Midpoint is the zero level of unsigned 8-bit time-domain samples.
const Midpoint = 128

// ErrStreamClosed is returned by a SampleSource whose stream has been released.
var ErrStreamClosed = errors.New("audio stream closed")

// SampleSource provides the most recent time-domain samples of a live stream
type SampleSource interface {
	// ReadWindow fills dst with the latest len(dst) samples.
	ReadWindow(dst []byte) error
}

// Reading is one loudness measurement taken by the EnergyMonitor
type Reading struct {
	Level  float64   // RMS deviation from Midpoint
	Silent bool      // Level < threshold
	At     time.Time // when the window was sampled
}

// MonitorConfig holds configuration for the EnergyMonitor
type MonitorConfig struct {
	Interval   time.Duration // Sampling cadence
	WindowSize int           // Samples per reading, power of two
	Threshold  float64       // Readings below this level are silent
}

// DefaultMonitorConfig returns a default monitor configuration
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Interval:   200 * time.Millisecond,
		WindowSize: 2048,
		Threshold:  10.0,
	}
}

// Validate checks the configuration
func (c *MonitorConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %v", c.Interval)
	}
	if c.WindowSize <= 0 || c.WindowSize&(c.WindowSize-1) != 0 {
		return fmt.Errorf("monitor window size must be a power of two, got %d", c.WindowSize)
	}
	return nil
}

// EnergyMonitor samples a stream at a fixed cadence and classifies each
// sample as silent or not. It never decides segmentation itself.
type EnergyMonitor struct {
	config *MonitorConfig
	source SampleSource
	window []byte
	now    func() time.Time
}

// NewEnergyMonitor creates a new energy monitor over source
func NewEnergyMonitor(source SampleSource, config *MonitorConfig) (*EnergyMonitor, error) {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &EnergyMonitor{
		config: config,
		source: source,
		window: make([]byte, config.WindowSize),
		now:    time.Now,
	}, nil
}

// Sample takes a single reading
func (m *EnergyMonitor) Sample() (Reading, error) {
	if err := m.source.ReadWindow(m.window); err != nil {
		return Reading{}, err
	}

	level := Loudness(m.window)
	return Reading{
		Level:  level,
		Silent: level < m.config.Threshold,
		At:     m.now(),
	}, nil
}

// Run emits a Reading every interval until ctx is cancelled or the source
// fails. The returned channel is closed when ticking stops, which is how a
// released stream becomes visible to the caller.
func (m *EnergyMonitor) Run(ctx context.Context) <-chan Reading {
	out := make(chan Reading, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reading, err := m.Sample()
				if err != nil {
					return
				}
				select {
				case out <- reading:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Loudness returns the root mean square deviation of unsigned 8-bit samples
// from Midpoint. This is the single loudness convention used by the pipeline.
func Loudness(samples []byte) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		v := float64(int(sample) - Midpoint)
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}
