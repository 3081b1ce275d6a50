// Package transcript accumulates finalized transcription text between
// segment boundaries.
package transcript

import (
	"strings"
	"sync"
)

// Buffer holds finalized text awaiting the next segment boundary plus the
// latest interim hypothesis. Interim text is display-only and never drained.
type Buffer struct {
	mu      sync.Mutex
	final   strings.Builder
	interim string
	filter  *FillerFilter
}

// NewBuffer creates a buffer; filter may be nil
func NewBuffer(filter *FillerFilter) *Buffer {
	return &Buffer{filter: filter}
}

// Append adds finalized text, normalized when filler removal is enabled
func (b *Buffer) Append(text string) {
	text = strings.TrimSpace(b.filter.Apply(text))
	if text == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.final.WriteString(text)
	b.final.WriteByte(' ')
	b.interim = ""
}

// SetInterim replaces the interim hypothesis
func (b *Buffer) SetInterim(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interim = strings.TrimSpace(text)
}

// CurrentText returns the accumulated finalized text, trimmed
func (b *Buffer) CurrentText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.final.String())
}

// DrainAndClear returns CurrentText and empties the finalized text in one step
func (b *Buffer) DrainAndClear() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := strings.TrimSpace(b.final.String())
	b.final.Reset()
	return text
}

// LiveText returns the undrained finalized text followed by the interim hypothesis
func (b *Buffer) LiveText() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	final := strings.TrimSpace(b.final.String())
	switch {
	case final == "":
		return b.interim
	case b.interim == "":
		return final
	default:
		return final + " " + b.interim
	}
}

// Reset clears finalized and interim text
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.final.Reset()
	b.interim = ""
}
