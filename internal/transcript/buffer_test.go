package transcript

import (
	"sync"
	"testing"
)

func TestBuffer_AppendCurrent(t *testing.T) {
	buf := NewBuffer(nil)

	buf.Append("Hello")
	buf.Append("  there ")

	if got := buf.CurrentText(); got != "Hello there" {
		t.Errorf("Expected %q, got %q", "Hello there", got)
	}
}

func TestBuffer_DrainThenCurrentIsEmpty(t *testing.T) {
	buf := NewBuffer(nil)
	buf.Append("How are you")

	if got := buf.DrainAndClear(); got != "How are you" {
		t.Errorf("Expected drained text, got %q", got)
	}
	if got := buf.CurrentText(); got != "" {
		t.Errorf("Expected empty after drain, got %q", got)
	}
	if got := buf.DrainAndClear(); got != "" {
		t.Errorf("Expected second drain to be empty, got %q", got)
	}
}

func TestBuffer_InterimNeverDrained(t *testing.T) {
	buf := NewBuffer(nil)
	buf.Append("final words")
	buf.SetInterim("still talk")

	if got := buf.LiveText(); got != "final words still talk" {
		t.Errorf("Unexpected live text %q", got)
	}
	if got := buf.DrainAndClear(); got != "final words" {
		t.Errorf("Interim text must not be drained, got %q", got)
	}
	if got := buf.LiveText(); got != "still talk" {
		t.Errorf("Expected interim to survive drain, got %q", got)
	}
}

func TestBuffer_AppendClearsInterim(t *testing.T) {
	buf := NewBuffer(nil)
	buf.SetInterim("hello th")
	buf.Append("hello there")

	if got := buf.LiveText(); got != "hello there" {
		t.Errorf("Expected interim cleared by final, got %q", got)
	}
}

func TestBuffer_AppendWithFillerRemoval(t *testing.T) {
	buf := NewBuffer(NewFillerFilter(true, nil))
	buf.Append("えっと 今日は えー 晴れ")

	if got := buf.CurrentText(); got != "今日は 晴れ" {
		t.Errorf("Expected fillers removed, got %q", got)
	}

	buf.Append("あー")
	if got := buf.CurrentText(); got != "今日は 晴れ" {
		t.Errorf("All-filler text should append nothing, got %q", got)
	}
}

func TestBuffer_Reset(t *testing.T) {
	buf := NewBuffer(nil)
	buf.Append("one")
	buf.SetInterim("two")
	buf.Reset()

	if buf.LiveText() != "" {
		t.Errorf("Expected empty buffer after reset, got %q", buf.LiveText())
	}
}

func TestBuffer_ConcurrentAppendDrain(t *testing.T) {
	buf := NewBuffer(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	drained := 0

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			buf.Append("x")
		}()
		go func() {
			defer wg.Done()
			text := buf.DrainAndClear()
			mu.Lock()
			for _, r := range text {
				if r == 'x' {
					drained++
				}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, r := range buf.DrainAndClear() {
		if r == 'x' {
			drained++
		}
	}

	if drained != 50 {
		t.Errorf("Expected every appended token drained exactly once, got %d", drained)
	}
}
