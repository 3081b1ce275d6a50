package transcript

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultFillerWords are the hesitation markers removed when filler removal
// is enabled.
var DefaultFillerWords = []string{
	"あー", "うーん", "えー", "えっと", "あのー", "その", "まぁ", "ま", "えっとー", "んー", "あのぉ",
	"um", "uh", "er",
}

// unspacedFillers may open a Japanese token with no separator after them.
// Shorter markers such as "その" or "ま" also begin ordinary words.
var unspacedFillers = map[string]struct{}{
	"えっとー": {}, "えっと": {}, "あのー": {}, "あのぉ": {}, "うーん": {},
}

// Punctuation the recognizer attaches to a filler
const fillerPunctuation = "、。,.，．!?！？…"

// FillerFilter removes whole filler tokens from finalized text
type FillerFilter struct {
	mu      sync.RWMutex
	enabled bool
	words   map[string]struct{}

	// words longest first, for prefix matching
	prefixes []string
}

// NewFillerFilter creates a filter; an empty word list selects DefaultFillerWords
func NewFillerFilter(enabled bool, words []string) *FillerFilter {
	if len(words) == 0 {
		words = DefaultFillerWords
	}

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}

	prefixes := make([]string, 0, len(set))
	for w := range set {
		prefixes = append(prefixes, w)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return &FillerFilter{enabled: enabled, words: set, prefixes: prefixes}
}

// SetEnabled toggles filler removal
func (f *FillerFilter) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// Enabled reports whether filler removal is on
func (f *FillerFilter) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// Apply normalizes text when the filter is enabled and returns it unchanged otherwise
func (f *FillerFilter) Apply(text string) string {
	if f == nil || !f.Enabled() {
		return text
	}
	return f.Normalize(text)
}

// Normalize drops filler tokens and collapses the remaining whitespace to
// single spaces. A token is a filler when it equals a filler word once its
// trailing punctuation is trimmed. A filler opening a token is removed when
// punctuation follows it, or directly for the unambiguous Japanese markers.
// The remainder of a token is never altered, so Normalize(Normalize(s)) ==
// Normalize(s).
func (f *FillerFilter) Normalize(text string) string {
	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok = f.cleanToken(tok); tok != "" {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// cleanToken strips leading fillers until none is left
func (f *FillerFilter) cleanToken(tok string) string {
	for {
		core := strings.TrimRight(tok, fillerPunctuation)
		if core == "" {
			return tok
		}
		if _, filler := f.words[strings.ToLower(core)]; filler {
			return ""
		}

		rest, ok := f.stripPrefix(tok)
		if !ok {
			return tok
		}
		tok = rest
	}
}

func (f *FillerFilter) stripPrefix(tok string) (string, bool) {
	for _, w := range f.prefixes {
		if len(tok) <= len(w) || !strings.EqualFold(tok[:len(w)], w) {
			continue
		}
		rest := tok[len(w):]

		if r, _ := utf8.DecodeRuneInString(rest); strings.ContainsRune(fillerPunctuation, r) {
			rest = strings.TrimLeft(rest, fillerPunctuation)
			return rest, rest != ""
		}
		if _, ok := unspacedFillers[w]; ok {
			return rest, true
		}
	}
	return tok, false
}
