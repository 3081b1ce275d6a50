package transcript

import (
	"strings"
	"testing"
)

func TestFillerFilter_Normalize(t *testing.T) {
	filter := NewFillerFilter(true, nil)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"japanese fillers", "えー 明日の 会議は えっと 十時です", "明日の 会議は 十時です"},
		{"english fillers", "um I think uh we should", "I think we should"},
		{"case insensitive", "Um okay", "okay"},
		{"collapses whitespace", "  a   b\t c ", "a b c"},
		{"only fillers", "あー うーん", ""},
		{"filler inside word kept", "そのまま えーと", "そのまま えーと"},
		{"empty", "", ""},
		{"punctuated japanese", "あのー、明日は 雨です", "明日は 雨です"},
		{"punctuated english", "Um, I think, uh... yes", "I think, yes"},
		{"standalone punctuated filler", "えー。 そうですね", "そうですね"},
		{"unspaced japanese", "えっと今日はいい天気ですね", "今日はいい天気ですね"},
		{"longest unspaced marker", "えっとー今日は", "今日は"},
		{"chained fillers", "うーん、えっと、あのー明日", "明日"},
		{"comma after short filler", "ま、いいか", "いいか"},
		{"short filler opening a word kept", "まだ その、本は", "まだ 本は"},
		{"punctuation alone kept", "、", "、"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFillerFilter_Idempotent(t *testing.T) {
	filter := NewFillerFilter(true, nil)
	inputs := []string{
		"えー えー その その 話",
		"um um uh hello   world",
		"ま ま ま",
		"普通の文章です",
		"あのー、えっと今日は、um, 晴れ",
		"えっとえっとー、うーん",
	}

	for _, input := range inputs {
		once := filter.Normalize(input)
		twice := filter.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestFillerFilter_PreservesContent(t *testing.T) {
	filter := NewFillerFilter(true, nil)
	input := "えー 東京 um, Tokyo その、 2024年 えっと大阪 そのまま"

	got := filter.Normalize(input)
	for _, word := range []string{"東京", "Tokyo", "2024年", "大阪", "そのまま"} {
		found := false
		for _, tok := range strings.Fields(got) {
			if tok == word {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected %q preserved in %q", word, got)
		}
	}
}

func TestFillerFilter_Disabled(t *testing.T) {
	filter := NewFillerFilter(false, nil)
	input := "えー  そうですね"

	if got := filter.Apply(input); got != input {
		t.Errorf("Disabled filter should pass text through, got %q", got)
	}

	filter.SetEnabled(true)
	if got := filter.Apply(input); got != "そうですね" {
		t.Errorf("Enabled filter should normalize, got %q", got)
	}
}

func TestFillerFilter_CustomWords(t *testing.T) {
	filter := NewFillerFilter(true, []string{"like", " you-know "})

	if got := filter.Normalize("it was like you-know great えー"); got != "it was great えー" {
		t.Errorf("Unexpected result %q", got)
	}
}
