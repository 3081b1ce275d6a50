// Package suggestion turns a conversation window into topic suggestions
// using a remote text-generation endpoint.
package suggestion

import (
	"regexp"
	"strings"
)

var (
	numberedMarker = regexp.MustCompile(`^\d+[.)]\s*`)
	boldText       = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)

	// Trailing annotation on an item line
	inlineDeepDive = regexp.MustCompile(`(?i)\s*[(（]\s*(?:深掘り|deep[- ]?dive)\s*[:：]\s*(.*?)\s*[)）]\s*$`)

	// Annotation on a line of its own
	standaloneDeepDive = regexp.MustCompile(`(?i)^[(（]\s*(?:深掘り|deep[- ]?dive)\s*[:：]\s*(.*?)\s*[)）]$`)
)

// ParseSuggestions extracts list items from generated text. A deep-dive
// annotation is taken from the end of an item line or from a later line
// before the next blank line.
func ParseSuggestions(text string) []Suggestion {
	var suggestions []Suggestion
	current := -1

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			current = -1
			continue
		}

		if item, ok := stripListMarker(trimmed); ok {
			topic, deepDive := splitDeepDive(item)
			topic = strings.TrimSpace(stripBold(topic))

			if topic == "" {
				// A bulleted annotation line belongs to the previous item
				if deepDive != "" {
					attachDeepDive(suggestions, current, deepDive)
				}
				continue
			}
			if isHeading(topic) {
				current = -1
				continue
			}

			suggestions = append(suggestions, Suggestion{Topic: topic, DeepDive: deepDive})
			current = len(suggestions) - 1
			continue
		}

		if m := standaloneDeepDive.FindStringSubmatch(stripBold(trimmed)); m != nil {
			attachDeepDive(suggestions, current, strings.TrimSpace(m[1]))
		}
	}

	return suggestions
}

func attachDeepDive(suggestions []Suggestion, index int, deepDive string) {
	if index < 0 || deepDive == "" || suggestions[index].DeepDive != "" {
		return
	}
	suggestions[index].DeepDive = deepDive
}

// stripListMarker removes a leading bullet or number
func stripListMarker(line string) (string, bool) {
	switch {
	case line[0] == '-' || line[0] == '*':
		// "---" rules and "**bold**" lines are not items
		if len(line) < 2 || line[1] == '-' || line[1] == '*' {
			return "", false
		}
		return strings.TrimSpace(line[1:]), true
	case strings.HasPrefix(line, "•"):
		return strings.TrimSpace(strings.TrimPrefix(line, "•")), true
	case strings.HasPrefix(line, "・"):
		return strings.TrimSpace(strings.TrimPrefix(line, "・")), true
	}

	if loc := numberedMarker.FindStringIndex(line); loc != nil {
		return strings.TrimSpace(line[loc[1]:]), true
	}
	return "", false
}

func splitDeepDive(item string) (string, string) {
	loc := inlineDeepDive.FindStringSubmatchIndex(item)
	if loc == nil {
		return item, ""
	}
	return item[:loc[0]], strings.TrimSpace(item[loc[2]:loc[3]])
}

func stripBold(s string) string {
	return boldText.ReplaceAllString(s, "$1$2")
}

// isHeading reports section labels such as "関連話題:" that carry no topic
func isHeading(topic string) bool {
	return strings.HasSuffix(topic, ":") || strings.HasSuffix(topic, "：")
}
