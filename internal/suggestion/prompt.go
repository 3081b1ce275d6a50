package suggestion

import "strings"

// Placeholder is replaced by the conversation window in a prompt template
const Placeholder = "${fullConversation}"

// DefaultTemplate asks for one related topic and three new ones, each with
// a deep-dive annotation.
const DefaultTemplate = `会話相手に話題を提供するAIとして、以下の情報を元に会話の活性化を目的とした話題を提供してください。

会話履歴:
${fullConversation}

あなたのタスク:
1. 会話内容の予測と話題提供:
   * 上記の会話履歴から、現在の会話内容に沿った話題を1つ提案してください。（「関連話題:」と明記）
   * 現在の会話内容とは全く関係のない、一般的な興味を引く話題を3つ提案してください。（「新しい話題:」と明記）

2. 話題の深掘り:
   * 各話題について、それが採用された場合に深掘りできるような質問や情報を1つずつ、小さなテキストで添えてください。

出力形式:
* 話題提案は箇条書き（- または・）で分かりやすく記述してください。
* 深掘りの部分は各話題の下に「(深掘り: ○○)」の形式で小さく記載してください。
* すべての提案は簡潔で、日常会話で使いやすいものにしてください。`

// BuildWindow joins the last n segment texts with newlines and appends the
// live partial text when it is not empty.
func BuildWindow(segments []string, partial string, n int) string {
	if n > 0 && len(segments) > n {
		segments = segments[len(segments)-n:]
	}

	var parts []string
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if partial = strings.TrimSpace(partial); partial != "" {
		parts = append(parts, partial)
	}

	return strings.Join(parts, "\n")
}

// BuildPrompt substitutes window into every placeholder of template. A
// template without the placeholder gets the window after a blank line.
func BuildPrompt(template, window string) string {
	if template == "" {
		template = DefaultTemplate
	}
	if !strings.Contains(template, Placeholder) {
		return strings.TrimRight(template, "\n") + "\n\n" + window
	}
	return strings.ReplaceAll(template, Placeholder, window)
}
