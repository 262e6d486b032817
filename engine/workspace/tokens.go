package workspace

import "strings"

// estimateTokens gives a cheap, provider-agnostic token estimate for plain
// text: roughly four characters per token, the same heuristic used
// elsewhere in the runtime for pre-flight budget checks.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// truncateHead drops whole lines from the start of text until its estimated
// token count is at or under maxTokens, preserving the end of the content
// (the part a caller reading a file tail typically cares about most) and
// reporting whether any truncation occurred.
func truncateHead(text string, maxTokens int) (out string, truncated bool) {
	if maxTokens <= 0 || estimateTokens(text) <= maxTokens {
		return text, false
	}
	lines := strings.Split(text, "\n")
	lo := 0
	for lo < len(lines)-1 && estimateTokens(strings.Join(lines[lo:], "\n")) > maxTokens {
		lo++
	}
	return strings.Join(lines[lo:], "\n"), true
}
