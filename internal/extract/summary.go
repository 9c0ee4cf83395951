package extract

import (
	"strings"
	"unicode/utf8"
)

const summaryLimit = 120

var summaryPrefixes = []string{"要約:", "要約：", "Summary:", "summary:"}

// Summary returns the text after a "要約:" line, or the first non-empty line of
// the narrative, truncated for storage in the history record
func Summary(text string) string {
	var first string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, prefix := range summaryPrefixes {
			if strings.HasPrefix(line, prefix) {
				return clip(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
			}
		}
		if first == "" {
			first = line
		}
	}
	return clip(first)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= summaryLimit {
		return s
	}
	return string([]rune(s)[:summaryLimit]) + "…"
}
