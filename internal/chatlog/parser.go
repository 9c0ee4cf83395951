package chatlog

import (
	"regexp"
	"strings"

	"github.com/stellar-oracle/love-oracle/internal/models"
)

// UnknownDate is the date context used until the first date header is seen
const UnknownDate = "date-unknown"

var (
	dateHeaderPattern = regexp.MustCompile(`^(\d{4}/\d{1,2}/\d{1,2}\(.+?\))`)
	messagePattern    = regexp.MustCompile(`^(\d{1,2}:\d{2})\t([^\t]*)\t(.*)$`)
)

// attachmentPlaceholders are bodies the export writes in place of non-text content
var attachmentPlaceholders = newSet(
	"[写真]", "[動画]", "[スタンプ]", "[ファイル]", "[ボイスメッセージ]",
	"[Photo]", "[Video]", "[Sticker]", "[File]",
)

func newSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// Result holds the parsed messages and a space-joined flattening of all bodies
type Result struct {
	Messages []models.Message
	FullText string
}

// IsPlaceholder reports whether body is an attachment placeholder
func IsPlaceholder(body string) bool {
	_, ok := attachmentPlaceholders[body]
	return ok
}

// Parse converts an exported transcript into messages. It never fails: lines it
// cannot classify are merged into the previous message or dropped.
func Parse(text string) *Result {
	result := &Result{Messages: []models.Message{}}
	if text == "" {
		return result
	}

	var full strings.Builder
	currentDate := UnknownDate

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			continue
		}

		if m := dateHeaderPattern.FindStringSubmatch(trimmed); m != nil {
			currentDate = m[1]
			continue
		}

		if m := messagePattern.FindStringSubmatch(line); m != nil {
			body := m[3]
			if IsPlaceholder(strings.TrimSpace(body)) {
				continue
			}
			result.Messages = append(result.Messages, models.Message{
				Timestamp: currentDate + " " + m[1],
				Sender:    m[2],
				Text:      body,
			})
			if full.Len() > 0 {
				full.WriteString(" ")
			}
			full.WriteString(body)
			continue
		}

		if len(result.Messages) == 0 {
			continue
		}

		last := &result.Messages[len(result.Messages)-1]
		last.Text += "\n" + line
		full.WriteString(" ")
		full.WriteString(line)
	}

	result.FullText = full.String()
	return result
}

// WordFrequency counts whitespace-separated words
func WordFrequency(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.Fields(text) {
		counts[w]++
	}
	return counts
}

// SenderCounts returns the number of messages per sender
func SenderCounts(messages []models.Message) map[string]int {
	counts := make(map[string]int)
	for _, m := range messages {
		counts[m.Sender]++
	}
	return counts
}
