package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/models"
)

const (
	DefaultExcerptBudget = 6000
	DefaultEpochLines    = 15
	epochLineLimit       = 120
	topWordCount         = 20
)

// MatchLabel is the line the generator is told to emit; the extractor's
// default patterns read it back.
const MatchLabel = "【総合マッチ度】"

// Input is everything the narrative prompt is built from
type Input struct {
	Persona      config.Persona
	Tone         config.Tone
	Counterpart  string
	Consultation string
	Trend        models.Trend
	Series       []models.DailySample
	Messages     []models.Message
	WordCounts   map[string]int
	SenderCounts map[string]int
	Previous     *models.DiagnosisRecord
}

// Builder assembles prompts with fixed size budgets
type Builder struct {
	ExcerptBudget int
	EpochLines    int
}

func NewBuilder() *Builder {
	return &Builder{ExcerptBudget: DefaultExcerptBudget, EpochLines: DefaultEpochLines}
}

// Build returns the system and user prompts
func (b *Builder) Build(in Input) (string, string) {
	return b.system(in), b.user(in)
}

func (b *Builder) system(in Input) string {
	var sb strings.Builder
	sb.WriteString(in.Persona.Voice)
	sb.WriteString("\n相談者から受け取ったトーク履歴をもとに、二人の相性と関係の行方を鑑定してください。\n")
	if in.Tone.Instruction != "" {
		sb.WriteString("伝え方: ")
		sb.WriteString(in.Tone.Instruction)
		sb.WriteString("\n")
	}
	sb.WriteString("鑑定の最後に必ず次の形式で一行だけ数値を書いてください。\n")
	sb.WriteString(MatchLabel + ": NN%\n")
	sb.WriteString("その直後に「要約:」で始まる一行の短い要約を書いてください。")
	return sb.String()
}

func (b *Builder) user(in Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## お相手\n%s\n\n", in.Counterpart)

	if strings.TrimSpace(in.Consultation) != "" {
		fmt.Fprintf(&sb, "## ご相談内容\n%s\n\n", strings.TrimSpace(in.Consultation))
	}

	sb.WriteString("## 会話の温度\n")
	fmt.Fprintf(&sb, "傾向: %s (%s)\n", in.Trend.Label(), in.Trend)
	if n := len(in.Series); n > 0 {
		fmt.Fprintf(&sb, "期間: %s 〜 %s (%d日分)\n", in.Series[0].Day, in.Series[n-1].Day, n)
	}
	sb.WriteString("\n")

	if len(in.SenderCounts) > 0 {
		sb.WriteString("## 発言数\n")
		for _, sender := range sortedSenders(in.SenderCounts) {
			fmt.Fprintf(&sb, "%s: %d件\n", sender, in.SenderCounts[sender])
		}
		sb.WriteString("\n")
	}

	if words := TopWords(in.WordCounts, topWordCount); len(words) > 0 {
		fmt.Fprintf(&sb, "## よく出る言葉\n%s\n\n", strings.Join(words, "、"))
	}

	if in.Previous != nil {
		sb.WriteString("## 前回の鑑定\n")
		fmt.Fprintf(&sb, "日時: %s\n", in.Previous.CreatedAt.Format("2006/01/02"))
		fmt.Fprintf(&sb, "総合マッチ度: %d%%\n", in.Previous.MatchRate)
		if in.Previous.Summary != "" {
			fmt.Fprintf(&sb, "要約: %s\n", in.Previous.Summary)
		}
		sb.WriteString("前回からの変化にも触れてください。\n\n")
	}

	sb.WriteString("## 序盤・中盤・終盤の抜粋\n")
	for _, epoch := range b.EpochDigest(in.Messages) {
		fmt.Fprintf(&sb, "### %s\n", epoch.Name)
		for _, line := range epoch.Lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## 直近の会話\n")
	sb.WriteString(b.RecentExcerpt(in.Messages))

	return sb.String()
}

// sortedSenders orders senders by message count, then name
func sortedSenders(counts map[string]int) []string {
	senders := make([]string, 0, len(counts))
	for sender := range counts {
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool {
		if counts[senders[i]] != counts[senders[j]] {
			return counts[senders[i]] > counts[senders[j]]
		}
		return senders[i] < senders[j]
	})
	return senders
}

// FormatMessage renders one message on a single line
func FormatMessage(m models.Message) string {
	text := strings.ReplaceAll(m.Text, "\n", " / ")
	return fmt.Sprintf("%s %s: %s", m.Timestamp, m.Sender, text)
}

// RecentExcerpt keeps the newest messages that fit the character budget,
// returned in original order. A newest message that alone exceeds the
// budget is clipped rather than dropped.
func (b *Builder) RecentExcerpt(messages []models.Message) string {
	budget := b.ExcerptBudget
	if budget <= 0 {
		budget = DefaultExcerptBudget
	}

	var lines []string
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		line := FormatMessage(messages[i])
		cost := utf8.RuneCountInString(line) + 1
		if used+cost > budget {
			if len(lines) == 0 && budget > 2 {
				// clipped line is budget-2 runes plus the ellipsis and newline
				lines = append(lines, truncate(line, budget-2))
			}
			break
		}
		used += cost
		lines = append(lines, line)
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Epoch is one third of the conversation, sampled
type Epoch struct {
	Name  string
	Lines []string
}

// EpochDigest splits messages into early, middle and late thirds and samples
// up to EpochLines evenly spaced lines from each
func (b *Builder) EpochDigest(messages []models.Message) []Epoch {
	names := []string{"序盤 (early)", "中盤 (middle)", "終盤 (late)"}
	perEpoch := b.EpochLines
	if perEpoch <= 0 {
		perEpoch = DefaultEpochLines
	}

	n := len(messages)
	epochs := make([]Epoch, 0, len(names))
	for i, name := range names {
		start, end := i*n/3, (i+1)*n/3
		epochs = append(epochs, Epoch{Name: name, Lines: sample(messages[start:end], perEpoch)})
	}
	return epochs
}

func sample(messages []models.Message, limit int) []string {
	if len(messages) == 0 {
		return nil
	}
	n := min(len(messages), limit)
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, truncate(FormatMessage(messages[i*len(messages)/n]), epochLineLimit))
	}
	return lines
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}

// TopWords returns the n most frequent words, ties broken alphabetically
func TopWords(counts map[string]int, n int) []string {
	type wordCount struct {
		word  string
		count int
	}

	var words []wordCount
	for w, c := range counts {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		words = append(words, wordCount{w, c})
	}

	sort.Slice(words, func(i, j int) bool {
		if words[i].count != words[j].count {
			return words[i].count > words[j].count
		}
		return words[i].word < words[j].word
	})

	var top []string
	for i, wc := range words {
		if i >= n {
			break
		}
		top = append(top, wc.word)
	}
	return top
}
