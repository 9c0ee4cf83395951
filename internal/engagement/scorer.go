package engagement

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stellar-oracle/love-oracle/internal/models"
)

const (
	trailingWindow = 3
	minSamples     = 4
	risingRatio    = 1.2
	fallingRatio   = 0.8
)

var weekdayAnnotation = regexp.MustCompile(`\(.*?\)`)

// Result is the daily engagement series and its trend label
type Result struct {
	Series []models.DailySample `json:"series"`
	Trend  models.Trend         `json:"trend"`
}

// Score rates one message by length and punctuation: runes + 2*"!" + 2*("?" or "？")
func Score(m models.Message) int {
	text := m.Text
	questions := strings.Count(text, "?") + strings.Count(text, "？")
	return utf8.RuneCountInString(text) + 2*strings.Count(text, "!") + 2*questions
}

// Analyze aggregates message scores per month/day and classifies the trend.
// Messages whose date cannot be parsed are left out.
func Analyze(messages []models.Message) Result {
	totals := make(map[string]int)
	for _, m := range messages {
		day, ok := dayLabel(m.Timestamp)
		if !ok {
			continue
		}
		totals[day] += Score(m)
	}

	series := make([]models.DailySample, 0, len(totals))
	for day, score := range totals {
		series = append(series, models.DailySample{Day: day, Score: score})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Day < series[j].Day
	})

	return Result{Series: series, Trend: Classify(series)}
}

// Classify compares the mean of the last three samples to the mean of the rest
func Classify(series []models.DailySample) models.Trend {
	if len(series) < minSamples {
		return models.TrendInsufficient
	}

	split := len(series) - trailingWindow
	lastAvg := mean(series[split:])
	prevAvg := 0.0
	if split > 0 {
		prevAvg = mean(series[:split])
	}

	switch {
	case prevAvg > 0 && lastAvg > risingRatio*prevAvg:
		return models.TrendRising
	case prevAvg > 0 && lastAvg < fallingRatio*prevAvg:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

func mean(samples []models.DailySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range samples {
		total += s.Score
	}
	return float64(total) / float64(len(samples))
}

// dayLabel extracts "MM/DD" from a "<date context> <time>" timestamp
func dayLabel(timestamp string) (string, bool) {
	datePart := timestamp
	if i := strings.LastIndex(timestamp, " "); i >= 0 {
		datePart = timestamp[:i]
	}
	datePart = strings.TrimSpace(weekdayAnnotation.ReplaceAllString(datePart, ""))

	t, err := time.Parse("2006/1/2", datePart)
	if err != nil {
		return "", false
	}
	return t.Format("01/02"), true
}
