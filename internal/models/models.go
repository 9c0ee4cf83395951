package models

import "time"

// Message represents one utterance extracted from a chat export
type Message struct {
	Timestamp string `json:"timestamp"` // "<date context> <time>", opaque outside scoring
	Sender    string `json:"sender"`    // display name exactly as exported
	Text      string `json:"text"`      // continuation lines joined with "\n"
}

// DailySample is the summed engagement score for one month/day label
type DailySample struct {
	Day   string `json:"day"` // "01/15"
	Score int    `json:"score"`
}

// Trend is a coarse classification of the daily engagement series
type Trend string

const (
	TrendInsufficient Trend = "insufficient data"
	TrendStable       Trend = "stable"
	TrendRising       Trend = "rising"
	TrendFalling      Trend = "falling"
)

// Label is the display text for a trend
func (t Trend) Label() string {
	switch t {
	case TrendRising:
		return "上昇中"
	case TrendFalling:
		return "下降気味"
	case TrendStable:
		return "安定"
	default:
		return "データ不足"
	}
}

// DiagnosisRecord is one past reading for a (purchaser, counterpart) pair
type DiagnosisRecord struct {
	CreatedAt   time.Time `json:"created_at"`
	Counterpart string    `json:"counterpart"`
	MatchRate   int       `json:"match_rate"` // 0-100
	Summary     string    `json:"summary"`
}

// Reading is the full result of one analysis run
type Reading struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Counterpart string           `json:"counterpart"`
	Persona     string           `json:"persona"`
	Tone        string           `json:"tone"`
	Model       string           `json:"model"`
	Narrative   string           `json:"narrative"`
	MatchRate   int              `json:"match_rate"`
	Trend       Trend            `json:"trend"`
	Series      []DailySample    `json:"series"`
	Messages    int              `json:"message_count"`
	Warnings    []string         `json:"warnings,omitempty"`
	Previous    *DiagnosisRecord `json:"previous,omitempty"`
	ReportID    string           `json:"report_id,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}
