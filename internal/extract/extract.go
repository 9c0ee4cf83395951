package extract

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultPatterns is the ordered fallback list used when none is configured.
// The first capture group of each pattern must hold the percentage digits.
var DefaultPatterns = []string{
	`【\s*(?:総合マッチ度|総合相性度|(?i:total match likelihood))\s*】\s*[:：]?\s*(\d{1,3})\s*[%％]`,
	`(?:総合マッチ度|総合相性度|(?i:total match likelihood|match likelihood))\s*[:：]?\s*(\d{1,3})\s*[%％]`,
	`(?:マッチ度|相性度|(?i:match))[^\d\n]{0,12}(\d{1,3})\s*[%％]`,
}

// MissingWarning is surfaced when no pattern matches the narrative
const MissingWarning = "match likelihood could not be read from the reading; the figure is shown as 0% and may be inaccurate"

// Result of scanning a narrative for the match likelihood
type Result struct {
	Percent int    `json:"percent"`
	Matched bool   `json:"matched"`
	Pattern string `json:"pattern,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Extractor applies an ordered list of patterns, first match wins
type Extractor struct {
	patterns []*regexp.Regexp
}

// NewExtractor compiles patterns; an empty list falls back to DefaultPatterns
func NewExtractor(patterns []string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	e := &Extractor{}
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid match pattern #%d: %w", i+1, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("match pattern #%d has no capture group", i+1)
		}
		e.patterns = append(e.patterns, re)
	}

	return e, nil
}

// Patterns returns the compiled pattern sources in evaluation order
func (e *Extractor) Patterns() []string {
	out := make([]string, len(e.patterns))
	for i, re := range e.patterns {
		out[i] = re.String()
	}
	return out
}

// Extract never fails; when nothing matches the result is 0 with a warning
func (e *Extractor) Extract(text string) Result {
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > 100 {
			n = 100
		}
		return Result{Percent: n, Matched: true, Pattern: re.String()}
	}

	return Result{Warning: MissingWarning}
}
