// Package keyword maps transcribed utterances to attendance statuses.
//
// Matching is deliberately naive: statuses are scanned in table order, each
// status's keywords in list order, and the first status with any keyword
// contained in the text wins. There is no scoring, so an utterance holding
// keywords of two statuses resolves to whichever status comes first.
package keyword

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Status is an attendance event label. The zero value None means no match.
type Status int

const (
	// None means no keyword matched.
	None Status = iota
	ClockIn
	ClockOut
	BreakStart
	BreakEnd
)

var statusLabels = [...]string{
	None:       "none",
	ClockIn:    "clock-in",
	ClockOut:   "clock-out",
	BreakStart: "break-start",
	BreakEnd:   "break-end",
}

// String returns the wire label, e.g. "clock-in".
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusLabels) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusLabels[s]
}

// ParseStatus converts a wire label back to a Status. "none" is rejected.
func ParseStatus(label string) (Status, error) {
	for i, l := range statusLabels {
		if Status(i) != None && l == label {
			return Status(i), nil
		}
	}
	return None, fmt.Errorf("keyword: unknown status %q", label)
}

// Rule binds a status to its keyword variants.
type Rule struct {
	Status   Status
	Keywords []string
}

// DefaultRules is the built-in table. Order matters: see package doc.
var DefaultRules = []Rule{
	{Status: ClockIn, Keywords: []string{"出勤", "しゅっきん", "シュッキン", "出社", "clock in", "clock-in"}},
	{Status: ClockOut, Keywords: []string{"退勤", "たいきん", "タイキン", "退社", "clock out", "clock-out"}},
	{Status: BreakStart, Keywords: []string{"休憩開始", "休憩入り", "休憩に入", "きゅうけいかいし", "break start", "start break"}},
	{Status: BreakEnd, Keywords: []string{"休憩終了", "休憩終わり", "休憩明け", "きゅうけいしゅうりょう", "break end", "end break"}},
}

// Classifier matches text against an ordered keyword table.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a Classifier over rules. A nil or empty slice selects
// DefaultRules. Keywords are normalized once up front.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	norm := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = normalize(k); k != "" {
				kws = append(kws, k)
			}
		}
		norm = append(norm, Rule{Status: r.Status, Keywords: kws})
	}
	return &Classifier{rules: norm}
}

// Classify returns the first status whose keyword occurs in text, or None.
func (c *Classifier) Classify(text string) Status {
	text = normalize(text)
	if text == "" {
		return None
	}
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r.Status
			}
		}
	}
	return None
}

// normalize folds width (full-width Latin to ASCII, half-width kana to
// full-width) and case.
func normalize(s string) string {
	s = width.Fold.String(strings.TrimSpace(s))
	return cases.Fold().String(s)
}
