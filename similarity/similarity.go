// Package similarity holds the pure scoring functions used by duplicate detection.
// Every function returns a value in [0, 1] and never panics on empty input.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// HashSimilarity compares two hex digests position by position and returns the
// fraction of matching characters over the longer length. Identical strings score 1.
func HashSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	minLen := len(b)
	if minLen > maxLen {
		maxLen, minLen = minLen, maxLen
	}
	if maxLen == 0 {
		return 1
	}
	matches := 0
	for i := 0; i < minLen; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(maxLen)
}

// MerchantSimilarity is the case-insensitive normalized Levenshtein similarity.
func MerchantSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

// Levenshtein returns the edit distance between a and b counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// AmountSimilarity is 1 - |a-b| / mean(|a+b|), floored at 0. Equal non-zero
// amounts score 1; two zero amounts score 0 since neither carries information.
func AmountSimilarity(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return 0
	}
	if a == 0 && b == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	avg := math.Abs(a+b) / 2
	if avg == 0 {
		return 0
	}
	s := 1 - math.Abs(a-b)/avg
	if s < 0 {
		return 0
	}
	return s
}

// DateSimilarity bands the distance between two dates: same day 1.0, within a
// day 0.8, a week 0.5, a month 0.2, otherwise 0. Unparseable dates score 0.
func DateSimilarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ta, ok := ParseDate(a)
	if !ok {
		return 0
	}
	tb, ok := ParseDate(b)
	if !ok {
		return 0
	}

	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	if ya == yb && ma == mb && da == db {
		return 1
	}

	days := math.Abs(tb.Sub(ta).Hours()) / 24
	switch {
	case days <= 1:
		return 0.8
	case days <= 7:
		return 0.5
	case days <= 30:
		return 0.2
	default:
		return 0
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

// ParseDate accepts the date formats seen on receipts and statements.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
