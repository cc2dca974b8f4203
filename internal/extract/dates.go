package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/subscription-sentry/internal/core"
)

// Date expression patterns. Compiled once at package load; matching
// order within a pass is order of appearance in the text.
var (
	reSlashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	reISODate   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	// "august 15, 2025", "aug 15", "august 15th 2025"
	reMonthName = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)

	reInN     = regexp.MustCompile(`\bin\s+(\d+)\s+(day|week|month)s?\b`)
	reFromNow = regexp.MustCompile(`\b(\d+)\s+(day|week|month)s?\s+from\s+(?:now|today)\b`)
	reWeekday = regexp.MustCompile(`\b(?:next|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// DateMatch is a date expression resolved against a reference timestamp.
// Literal is the text that matched, as it appears (lowercased) in the
// input; the phrase associator searches its context windows for it.
type DateMatch struct {
	ISODate string
	Literal string
	Method  core.DateMethod
	Pos     int
}

// DateExtractor finds absolute and relative date expressions and
// normalizes them to calendar dates relative to a reference timestamp
type DateExtractor struct{}

// NewDateExtractor creates a new date extractor
func NewDateExtractor() *DateExtractor {
	return &DateExtractor{}
}

// Extract returns the ISO dates found in text, resolved against ref.
// Order of appearance is preserved, absolute dates before relative ones.
func (e *DateExtractor) Extract(text string, ref time.Time) []string {
	matches := e.ExtractMatches(text, ref)
	dates := make([]string, len(matches))
	for i, m := range matches {
		dates[i] = m.ISODate
	}
	return dates
}

// ExtractMatches is Extract with the matched literals and positions kept
func (e *DateExtractor) ExtractMatches(text string, ref time.Time) []DateMatch {
	text = strings.ToLower(text)

	absolute := e.absolutePass(text, ref)
	relative := e.relativePass(text, ref)
	return append(absolute, relative...)
}

// absolutePass matches explicit calendar date expressions. Unparsable
// matches are silently dropped.
func (e *DateExtractor) absolutePass(text string, ref time.Time) []DateMatch {
	var out []DateMatch

	for _, loc := range reSlashDate.FindAllStringSubmatchIndex(text, -1) {
		month, _ := strconv.Atoi(text[loc[2]:loc[3]])
		day, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if year < 100 {
			year += 2000
		}
		if iso, ok := validDate(year, time.Month(month), day); ok {
			out = append(out, DateMatch{ISODate: iso, Literal: text[loc[0]:loc[1]], Method: core.MethodAbsolute, Pos: loc[0]})
		}
	}

	for _, loc := range reISODate.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		day, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso, ok := validDate(year, time.Month(month), day); ok {
			out = append(out, DateMatch{ISODate: iso, Literal: text[loc[0]:loc[1]], Method: core.MethodAbsolute, Pos: loc[0]})
		}
	}

	for _, loc := range reMonthName.FindAllStringSubmatchIndex(text, -1) {
		month, ok := monthsByName[text[loc[2]:loc[3]]]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year := ref.Year()
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
		}
		if iso, ok := validDate(year, month, day); ok {
			out = append(out, DateMatch{ISODate: iso, Literal: text[loc[0]:loc[1]], Method: core.MethodAbsolute, Pos: loc[0]})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// relativePass matches "in N days/weeks/months", "N days from now" and
// "next/this <weekday>" expressions
func (e *DateExtractor) relativePass(text string, ref time.Time) []DateMatch {
	var out []DateMatch

	resolveOffset := func(n int, unit string) time.Time {
		switch unit {
		case "day":
			return ref.AddDate(0, 0, n)
		case "week":
			return ref.AddDate(0, 0, n*7)
		default:
			return ref.AddDate(0, n, 0)
		}
	}

	for _, loc := range reInN.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		resolved := resolveOffset(n, text[loc[4]:loc[5]])
		out = append(out, DateMatch{ISODate: isoDate(resolved), Literal: text[loc[0]:loc[1]], Method: core.MethodRelative, Pos: loc[0]})
	}

	for _, loc := range reFromNow.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		resolved := resolveOffset(n, text[loc[4]:loc[5]])
		out = append(out, DateMatch{ISODate: isoDate(resolved), Literal: text[loc[0]:loc[1]], Method: core.MethodRelative, Pos: loc[0]})
	}

	for _, loc := range reWeekday.FindAllStringSubmatchIndex(text, -1) {
		target, ok := weekdaysByName[text[loc[2]:loc[3]]]
		if !ok {
			continue
		}
		// "next monday" on a Monday means 7 days out, not 0
		delta := (int(target) - int(ref.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		resolved := ref.AddDate(0, 0, delta)
		out = append(out, DateMatch{ISODate: isoDate(resolved), Literal: text[loc[0]:loc[1]], Method: core.MethodRelative, Pos: loc[0]})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// validDate rejects component combinations time.Date would silently
// normalize, like February 30th
func validDate(year int, month time.Month, day int) (string, bool) {
	if year < 1970 || year > 2200 || month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return "", false
	}
	return isoDate(t), true
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}
