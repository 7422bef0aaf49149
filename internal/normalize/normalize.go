// Package normalize turns raw scraped strings into the canonical event
// fields: ISO dates, HH:MM times, target-group and status enums. All
// functions are pure and never panic on malformed input; parse failures
// return the zero value so callers can drop or default the field.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
	"golang.org/x/text/unicode/norm"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// months maps lowercase month names to month numbers. Lookup also accepts
// 3-letter prefixes ("dec", "okt"), which is how Swedish listings usually
// abbreviate.
var months = map[string]time.Month{
	"januari": time.January, "februari": time.February, "mars": time.March,
	"april": time.April, "maj": time.May, "juni": time.June,
	"juli": time.July, "augusti": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "december": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "october": time.October,
}

var monthPrefixes = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "maj": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"okt": time.October, "nov": time.November, "dec": time.December,
	"may": time.May, "oct": time.October,
}

var weekdayPrefixes = map[string]struct{}{
	"mån": {}, "tis": {}, "ons": {}, "tor": {}, "fre": {}, "lör": {}, "sön": {},
	"mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {}, "sun": {},
}

var (
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	textDateRe = regexp.MustCompile(`(\d{1,2})\s+([\p{L}]+)\.?(?:\s+(\d{4}))?`)

	isoDateTimeRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T](\d{1,2}):(\d{2})`)
	labeledTimeRe = regexp.MustCompile(`(?i)tid:?\s*(\d{1,2})[:.](\d{2})(?:\s*[-–]\s*(\d{1,2})[:.](\d{2}))?`)
	timeRangeRe   = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*[-–]\s*(\d{1,2})[:.](\d{2})\b`)
	bareTimeRe    = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\b`)

	ageRangeRe  = regexp.MustCompile(`(\d{1,2})\s*[-–]\s*(\d{1,2})\s*år`)
	ageSingleRe = regexp.MustCompile(`(?:för|från)?\s*(\d{1,2})\s*år`)
	ageMonthsRe = regexp.MustCompile(`(\d{1,2})(?:\s*[-–]\s*(\d{1,2}))?\s*mån`)

	cancelledPrefixRe = regexp.MustCompile(`(?i)^inställ[td]!?:?\s*`)
)

// fold lowercases and NFC-normalizes for case-insensitive matching.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// ParseDate parses an ISO, Swedish, or English date string relative to the
// current day. Returns "" when nothing parseable is found.
func ParseDate(s string) string {
	return ParseDateAt(s, time.Now())
}

// ParseDateAt is ParseDate with an explicit "today" for year inference: a
// yearless (month, day) strictly before today rolls forward one year.
func ParseDateAt(s string, now time.Time) string {
	day, month, year, ok := dateComponents(s)
	if !ok {
		return parseDateFallback(s, now)
	}
	if year == 0 {
		year = now.Year()
		resolved := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if resolved.Before(today) {
			year++
		}
	}
	return formatISO(year, month, day)
}

// ParseDateRange splits "start – end" strings and parses both sides. The end
// is "" when the input holds a single date. A yearless start is anchored to
// the resolved end date rather than rolled forward on its own, so a range
// still running today ("20 november – 25 november" seen on the 22nd) keeps
// this year's start and "28 december – 3 januari" wraps the start into the
// year before the end.
func ParseDateRange(s string, now time.Time) (start, end string) {
	parts := splitRange(s)
	if len(parts) < 2 {
		return ParseDateAt(s, now), ""
	}

	startStr, endStr := parts[0], parts[1]
	end = ParseDateAt(endStr, now)
	if end == "" {
		return ParseDateAt(startStr, now), ""
	}

	sd, sm, sy, ok := dateComponents(startStr)
	if !ok {
		return ParseDateAt(startStr, now), end
	}
	if sy == 0 {
		ey, _ := strconv.Atoi(end[:4])
		em, _ := strconv.Atoi(end[5:7])
		sy = ey
		if int(sm) > em {
			sy = ey - 1
		}
	}
	return formatISO(sy, sm, sd), end
}

// splitRange splits on the dash variants used for date ranges. A plain "-"
// only counts when surrounded by whitespace, so ISO dates survive intact.
func splitRange(s string) []string {
	for _, sep := range []string{"–", "—", " - ", " -", "- "} {
		if idx := strings.Index(s, sep); idx >= 0 {
			return []string{strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+len(sep):])}
		}
	}
	return []string{strings.TrimSpace(s)}
}

// dateComponents extracts (day, month, year) from an ISO or textual date.
// year is 0 when the input carries none.
func dateComponents(s string) (day int, month time.Month, year int, ok bool) {
	s = strings.TrimSpace(fold(s))
	if s == "" {
		return 0, 0, 0, false
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if validDate(y, time.Month(mo), d) {
			return d, time.Month(mo), y, true
		}
		return 0, 0, 0, false
	}

	s = stripWeekday(s)

	m := textDateRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0, false
	}
	d, _ := strconv.Atoi(m[1])
	mo, monthOK := lookupMonth(m[2])
	if !monthOK {
		return 0, 0, 0, false
	}
	y := 0
	if m[3] != "" {
		y, _ = strconv.Atoi(m[3])
	}
	check := y
	if check == 0 {
		check = 2000 // leap year, permissive day validation
	}
	if !validDate(check, mo, d) {
		return 0, 0, 0, false
	}
	return d, mo, y, true
}

func lookupMonth(name string) (time.Month, bool) {
	if m, ok := months[name]; ok {
		return m, true
	}
	if len(name) >= 3 {
		if m, ok := monthPrefixes[name[:3]]; ok {
			return m, true
		}
	}
	return 0, false
}

// stripWeekday drops a leading weekday token ("tis 24 dec" → "24 dec").
func stripWeekday(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s
	}
	first := strings.TrimRight(fields[0], ",.")
	runes := []rune(first)
	if len(runes) < 3 {
		return s
	}
	if _, ok := weekdayPrefixes[string(runes[:3])]; ok {
		return strings.Join(fields[1:], " ")
	}
	return s
}

// parseDateFallback hands unrecognized strings to the multilingual parser.
func parseDateFallback(s string, now time.Time) string {
	cfg := &dateparser.Configuration{
		CurrentTime:         now,
		Languages:           []string{"sv", "en"},
		PreferredDateSource: dateparser.Future,
	}
	dt, err := dateparser.Parse(cfg, s)
	if err != nil || dt.Time.IsZero() {
		return ""
	}
	return dt.Time.Format("2006-01-02")
}

func validDate(y int, m time.Month, d int) bool {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d && t.Month() == m
}

func formatISO(y int, m time.Month, d int) string {
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// ExtractTime pulls an HH:MM or HH:MM-HH:MM time out of a free-form string.
// Recognizes ISO datetimes, "Tid: 10:00", bare times, and the Swedish
// period form "10.00". Returns N/A when nothing matches. Idempotent: its
// own output re-extracts to itself.
func ExtractTime(s string) string {
	if m := isoDateTimeRe.FindStringSubmatch(s); m != nil {
		return clockString(m[1], m[2])
	}
	if m := labeledTimeRe.FindStringSubmatch(s); m != nil {
		if m[3] != "" {
			return clockString(m[1], m[2]) + "-" + clockString(m[3], m[4])
		}
		return clockString(m[1], m[2])
	}
	if m := timeRangeRe.FindStringSubmatch(s); m != nil {
		return clockString(m[1], m[2]) + "-" + clockString(m[3], m[4])
	}
	for _, m := range bareTimeRe.FindAllStringSubmatch(s, -1) {
		if validClock(m[1], m[2]) {
			return clockString(m[1], m[2])
		}
	}
	return domain.NA
}

func validClock(h, min string) bool {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(min)
	return hh < 24 && mm < 60
}

func clockString(h, min string) string {
	hh, _ := strconv.Atoi(h)
	return fmt.Sprintf("%02d:%s", hh, min)
}

// Context carries the per-listing hints the classifier needs beyond the raw
// target-group text.
type Context struct {
	SourceHint string // "preschool" for förskole-listings
	EventName  string
}

// ClassifyTargetGroup maps observed audience text to the target-group enum.
// Resolution order: source hint, age thresholds found in the text or the
// event name, keyword sets, then the all_ages default.
func ClassifyTargetGroup(raw string, ctx Context) domain.TargetGroup {
	if ctx.SourceHint == "preschool" {
		return domain.TargetPreschool
	}

	for _, text := range []string{fold(raw), fold(ctx.EventName)} {
		if text == "" {
			continue
		}
		if g, ok := classifyByAge(text); ok {
			return g
		}
	}

	text := fold(raw)
	switch {
	case containsAny(text, "barn", "bebis", "småbarn", "förskola", "for children", "för barn"):
		return domain.TargetChildren
	case containsAny(text, "ungdom", "teen", "tonåring", "unga"):
		return domain.TargetTeens
	case containsAny(text, "familj", "family"):
		return domain.TargetFamilies
	case containsAny(text, "vuxen", "vuxna", "adult", "senior"):
		return domain.TargetAdults
	case containsAny(text, "alla", "all ages", "general"):
		return domain.TargetAllAges
	}
	return domain.TargetAllAges
}

// classifyByAge resolves age expressions like "3-6 år", "för 7 år", and
// "4-12 månader". Spans crossing bucket boundaries resolve to the lowest
// bucket.
func classifyByAge(text string) (domain.TargetGroup, bool) {
	if ageMonthsRe.MatchString(text) {
		return domain.TargetBabies, true
	}

	var minAge, maxAge int
	if m := ageRangeRe.FindStringSubmatch(text); m != nil {
		minAge, _ = strconv.Atoi(m[1])
		maxAge, _ = strconv.Atoi(m[2])
	} else if m := ageSingleRe.FindStringSubmatch(text); m != nil {
		minAge, _ = strconv.Atoi(m[1])
		maxAge = minAge
	} else {
		return "", false
	}

	switch {
	case maxAge <= 12:
		return domain.TargetChildren, true
	case minAge >= 18:
		return domain.TargetAdults, true
	case minAge >= 13:
		return domain.TargetTeens, true
	default:
		return domain.TargetChildren, true
	}
}

// DetectStatus derives the scheduling state from the concatenated name,
// description, and explicit status text.
func DetectStatus(name, description, statusText string) domain.Status {
	text := fold(name + " " + description + " " + statusText)
	switch {
	case containsAny(text, "inställt", "inställd", "cancelled", "canceled", "avlyst", "ställs in", "avbokat"):
		return domain.StatusCancelled
	case containsAny(text, "fullbokat", "fullbokad", "fully booked", "sold out", "slutsålt"):
		return domain.StatusFullbokat
	default:
		return domain.StatusScheduled
	}
}

// ExtractBooking maps page text to the booking-info enum strings.
func ExtractBooking(text string) string {
	t := fold(text)
	switch {
	case containsAny(t, "fullbokat", "fullbokad"):
		return domain.BookingFullbokat
	case containsAny(t, "boka plats", "du behöver boka", "bokning krävs", "bokningen öppnar"):
		return domain.BookingRequired
	case containsAny(t, "drop-in", "dropin"):
		return domain.BookingDropIn
	case containsAny(t, "fri entré", "fri entre", "free entry"):
		return domain.BookingFreeEntry
	default:
		return domain.NA
	}
}

// CleanEventName strips a leading "INSTÄLLT:" marker and trims whitespace.
func CleanEventName(name string) string {
	name = strings.TrimSpace(name)
	name = cancelledPrefixRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}
