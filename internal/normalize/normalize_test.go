package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// now used by most date tests: a Saturday in late November.
var testNow = time.Date(2025, time.November, 22, 12, 0, 0, 0, time.UTC)

func TestParseDateAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"iso", "2025-12-24", "2025-12-24"},
		{"iso with time suffix", "2025-12-24T10:00:00", "2025-12-24"},
		{"swedish full month", "24 december", "2025-12-24"},
		{"swedish abbreviated with weekday", "tis 24 dec", "2025-12-24"},
		{"swedish with year", "24 dec 2025", "2025-12-24"},
		{"swedish full with year", "24 december 2025", "2025-12-24"},
		{"english month", "24 May", "2026-05-24"},
		{"year rolls forward when past", "3 januari", "2026-01-03"},
		{"today does not roll", "22 november", "2025-11-22"},
		{"weekday full form", "fredag 28 november", "2025-11-28"},
		{"explicit past year kept", "24 december 2024", "2024-12-24"},
		{"invalid day", "32 december", ""},
		{"garbage", "ingen aning", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseDateAt(tt.in, testNow))
		})
	}
}

func TestParseDateAtRoundTrip(t *testing.T) {
	t.Parallel()

	for _, iso := range []string{"2025-01-01", "2025-06-15", "2026-12-31", "2024-02-29"} {
		assert.Equal(t, iso, ParseDateAt(iso, testNow))
	}
}

func TestParseDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		now       time.Time
		wantStart string
		wantEnd   string
	}{
		{
			name:      "dec to jan rollover without years",
			in:        "28 december – 3 januari",
			now:       time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC),
			wantStart: "2025-12-28",
			wantEnd:   "2026-01-03",
		},
		{
			name:      "cross-year range seen from november",
			in:        "22 december – 2 januari",
			now:       testNow,
			wantStart: "2025-12-22",
			wantEnd:   "2026-01-02",
		},
		{
			name:      "explicit end year pulls start back",
			in:        "28 december – 3 januari 2026",
			now:       testNow,
			wantStart: "2025-12-28",
			wantEnd:   "2026-01-03",
		},
		{
			name:      "range already running keeps this year's start",
			in:        "20 november – 25 november",
			now:       time.Date(2025, time.November, 22, 0, 0, 0, 0, time.UTC),
			wantStart: "2025-11-20",
			wantEnd:   "2025-11-25",
		},
		{
			name:      "same month range",
			in:        "1 december - 5 december",
			now:       testNow,
			wantStart: "2025-12-01",
			wantEnd:   "2025-12-05",
		},
		{
			name:      "single date",
			in:        "24 december",
			now:       testNow,
			wantStart: "2025-12-24",
			wantEnd:   "",
		},
		{
			name:      "iso date survives its dashes",
			in:        "2025-12-24",
			now:       testNow,
			wantStart: "2025-12-24",
			wantEnd:   "",
		},
		{
			name:      "unparseable end",
			in:        "24 december – okänt",
			now:       testNow,
			wantStart: "2025-12-24",
			wantEnd:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			start, end := ParseDateRange(tt.in, tt.now)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestExtractTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"2025-12-24 10:00", "10:00"},
		{"2025-12-24T10:00:00", "10:00"},
		{"Tid: 10:00", "10:00"},
		{"Tid: 10:00-12:00", "10:00-12:00"},
		{"kl. 18:00", "18:00"},
		{"kl 9.30", "09:30"},
		{"10:00-12:00", "10:00-12:00"},
		{"börjar 19:30 ikväll", "19:30"},
		{"99:99 sedan 10:15", "10:15"},
		{"ingen tid alls", "N/A"},
		{"", "N/A"},
	}

	for _, tt := range tests {
		got := ExtractTime(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, got, ExtractTime(got), "idempotence for %q", tt.in)
	}
}

func TestClassifyTargetGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		ctx  Context
		want domain.TargetGroup
	}{
		{"preschool hint wins", "vuxna", Context{SourceHint: "preschool"}, domain.TargetPreschool},
		{"months means babies", "4-12 månader", Context{}, domain.TargetBabies},
		{"range under 12", "3-6 år", Context{}, domain.TargetChildren},
		{"single age child", "för 7 år", Context{}, domain.TargetChildren},
		{"teen range", "13-19 år", Context{}, domain.TargetTeens},
		{"adult minimum", "från 18 år", Context{}, domain.TargetAdults},
		{"span crossing buckets", "10-15 år", Context{}, domain.TargetChildren},
		{"age in event name", "", Context{EventName: "Skaparverkstad 9-12 år"}, domain.TargetChildren},
		{"children keyword", "för barn", Context{}, domain.TargetChildren},
		{"teens keyword", "ungdomar", Context{}, domain.TargetTeens},
		{"families keyword", "hela familjen", Context{}, domain.TargetFamilies},
		{"adults keyword", "vuxna", Context{}, domain.TargetAdults},
		{"all ages keyword", "alla åldrar", Context{}, domain.TargetAllAges},
		{"default", "", Context{}, domain.TargetAllAges},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyTargetGroup(tt.raw, tt.ctx))
		})
	}
}

func TestDetectStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		eventName  string
		desc       string
		statusText string
		want       domain.Status
	}{
		{"cancelled in title", "INSTÄLLT: Babyrytmik", "", "", domain.StatusCancelled},
		{"cancelled in description", "Sagostund", "Tyvärr ställs in p.g.a. sjukdom", "", domain.StatusCancelled},
		{"english cancelled", "Storytime", "This event has been cancelled", "", domain.StatusCancelled},
		{"fullbokat", "Sagostund", "", "Fullbokat", domain.StatusFullbokat},
		{"sold out", "Concert", "Sold out!", "", domain.StatusFullbokat},
		{"cancelled beats fullbokat", "INSTÄLLD konsert", "fullbokad", "", domain.StatusCancelled},
		{"scheduled", "Sagostund", "Välkomna!", "", domain.StatusScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectStatus(tt.eventName, tt.desc, tt.statusText))
		})
	}
}

func TestExtractBooking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Fullbokat!", domain.BookingFullbokat},
		{"Du behöver boka plats i förväg", domain.BookingRequired},
		{"Bokning krävs", domain.BookingRequired},
		{"Bokningen öppnar 1 december", domain.BookingRequired},
		{"Drop-in, ingen föranmälan", domain.BookingDropIn},
		{"dropin hela dagen", domain.BookingDropIn},
		{"Fri entré", domain.BookingFreeEntry},
		{"Free entry for everyone", domain.BookingFreeEntry},
		{"Välkomna!", domain.NA},
		{"", domain.NA},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractBooking(tt.in), "input %q", tt.in)
	}
}

func TestCleanEventName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"INSTÄLLT: Babyrytmik", "Babyrytmik"},
		{"inställt: Sagostund", "Sagostund"},
		{"INSTÄLLD: Julkonsert", "Julkonsert"},
		{"  Sagostund  ", "Sagostund"},
		{"Sagostund", "Sagostund"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanEventName(tt.in), "input %q", tt.in)
	}
}
