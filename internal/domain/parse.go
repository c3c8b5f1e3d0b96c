package domain

import (
	"encoding/xml"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxNominalLevelCm is the top of the gauge's nominal scale. Higher readings
// are flagged, not rejected.
const maxNominalLevelCm = 2000

var (
	// levelRe matches the German decimal-comma level: "<integer>,<2 digits>".
	levelRe = regexp.MustCompile(`^\d+,\d{2}$`)

	// dateRe matches "<day>. <month name> <4-digit year>", e.g. "27. Oktober 2025".
	dateRe = regexp.MustCompile(`^(\d{1,2})\. ([A-Za-zÄÖÜäöüß]+) (\d{4})$`)

	// clockRe matches "<1-2 digit hour>:<2-digit minute>", e.g. "9:05".
	clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

var germanMonths = map[string]time.Month{
	"Januar":    time.January,
	"Februar":   time.February,
	"März":      time.March,
	"April":     time.April,
	"Mai":       time.May,
	"Juni":      time.June,
	"Juli":      time.July,
	"August":    time.August,
	"September": time.September,
	"Oktober":   time.October,
	"November":  time.November,
	"Dezember":  time.December,
}

// gaugeLocation is the timezone Datum/Uhrzeit are interpreted in. The feed
// publishes wall-clock times local to the gauge.
var gaugeLocation = time.Local

// SetLocation sets the gauge timezone. Pass nil to reset to the process-local
// timezone.
func SetLocation(loc *time.Location) {
	if loc == nil {
		gaugeLocation = time.Local
		return
	}
	gaugeLocation = loc
}

// gaugeDocument mirrors the feed's XML shape. The root element name varies
// between mirrors and is ignored.
type gaugeDocument struct {
	Datum   string `xml:"Datum"`
	Uhrzeit string `xml:"Uhrzeit"`
	Pegel   string `xml:"Pegel"`
	Grafik  string `xml:"Grafik"`
}

// ParseGaugeXML turns one raw gauge document into a Reading. It is a pure
// function over its input except for the ApproxTime fallback, which consults
// the package clock.
func ParseGaugeXML(raw []byte) (Reading, error) {
	var doc gaugeDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Reading{}, &ParseError{Reason: "malformed XML", Err: err}
	}

	date := strings.TrimSpace(doc.Datum)
	clockStr := strings.TrimSpace(doc.Uhrzeit)
	level := strings.TrimSpace(doc.Pegel)

	switch {
	case date == "":
		return Reading{}, &ParseError{Reason: "missing required field Datum"}
	case clockStr == "":
		return Reading{}, &ParseError{Reason: "missing required field Uhrzeit"}
	case level == "":
		return Reading{}, &ParseError{Reason: "missing required field Pegel"}
	}

	levelCm, err := ConvertLevel(level)
	if err != nil {
		return Reading{}, err
	}

	day, month, year, err := parseGermanDate(date)
	if err != nil {
		return Reading{}, err
	}

	hour, minute, err := parseClock(clockStr)
	if err != nil {
		return Reading{}, err
	}

	ts, approx := reconstructTimestamp(year, month, day, hour, minute)

	return Reading{
		WaterLevelCm: levelCm,
		Date:         date,
		Time:         clockStr,
		Timestamp:    ts,
		GraphicURL:   strings.TrimSpace(doc.Grafik),
		OutOfRange:   outOfNominalRange(levelCm),
		ApproxTime:   approx,
	}, nil
}

// ConvertLevel normalizes a German decimal-comma level in meters to integer
// centimeters, rounding half-up: "3,68" -> 368.
func ConvertLevel(s string) (int, error) {
	if !levelRe.MatchString(s) {
		return 0, &NumberFormatError{Input: s}
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, &NumberFormatError{Input: s}
	}
	return int(math.Round(v * 100)), nil
}

// outOfNominalRange reports whether a level lies outside the gauge's nominal
// [0, maxNominalLevelCm] scale. The level pattern cannot produce negative
// values today, but the range check does not rely on that.
func outOfNominalRange(levelCm int) bool {
	return levelCm < 0 || levelCm > maxNominalLevelCm
}

func parseGermanDate(s string) (day int, month time.Month, year int, err error) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0, &DateFormatError{Input: s}
	}
	month, ok := germanMonths[m[2]]
	if !ok {
		return 0, 0, 0, &DateFormatError{Input: s}
	}
	day, _ = strconv.Atoi(m[1])
	year, _ = strconv.Atoi(m[3])
	return day, month, year, nil
}

func parseClock(s string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &ParseError{Reason: fmt.Sprintf("invalid time %q: want form like \"15:25\"", s)}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// reconstructTimestamp builds the measurement time in the gauge timezone.
// time.Date normalizes out-of-range components ("31. Februar" becomes
// March 3rd), so components that do not round-trip yield the current time
// plus the approximate flag instead of a silently shifted timestamp.
func reconstructTimestamp(year int, month time.Month, day, hour, minute int) (time.Time, bool) {
	ts := time.Date(year, month, day, hour, minute, 0, 0, gaugeLocation)
	if ts.Year() != year || ts.Month() != month || ts.Day() != day ||
		ts.Hour() != hour || ts.Minute() != minute {
		return clock.Now(), true
	}
	return ts, false
}
