// Package epoch converts CCSDS epoch strings into a continuous numeric time scale.
//
// An Epoch is a count of seconds past J2000 (2000-01-01T12:00:00) expressed in
// whatever time system the source file declares. No conversion between time
// scales happens here; callers that need UTC/TAI/TDB arithmetic do it themselves.
package epoch

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tolerance is the matching tolerance, in seconds, for comparing epochs.
const Tolerance = 1e-6

// Epoch is a point in time as seconds past J2000.
type Epoch float64

// j2000 is the reference instant, treated as a calendar label in the file's time system.
var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// layouts lists the accepted CCSDS date forms. Fractional seconds are accepted
// by time.Parse after the seconds field even though the layouts omit them.
var layouts = []string{
	"2006-01-02T15:04:05", // calendar
	"2006-002T15:04:05",   // day of year
	"2006-01-02T15:04",
	"2006-002T15:04",
	"2006-01-02",
	"2006-002",
}

// Parse converts a CCSDS calendar ("YYYY-MM-DDThh:mm:ss[.d]") or day-of-year
// ("YYYY-DDDThh:mm:ss[.d]") string to an Epoch. A trailing "Z" is allowed.
// A leap second (":60") is accepted and lands on the following second.
func Parse(s string) (Epoch, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "Z")
	if s == "" {
		return 0, fmt.Errorf("empty epoch string")
	}

	s, leap := stripLeapSecond(s)

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			e := FromTime(t)
			if leap {
				e++
			}
			return e, nil
		}
	}

	return 0, fmt.Errorf("unrecognized epoch format: %q", raw)
}

// stripLeapSecond rewrites "hh:mm:60[.d]" to "hh:mm:59[.d]" and reports
// whether it did so.
func stripLeapSecond(s string) (string, bool) {
	tIdx := strings.IndexByte(s, 'T')
	if tIdx < 0 {
		return s, false
	}
	clock := s[tIdx+1:]
	parts := strings.Split(clock, ":")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "60") {
		return s, false
	}
	parts[2] = "59" + parts[2][2:]
	return s[:tIdx+1] + strings.Join(parts, ":"), true
}

// FromTime converts a time.Time to an Epoch, reading its calendar fields as UTC.
func FromTime(t time.Time) Epoch {
	t = t.UTC()
	secs := float64(t.Unix() - j2000.Unix())
	return Epoch(secs + float64(t.Nanosecond())/1e9)
}

// Time returns the epoch as a time.Time labelled UTC.
func (e Epoch) Time() time.Time {
	whole := math.Floor(float64(e))
	nanos := math.Round((float64(e) - whole) * 1e9)
	return j2000.Add(time.Duration(whole)*time.Second + time.Duration(nanos))
}

// Add returns the epoch shifted by secs seconds.
func (e Epoch) Add(secs float64) Epoch {
	return e + Epoch(secs)
}

// Sub returns e - o in seconds.
func (e Epoch) Sub(o Epoch) float64 {
	return float64(e - o)
}

// Equal reports whether two epochs match within Tolerance.
func (e Epoch) Equal(o Epoch) bool {
	return math.Abs(float64(e-o)) <= Tolerance
}

// Before reports whether e precedes o by more than Tolerance.
func (e Epoch) Before(o Epoch) bool {
	return float64(o-e) > Tolerance
}

// After reports whether e follows o by more than Tolerance.
func (e Epoch) After(o Epoch) bool {
	return float64(e-o) > Tolerance
}

// String formats the epoch in CCSDS calendar form with microsecond precision.
func (e Epoch) String() string {
	return e.Time().Format("2006-01-02T15:04:05.000000")
}
