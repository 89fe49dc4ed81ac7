package oem

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/litescript/ls-ephem/internal/epoch"
)

// baseTime is the epoch every synthetic segment is measured from.
const baseTime = "2024-01-01T00:00:00"

func mustEpoch(t *testing.T, s string) epoch.Epoch {
	t.Helper()
	e, err := epoch.Parse(s)
	if err != nil {
		t.Fatalf("epoch.Parse(%q): %v", s, err)
	}
	return e
}

var base = func() epoch.Epoch {
	e, err := epoch.Parse(baseTime)
	if err != nil {
		panic(err)
	}
	return e
}()

// at returns the epoch string sec seconds after baseTime.
func at(sec float64) string {
	return base.Add(sec).String()
}

// line returns the analytic straight-line state sec seconds after baseTime.
func lineState(sec float64) Vector6 {
	return Vector6{
		7000 + 1.25*sec,
		-1200 + 7.5*sec,
		350 - 0.75*sec,
		1.25, 7.5, -0.75,
	}
}

func formatRow(sec float64, v Vector6, extra ...float64) string {
	parts := []string{at(sec)}
	for _, x := range v {
		parts = append(parts, strconv.FormatFloat(x, 'f', -1, 64))
	}
	for _, x := range extra {
		parts = append(parts, strconv.FormatFloat(x, 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

// rows renders n straight-line data rows every step seconds from first.
func rows(first, step float64, n int) string {
	var b strings.Builder
	for k := 0; k < n; k++ {
		sec := first + float64(k)*step
		b.WriteString(formatRow(sec, lineState(sec)))
		b.WriteString("\n")
	}
	return b.String()
}

func header() string {
	return "CCSDS_OEM_VERS = 1.0\n" +
		"CREATION_DATE = 2024-01-02T03:04:05\n" +
		"ORIGINATOR = LITESCRIPT\n" +
		"COMMENT synthetic straight-line ephemeris\n\n"
}

// meta renders a metadata block spanning [start, stop] seconds after baseTime.
func meta(name, method string, degree int, start, stop float64, extra ...string) string {
	var b strings.Builder
	b.WriteString("META_START\n")
	fmt.Fprintf(&b, "OBJECT_NAME = %s\n", name)
	b.WriteString("OBJECT_ID = 2024-001A\nCENTER_NAME = EARTH\nREF_FRAME = EME2000\nTIME_SYSTEM = UTC\n")
	fmt.Fprintf(&b, "START_TIME = %s\n", at(start))
	fmt.Fprintf(&b, "STOP_TIME = %s\n", at(stop))
	fmt.Fprintf(&b, "INTERPOLATION = %s\n", method)
	fmt.Fprintf(&b, "INTERPOLATION_DEGREE = %d\n", degree)
	for _, l := range extra {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("META_STOP\n\n")
	return b.String()
}

const covarianceBlock = `COVARIANCE_START
EPOCH = 2024-01-01T00:00:00
COV_REF_FRAME = RTN
COMMENT covariance note
1.0
0.1 2.0
0.2 0.3 3.0
0.4 0.5 0.6 4.0
0.7 0.8 0.9 1.1 5.0
1.2 1.3 1.4 1.5 1.6 6.0
COVARIANCE_STOP
`

// singleSegment is a valid one-segment message with ten minutes of samples.
func singleSegment(method string, degree int) string {
	return header() + meta("TESTSAT", method, degree, 0, 600) + rows(0, 60, 11)
}

func parseString(t *testing.T, text string, opts ...Option) *Message {
	t.Helper()
	msg, err := Parse(strings.NewReader(text), "test.oem", opts...)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return msg
}

func assertState(t *testing.T, got, want Vector6, tol float64) {
	t.Helper()
	for c := range got {
		if math.Abs(got[c]-want[c]) > tol {
			t.Errorf("component %d = %.12f, want %.12f", c, got[c], want[c])
		}
	}
}
