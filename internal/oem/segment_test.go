package oem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestStateAt_SampleEpochsReturnStoredState(t *testing.T) {
	for _, method := range []string{"LAGRANGE", "HERMITE"} {
		t.Run(method, func(t *testing.T) {
			msg := parseString(t, singleSegment(method, 5))
			seg := msg.Segments()[0]

			for _, s := range seg.Samples() {
				got, err := seg.StateAt(s.Epoch)
				if err != nil {
					t.Fatalf("StateAt(%s): %v", s.Epoch, err)
				}
				if got != s.State {
					t.Errorf("StateAt(%s) = %v, want stored %v", s.Epoch, got, s.State)
				}
			}
		})
	}
}

func TestStateAt_StraightLine(t *testing.T) {
	tests := []struct {
		method string
		degree int
	}{
		{"LAGRANGE", 1},
		{"LAGRANGE", 3},
		{"LAGRANGE", 7},
		{"HERMITE", 3},
		{"HERMITE", 5},
	}

	queries := []float64{0.5, 30, 95.25, 299.999, 412.5, 599}

	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			msg := parseString(t, singleSegment(tc.method, tc.degree))
			for _, sec := range queries {
				got, err := msg.StateAt(base.Add(sec))
				if err != nil {
					t.Fatalf("StateAt(+%vs): %v", sec, err)
				}
				assertState(t, got, lineState(sec), 1e-6)
			}
		})
	}
}

func TestStateAt_Quadratic(t *testing.T) {
	// Position x = 100 + 2t + 0.01t^2 in every axis, velocity 2 + 0.02t.
	var b strings.Builder
	b.WriteString(header())
	b.WriteString(meta("QUADSAT", "LAGRANGE", 2, 0, 600))
	quad := func(sec float64) Vector6 {
		p := 100 + 2*sec + 0.01*sec*sec
		v := 2 + 0.02*sec
		return Vector6{p, p, p, v, v, v}
	}
	for k := 0; k <= 10; k++ {
		sec := float64(k) * 60
		b.WriteString(formatRow(sec, quad(sec)) + "\n")
	}

	msg := parseString(t, b.String())
	for _, sec := range []float64{15, 135, 555} {
		got, err := msg.StateAt(base.Add(sec))
		if err != nil {
			t.Fatal(err)
		}
		assertState(t, got, quad(sec), 1e-6)
	}
}

func TestStateAt_HermiteVelocityFromDerivative(t *testing.T) {
	// Circular motion sampled every 10 s. Hermite velocities follow the
	// derivative of the fitted position curve, so they should track the
	// analytic velocity closely between samples.
	const omega = 0.001
	const r = 7000.0
	circle := func(sec float64) Vector6 {
		s, c := math.Sincos(omega * sec)
		return Vector6{r * c, r * s, 0, -r * omega * s, r * omega * c, 0}
	}

	var b strings.Builder
	b.WriteString(header())
	b.WriteString(meta("CIRC", "HERMITE", 3, 0, 200))
	for k := 0; k <= 20; k++ {
		sec := float64(k) * 10
		b.WriteString(formatRow(sec, circle(sec)) + "\n")
	}

	msg := parseString(t, b.String())
	for _, sec := range []float64{5, 47.5, 123.4} {
		got, err := msg.StateAt(base.Add(sec))
		if err != nil {
			t.Fatal(err)
		}
		want := circle(sec)
		for c := 0; c < 3; c++ {
			if math.Abs(got[c]-want[c]) > 1e-4 {
				t.Errorf("position[%d] at %v = %v, want %v", c, sec, got[c], want[c])
			}
			if math.Abs(got[c+3]-want[c+3]) > 1e-4 {
				t.Errorf("velocity[%d] at %v = %v, want %v", c, sec, got[c+3], want[c+3])
			}
		}
	}
}

func TestStateAt_BoundaryClosure(t *testing.T) {
	msg := parseString(t, singleSegment("LAGRANGE", 3))
	seg := msg.Segments()[0]

	tests := []struct {
		name    string
		sec     float64
		covered bool
	}{
		{"start", 0, true},
		{"stop", 600, true},
		{"within tolerance after stop", 600 + 5e-7, true},
		{"just after stop", 600.001, false},
		{"just before start", -0.001, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := base.Add(tc.sec)
			if seg.Covers(e) != tc.covered {
				t.Errorf("Covers(+%vs) = %v, want %v", tc.sec, seg.Covers(e), tc.covered)
			}
			_, err := seg.StateAt(e)
			if tc.covered && err != nil {
				t.Errorf("StateAt(+%vs): %v", tc.sec, err)
			}
			if !tc.covered {
				var oor *OutOfRangeError
				if !errors.As(err, &oor) || !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("StateAt(+%vs) error = %v, want OutOfRangeError", tc.sec, err)
				}
				if oor.Object != "TESTSAT" || !oor.Start.Equal(base) || !oor.Stop.Equal(base.Add(600)) {
					t.Errorf("OutOfRangeError = %+v", oor)
				}
			}
		})
	}
}

func TestStateAt_UsableWindow(t *testing.T) {
	text := header() +
		meta("TESTSAT", "LAGRANGE", 3, 0, 600,
			"USEABLE_START_TIME = "+at(120),
			"USEABLE_STOP_TIME = "+at(480)) +
		rows(0, 60, 11)
	seg := parseString(t, text).Segments()[0]

	start, stop := seg.Coverage()
	if !start.Equal(base.Add(120)) || !stop.Equal(base.Add(480)) {
		t.Errorf("Coverage = [%s, %s]", start, stop)
	}
	if _, err := seg.StateAt(base.Add(60)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("sample outside usable window: err = %v, want ErrOutOfRange", err)
	}
	if _, err := seg.StateAt(base.Add(300)); err != nil {
		t.Errorf("StateAt inside usable window: %v", err)
	}
}

func TestStateAt_CoverageBeyondSamples(t *testing.T) {
	// Segment declared over [0, 600] but sampled only from 60 to 540.
	for _, method := range []string{"LAGRANGE", "HERMITE"} {
		t.Run(method, func(t *testing.T) {
			text := header() + meta("TESTSAT", method, 3, 0, 600) + rows(60, 60, 9)
			msg := parseString(t, text)
			for _, sec := range []float64{0, 30, 570, 600} {
				got, err := msg.StateAt(base.Add(sec))
				if err != nil {
					t.Fatalf("StateAt(+%vs): %v", sec, err)
				}
				assertState(t, got, lineState(sec), 1e-6)
			}
		})
	}
}

func TestStateAt_Degradation(t *testing.T) {
	tests := []struct {
		method string
		degree int
	}{
		{"LAGRANGE", 7},
		{"HERMITE", 7},
		{"LAGRANGE", math.MaxInt},
		{"HERMITE", math.MaxInt},
	}
	for _, tt := range tests {
		method := tt.method
		t.Run(fmt.Sprintf("%s/%d", tt.method, tt.degree), func(t *testing.T) {
			var warnings atomic.Int32
			warner := func(format string, args ...interface{}) { warnings.Add(1) }

			text := header() + meta("SPARSE", method, tt.degree, 0, 120) + rows(0, 60, 3)
			msg := parseString(t, text, WithWarner(warner))

			for _, sec := range []float64{10, 30, 90, 110} {
				got, err := msg.StateAt(base.Add(sec))
				if err != nil {
					t.Fatalf("StateAt(+%vs): %v", sec, err)
				}
				assertState(t, got, lineState(sec), 1e-6)
			}
			if n := warnings.Load(); n != 1 {
				t.Errorf("warnings = %d, want 1", n)
			}
		})
	}
}

func TestStateAt_SingleSample(t *testing.T) {
	text := header() + meta("ONE", "LAGRANGE", 3, 0, 60) + rows(0, 60, 1)
	msg := parseString(t, text, WithWarner(func(string, ...interface{}) {}))

	got, err := msg.StateAt(base.Add(30))
	if err != nil {
		t.Fatal(err)
	}
	if got != lineState(0) {
		t.Errorf("StateAt = %v, want the only sample %v", got, lineState(0))
	}
}

func TestWindow(t *testing.T) {
	seg := parseString(t, singleSegment("LAGRANGE", 3)).Segments()[0]

	tests := []struct {
		sec    float64
		lo, hi int
	}{
		{10, 0, 4},    // clamped at the start
		{150, 1, 5},   // between samples 2 and 3
		{590, 7, 11},  // clamped at the end
		{300.5, 4, 8}, // just after a sample
	}

	for _, tc := range tests {
		lo, hi := seg.window(base.Add(tc.sec))
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("window(+%vs) = [%d, %d), want [%d, %d)", tc.sec, lo, hi, tc.lo, tc.hi)
		}
	}
}

func TestStateAt_Concurrent(t *testing.T) {
	text := header() +
		meta("TESTSAT", "LAGRANGE", 5, 0, 600) + rows(0, 60, 11) +
		meta("TESTSAT", "HERMITE", 3, 600, 1200) + rows(600, 60, 11)
	msg := parseString(t, text, WithWarner(func(string, ...interface{}) {}))

	queries := make([]float64, 0, 240)
	for sec := 0.0; sec <= 1200; sec += 5 {
		queries = append(queries, sec)
	}

	want := make([]Vector6, len(queries))
	for i, sec := range queries {
		s, err := msg.StateAt(base.Add(sec))
		if err != nil {
			t.Fatalf("sequential StateAt(+%vs): %v", sec, err)
		}
		want[i] = s
	}

	got := make([]Vector6, len(queries))
	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < len(queries); i += 8 {
				s, err := msg.StateAt(base.Add(queries[i]))
				if err != nil {
					return err
				}
				got[i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := range queries {
		if got[i] != want[i] {
			t.Errorf("concurrent StateAt(+%vs) = %v, sequential %v", queries[i], got[i], want[i])
		}
	}
}

func TestSegment_AccessorsCopy(t *testing.T) {
	seg := parseString(t, singleSegment("LAGRANGE", 3)).Segments()[0]

	samples := seg.Samples()
	samples[0].State[0] = -1
	if seg.Samples()[0].State[0] == -1 {
		t.Error("Samples() exposed internal storage")
	}

	m := seg.Meta()
	m.ObjectName = "CHANGED"
	if seg.Meta().ObjectName != "TESTSAT" {
		t.Error("Meta() exposed internal storage")
	}
}
