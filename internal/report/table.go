package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/oem"
)

// SummaryRow represents one segment in the summary table.
type SummaryRow struct {
	Index       int
	Object      string
	ObjectID    string
	Center      string
	Frame       string
	TimeSystem  string
	Start       string
	Stop        string
	Method      string
	Samples     int
	Covariances int
}

// GenerateSummaryRows creates one row per segment.
func GenerateSummaryRows(msg *oem.Message) []SummaryRow {
	if msg == nil {
		return nil
	}

	var rows []SummaryRow
	for i, seg := range msg.Segments() {
		m := seg.Meta()
		start, stop := seg.Coverage()
		rows = append(rows, SummaryRow{
			Index:       i + 1,
			Object:      m.ObjectName,
			ObjectID:    m.ObjectID,
			Center:      m.CenterName,
			Frame:       m.RefFrame,
			TimeSystem:  m.TimeSystem,
			Start:       shortEpoch(start),
			Stop:        shortEpoch(stop),
			Method:      fmt.Sprintf("%s/%d", m.Interpolation, m.InterpolationDegree),
			Samples:     seg.Len(),
			Covariances: len(seg.Covariances()),
		})
	}
	return rows
}

// WriteSummaryTable writes a text table describing msg.
func WriteSummaryTable(w io.Writer, msg *oem.Message) {
	fmt.Fprintf(w, "%s (OEM %s", msg.Source(), msg.Version())
	if o := msg.Originator(); o != "" {
		fmt.Fprintf(w, ", %s", o)
	}
	if cd := msg.CreationDate(); cd.Valid {
		fmt.Fprintf(w, ", created %s", shortEpoch(cd.Epoch))
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintln(w, strings.Repeat("─", 110))

	rows := GenerateSummaryRows(msg)

	fmt.Fprintf(w, "%-3s %-14s %-11s %-8s %-8s %-4s %-19s %-19s %-11s %7s %4s\n",
		"#", "Object", "ID", "Center", "Frame", "TS", "Usable start", "Usable stop", "Interp", "Samples", "Cov")
	fmt.Fprintln(w, strings.Repeat("─", 110))

	total := 0
	for _, r := range rows {
		fmt.Fprintf(w, "%-3d %-14s %-11s %-8s %-8s %-4s %-19s %-19s %-11s %7d %4d\n",
			r.Index,
			truncateStr(r.Object, 14),
			truncateStr(r.ObjectID, 11),
			truncateStr(r.Center, 8),
			truncateStr(r.Frame, 8),
			truncateStr(r.TimeSystem, 4),
			r.Start,
			r.Stop,
			r.Method,
			r.Samples,
			r.Covariances,
		)
		total += r.Samples
	}

	span := msg.EndEpoch().Sub(msg.StartEpoch())
	fmt.Fprintf(w, "\nTotal: %d segments, %d samples, span %s\n", len(rows), total, FormatSpan(span))
}

// StateRow is one interpolated state, or the reason none is available.
type StateRow struct {
	Epoch  epoch.Epoch
	Offset float64 // Seconds from the table start
	State  oem.Vector6
	Err    error
}

// Covered reports whether the row holds a state.
func (r StateRow) Covered() bool {
	return r.Err == nil
}

// maxTableRows bounds a generated state table.
const maxTableRows = 100000

// StateTable samples msg every step seconds from its first segment start to
// its last segment stop. Epochs inside gaps between segments are reported
// with an error rather than skipped.
func StateTable(msg *oem.Message, step float64) ([]StateRow, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}

	start, stop := msg.StartEpoch(), msg.EndEpoch()
	// Bound the quotient as a float; a tiny step overflows int.
	q := math.Floor(stop.Sub(start)/step + epoch.Tolerance)
	if q+1 > maxTableRows {
		return nil, fmt.Errorf("step %vs yields %.0f rows (limit %d)", step, q+1, maxTableRows)
	}
	n := int(q) + 1

	rows := make([]StateRow, 0, n)
	for k := 0; k < n; k++ {
		off := float64(k) * step
		e := start.Add(off)
		s, err := msg.StateAt(e)
		rows = append(rows, StateRow{Epoch: e, Offset: off, State: s, Err: err})
	}
	return rows, nil
}

// WriteStateTable writes rows as aligned columns. Uncovered epochs print a
// short marker in place of the state.
func WriteStateTable(w io.Writer, rows []StateRow) {
	fmt.Fprintf(w, "%-26s %10s %15s %15s %15s %12s %12s %12s\n",
		"Epoch", "Offset", "X (km)", "Y (km)", "Z (km)", "VX (km/s)", "VY (km/s)", "VZ (km/s)")
	fmt.Fprintln(w, strings.Repeat("─", 124))

	gaps := 0
	for _, r := range rows {
		if !r.Covered() {
			gaps++
			marker := "no coverage"
			if !errors.Is(r.Err, oem.ErrNoCoveringSegment) {
				marker = r.Err.Error()
			}
			fmt.Fprintf(w, "%-26s %10.1f %s\n", r.Epoch, r.Offset, marker)
			continue
		}
		s := r.State
		fmt.Fprintf(w, "%-26s %10.1f %15.6f %15.6f %15.6f %12.9f %12.9f %12.9f\n",
			r.Epoch, r.Offset, s[0], s[1], s[2], s[3], s[4], s[5])
	}

	if gaps > 0 {
		fmt.Fprintf(w, "\n%d of %d epochs fall outside segment coverage\n", gaps, len(rows))
	}
}

// WriteState writes a single state vector with its magnitudes.
func WriteState(w io.Writer, e epoch.Epoch, s oem.Vector6) {
	p, v := s.Position(), s.Velocity()
	fmt.Fprintf(w, "Epoch     %s\n", e)
	fmt.Fprintf(w, "Position  %15.6f %15.6f %15.6f km   |r| = %.6f km\n", p[0], p[1], p[2], norm(p))
	fmt.Fprintf(w, "Velocity  %15.9f %15.9f %15.9f km/s |v| = %.9f km/s\n", v[0], v[1], v[2], norm(v))
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// FormatSpan formats a duration in seconds as days/hours/minutes.
func FormatSpan(secs float64) string {
	switch {
	case secs >= 86400:
		return fmt.Sprintf("%.2f d", secs/86400)
	case secs >= 3600:
		return fmt.Sprintf("%.2f h", secs/3600)
	case secs >= 60:
		return fmt.Sprintf("%.1f min", secs/60)
	default:
		return fmt.Sprintf("%.3f s", secs)
	}
}

// shortEpoch formats an epoch to whole seconds for tables.
func shortEpoch(e epoch.Epoch) string {
	return e.Time().Format("2006-01-02T15:04:05")
}

// truncateStr shortens s to maxLen runes so multi-byte names are never split.
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-2]) + ".."
}
