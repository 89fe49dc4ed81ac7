package oem

import (
	"sort"
	"sync"

	"github.com/litescript/ls-ephem/internal/epoch"
)

// Warner receives non-fatal diagnostics, such as interpolation degradation.
type Warner func(format string, args ...interface{})

// Segment is a time-ordered run of samples sharing one metadata block.
// Segments are created by the parser and are read-only afterwards.
type Segment struct {
	meta         SegmentMeta
	samples      []Sample
	covariances  []CovarianceRecord
	dataComments []string

	warn        Warner
	degradeOnce sync.Once
}

// Meta returns a copy of the segment metadata.
func (s *Segment) Meta() SegmentMeta {
	m := s.meta
	m.Comments = append([]string(nil), s.meta.Comments...)
	return m
}

// Samples returns a copy of the segment's samples.
func (s *Segment) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples.
func (s *Segment) Len() int {
	return len(s.samples)
}

// Covariances returns a copy of the segment's covariance records.
func (s *Segment) Covariances() []CovarianceRecord {
	out := make([]CovarianceRecord, len(s.covariances))
	copy(out, s.covariances)
	return out
}

// DataComments returns the comments found at the top of the data block.
func (s *Segment) DataComments() []string {
	return append([]string(nil), s.dataComments...)
}

// Coverage returns the usable window: the usable start/stop times when present,
// otherwise the segment start/stop times.
func (s *Segment) Coverage() (start, stop epoch.Epoch) {
	start, stop = s.meta.StartTime, s.meta.StopTime
	if s.meta.UsableStart.Valid {
		start = s.meta.UsableStart.Epoch
	}
	if s.meta.UsableStop.Valid {
		stop = s.meta.UsableStop.Epoch
	}
	return start, stop
}

// Covers reports whether e lies inside the usable window, within epoch.Tolerance.
func (s *Segment) Covers(e epoch.Epoch) bool {
	start, stop := s.Coverage()
	return !e.Before(start) && !e.After(stop)
}

// StateAt returns the state at e. Sample epochs return the stored state
// unchanged; other epochs are interpolated with the segment's method.
func (s *Segment) StateAt(e epoch.Epoch) (Vector6, error) {
	if !s.Covers(e) {
		start, stop := s.Coverage()
		return Vector6{}, &OutOfRangeError{
			Object:    s.meta.ObjectName,
			Requested: e,
			Start:     start,
			Stop:      stop,
		}
	}

	n := len(s.samples)
	i := sort.Search(n, func(i int) bool { return !s.samples[i].Epoch.Before(e) })
	if i < n && s.samples[i].Epoch.Equal(e) {
		return s.samples[i].State, nil
	}

	lo, hi := s.window(e)
	switch s.meta.Interpolation {
	case Hermite:
		return hermite(s.samples[lo:hi], e), nil
	default:
		return lagrange(s.samples[lo:hi], e), nil
	}
}

// window picks the [lo, hi) range of samples used to interpolate at e:
// degree+1 samples centred on e and clamped to the ends of the sample list.
func (s *Segment) window(e epoch.Epoch) (lo, hi int) {
	n := len(s.samples)
	// Compare before adding one: the declared degree may be as large as MaxInt.
	size := n
	if s.meta.InterpolationDegree < n {
		size = s.meta.InterpolationDegree + 1
	} else {
		s.degradeOnce.Do(func() {
			if s.warn != nil {
				s.warn("segment %q has %d samples, too few for degree %d; interpolating with degree %d",
					s.meta.ObjectName, n, s.meta.InterpolationDegree, n-1)
			}
		})
	}

	// Index of the first sample after e.
	upper := sort.Search(n, func(i int) bool { return s.samples[i].Epoch.After(e) })
	lo = upper - size/2
	if lo < 0 {
		lo = 0
	}
	if lo > n-size {
		lo = n - size
	}
	return lo, lo + size
}
