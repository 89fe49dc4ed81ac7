// Package oem reads CCSDS Orbit Ephemeris Messages and interpolates the
// state vectors they carry.
//
// A Message is built once by Parse (or Load/LoadFile) and never mutated
// afterwards, so a loaded Message may be queried from many goroutines
// without locking.
package oem

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-ephem/internal/epoch"
)

// Vector6 is a Cartesian state: position (x, y, z) followed by velocity (vx, vy, vz).
type Vector6 [6]float64

// Position returns the position part of the state.
func (v Vector6) Position() [3]float64 {
	return [3]float64{v[0], v[1], v[2]}
}

// Velocity returns the velocity part of the state.
func (v Vector6) Velocity() [3]float64 {
	return [3]float64{v[3], v[4], v[5]}
}

// Sample is one epoch-tagged state from an ephemeris data block.
type Sample struct {
	Epoch epoch.Epoch
	State Vector6
	Accel *[3]float64 // Present only when the data row carried accelerations
}

// covarianceSize is the number of values in a packed 6x6 lower triangle.
const covarianceSize = 21

// CovarianceRecord is one epoch-tagged 6x6 position/velocity covariance.
type CovarianceRecord struct {
	Epoch    epoch.Epoch
	RefFrame string
	Values   [covarianceSize]float64 // Lower triangle, row by row
	Comment  string
}

// At returns element (i, j) of the symmetric matrix.
func (c CovarianceRecord) At(i, j int) float64 {
	if j > i {
		i, j = j, i
	}
	return c.Values[i*(i+1)/2+j]
}

// Matrix expands the packed lower triangle into a symmetric 6x6 matrix.
func (c CovarianceRecord) Matrix() *mat.SymDense {
	m := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j <= i; j++ {
			m.SetSym(i, j, c.At(i, j))
		}
	}
	return m
}

// InterpolationMethod selects how states between samples are reconstructed.
type InterpolationMethod int

const (
	Lagrange InterpolationMethod = iota
	Hermite
)

// String returns the method name as written in OEM metadata.
func (m InterpolationMethod) String() string {
	switch m {
	case Lagrange:
		return "LAGRANGE"
	case Hermite:
		return "HERMITE"
	default:
		return "UNKNOWN"
	}
}

// ParseInterpolation parses an INTERPOLATION value, ignoring case.
func ParseInterpolation(s string) (InterpolationMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LAGRANGE":
		return Lagrange, true
	case "HERMITE":
		return Hermite, true
	default:
		return 0, false
	}
}

// OptionalEpoch is an epoch that may be absent from the metadata.
type OptionalEpoch struct {
	Epoch epoch.Epoch
	Valid bool
}

// SegmentMeta is the metadata block that heads a segment.
type SegmentMeta struct {
	ObjectName    string
	ObjectID      string
	CenterName    string
	RefFrame      string
	RefFrameEpoch OptionalEpoch
	TimeSystem    string

	StartTime   epoch.Epoch
	StopTime    epoch.Epoch
	UsableStart OptionalEpoch
	UsableStop  OptionalEpoch

	Interpolation       InterpolationMethod
	InterpolationDegree int

	Comments []string
}

// FlatRecord is one sample of the denormalized time series.
type FlatRecord struct {
	Offset float64 // Seconds since StartEpoch of the message
	Epoch  epoch.Epoch
	State  Vector6
}
