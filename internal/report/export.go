// Package report renders loaded ephemerides as text tables and as JSON or
// YAML documents.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/litescript/ls-ephem/internal/oem"
)

// MessageExport is the serializable representation of a message.
type MessageExport struct {
	Source       string          `json:"source" yaml:"source"`
	Version      string          `json:"version" yaml:"version"`
	MessageID    string          `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Originator   string          `json:"originator,omitempty" yaml:"originator,omitempty"`
	CreationDate string          `json:"creation_date,omitempty" yaml:"creation_date,omitempty"`
	Comments     []string        `json:"comments,omitempty" yaml:"comments,omitempty"`
	Segments     []SegmentExport `json:"segments" yaml:"segments"`
	Series       []RecordExport  `json:"series,omitempty" yaml:"series,omitempty"`
}

// SegmentExport is a serializable segment header.
type SegmentExport struct {
	ObjectName    string             `json:"object_name" yaml:"object_name"`
	ObjectID      string             `json:"object_id" yaml:"object_id"`
	CenterName    string             `json:"center_name" yaml:"center_name"`
	RefFrame      string             `json:"ref_frame" yaml:"ref_frame"`
	RefFrameEpoch string             `json:"ref_frame_epoch,omitempty" yaml:"ref_frame_epoch,omitempty"`
	TimeSystem    string             `json:"time_system" yaml:"time_system"`
	StartTime     string             `json:"start_time" yaml:"start_time"`
	StopTime      string             `json:"stop_time" yaml:"stop_time"`
	UsableStart   string             `json:"usable_start_time,omitempty" yaml:"usable_start_time,omitempty"`
	UsableStop    string             `json:"usable_stop_time,omitempty" yaml:"usable_stop_time,omitempty"`
	Interpolation string             `json:"interpolation" yaml:"interpolation"`
	Degree        int                `json:"interpolation_degree" yaml:"interpolation_degree"`
	Samples       int                `json:"samples" yaml:"samples"`
	Comments      []string           `json:"comments,omitempty" yaml:"comments,omitempty"`
	Covariances   []CovarianceExport `json:"covariances,omitempty" yaml:"covariances,omitempty"`
}

// CovarianceExport summarizes one covariance record.
type CovarianceExport struct {
	Epoch            string     `json:"epoch" yaml:"epoch"`
	RefFrame         string     `json:"ref_frame" yaml:"ref_frame"`
	PositionSigma    [3]float64 `json:"position_sigma_km" yaml:"position_sigma_km"`
	VelocitySigma    [3]float64 `json:"velocity_sigma_km_s" yaml:"velocity_sigma_km_s"`
	PositiveDefinite bool       `json:"positive_definite" yaml:"positive_definite"`
	Lower            []float64  `json:"lower_triangle" yaml:"lower_triangle"`
}

// RecordExport is one row of the flat series.
type RecordExport struct {
	Offset   float64    `json:"offset_s" yaml:"offset_s"`
	Epoch    string     `json:"epoch" yaml:"epoch"`
	Position [3]float64 `json:"position_km" yaml:"position_km,flow"`
	Velocity [3]float64 `json:"velocity_km_s" yaml:"velocity_km_s,flow"`
}

// Export converts a message to its serializable form. The flat series is
// included when withSeries is set.
func Export(msg *oem.Message, withSeries bool) *MessageExport {
	out := &MessageExport{
		Source:     msg.Source(),
		Version:    msg.Version(),
		MessageID:  msg.MessageID(),
		Originator: msg.Originator(),
		Comments:   msg.Comments(),
	}
	if cd := msg.CreationDate(); cd.Valid {
		out.CreationDate = cd.Epoch.String()
	}

	for _, seg := range msg.Segments() {
		out.Segments = append(out.Segments, exportSegment(seg))
	}

	if withSeries {
		for _, r := range msg.FlatSeries() {
			out.Series = append(out.Series, RecordExport{
				Offset:   r.Offset,
				Epoch:    r.Epoch.String(),
				Position: r.State.Position(),
				Velocity: r.State.Velocity(),
			})
		}
	}
	return out
}

func exportSegment(seg *oem.Segment) SegmentExport {
	m := seg.Meta()
	se := SegmentExport{
		ObjectName:    m.ObjectName,
		ObjectID:      m.ObjectID,
		CenterName:    m.CenterName,
		RefFrame:      m.RefFrame,
		RefFrameEpoch: optional(m.RefFrameEpoch),
		TimeSystem:    m.TimeSystem,
		StartTime:     m.StartTime.String(),
		StopTime:      m.StopTime.String(),
		UsableStart:   optional(m.UsableStart),
		UsableStop:    optional(m.UsableStop),
		Interpolation: m.Interpolation.String(),
		Degree:        m.InterpolationDegree,
		Samples:       seg.Len(),
		Comments:      m.Comments,
	}
	for _, c := range seg.Covariances() {
		se.Covariances = append(se.Covariances, ExportCovariance(c))
	}
	return se
}

func optional(o oem.OptionalEpoch) string {
	if !o.Valid {
		return ""
	}
	return o.Epoch.String()
}

// ExportCovariance derives 1-sigma uncertainties from the matrix diagonal and
// checks whether the matrix admits a Cholesky factorization.
func ExportCovariance(c oem.CovarianceRecord) CovarianceExport {
	m := c.Matrix()
	ce := CovarianceExport{
		Epoch:    c.Epoch.String(),
		RefFrame: c.RefFrame,
		Lower:    append([]float64(nil), c.Values[:]...),
	}
	for i := 0; i < 3; i++ {
		ce.PositionSigma[i] = math.Sqrt(math.Max(m.At(i, i), 0))
		ce.VelocitySigma[i] = math.Sqrt(math.Max(m.At(i+3, i+3), 0))
	}

	var chol mat.Cholesky
	ce.PositiveDefinite = chol.Factorize(m)
	return ce
}

// WriteJSON writes the export as indented JSON.
func (e *MessageExport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// WriteYAML writes the export as YAML.
func (e *MessageExport) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(e); err != nil {
		return err
	}
	return enc.Close()
}

// Write writes the export in the named format ("json" or "yaml").
func (e *MessageExport) Write(w io.Writer, format string) error {
	switch format {
	case "json":
		return e.WriteJSON(w)
	case "yaml", "yml":
		return e.WriteYAML(w)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
