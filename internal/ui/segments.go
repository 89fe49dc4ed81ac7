package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/ls-ephem/internal/oem"
)

// SegmentListModel lists the segments of a message.
type SegmentListModel struct {
	width    int
	height   int
	cursor   int
	msg      *oem.Message
	segments []*oem.Segment
}

// NewSegmentListModel creates an empty segment list.
func NewSegmentListModel() SegmentListModel {
	return SegmentListModel{}
}

// SetSize updates the viewport size.
func (m SegmentListModel) SetSize(width, height int) SegmentListModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData replaces the message being listed.
func (m SegmentListModel) UpdateData(msg *oem.Message) SegmentListModel {
	m.msg = msg
	m.segments = msg.Segments()
	if m.cursor >= len(m.segments) {
		m.cursor = max(len(m.segments)-1, 0)
	}
	return m
}

// Selected returns the segment under the cursor.
func (m SegmentListModel) Selected() (*oem.Segment, bool) {
	if m.cursor < 0 || m.cursor >= len(m.segments) {
		return nil, false
	}
	return m.segments[m.cursor], true
}

// Update handles messages.
func (m SegmentListModel) Update(msg tea.Msg) (SegmentListModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.segments)-1 {
				m.cursor++
			}
		case "home":
			m.cursor = 0
		case "end":
			if len(m.segments) > 0 {
				m.cursor = len(m.segments) - 1
			}
		}
	}
	return m, nil
}

// View renders the list and the detail of the selected segment.
func (m SegmentListModel) View() string {
	if m.msg == nil {
		return "No message loaded\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Segments"))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-3s %-16s %-9s %-9s %-20s %-20s %-12s %7s  %s",
		"#", "Object", "Center", "Frame", "Start", "Stop", "Interp", "Samples", "Coverage")))
	b.WriteString("\n")

	t0, t1 := m.msg.StartEpoch(), m.msg.EndEpoch()
	span := t1.Sub(t0)

	for i, seg := range m.segments {
		meta := seg.Meta()
		start, stop := seg.Coverage()

		var lo, hi float64
		if span > 0 {
			lo = start.Sub(t0) / span
			hi = stop.Sub(t0) / span
		} else {
			lo, hi = 0, 1
		}

		line := fmt.Sprintf("%-3d %-16s %-9s %-9s %-20s %-20s %-12s %7d  %s",
			i+1,
			truncate(meta.ObjectName, 16),
			truncate(meta.CenterName, 9),
			truncate(meta.RefFrame, 9),
			start.Time().Format("2006-01-02T15:04:05"),
			stop.Time().Format("2006-01-02T15:04:05"),
			fmt.Sprintf("%s/%d", meta.Interpolation, meta.InterpolationDegree),
			seg.Len(),
			renderCoverageBar(lo, hi, 20),
		)
		if i == m.cursor {
			b.WriteString(selectedRowStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}

	if seg, ok := m.Selected(); ok {
		b.WriteString("\n")
		b.WriteString(m.renderDetail(seg))
	}
	return b.String()
}

func (m SegmentListModel) renderDetail(seg *oem.Segment) string {
	meta := seg.Meta()
	var b strings.Builder

	fmt.Fprintf(&b, "  Object      %s (%s)\n", meta.ObjectName, meta.ObjectID)
	fmt.Fprintf(&b, "  Time system %s\n", meta.TimeSystem)
	if meta.RefFrameEpoch.Valid {
		fmt.Fprintf(&b, "  Frame epoch %s\n", meta.RefFrameEpoch.Epoch)
	}
	if n := len(seg.Covariances()); n > 0 {
		fmt.Fprintf(&b, "  Covariance  %d records\n", n)
	}
	for _, c := range meta.Comments {
		b.WriteString(dimStyle.Render("  # " + c))
		b.WriteString("\n")
	}
	return b.String()
}

// renderCoverageBar draws the fraction [lo, hi] of the message span.
func renderCoverageBar(lo, hi float64, width int) string {
	if width <= 0 {
		return "[]"
	}
	lo = clamp01(lo)
	hi = clamp01(hi)

	first := int(lo * float64(width))
	last := int(hi*float64(width) + 0.5)
	if last <= first {
		last = first + 1
	}
	if last > width {
		last = width
		if first >= last {
			first = last - 1
		}
	}

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < width; i++ {
		if i >= first && i < last {
			b.WriteString("█")
		} else {
			b.WriteString("·")
		}
	}
	b.WriteString("]")
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// truncate shortens s to maxLen runes so multi-byte names are never split.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-2]) + ".."
}
