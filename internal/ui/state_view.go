package ui

import (
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/oem"
)

// stepSizes are the cursor increments, in seconds, cycled by +/-.
var stepSizes = []float64{1, 10, 60, 300, 600, 3600, 21600, 86400}

// StateViewModel shows the interpolated state at a movable cursor epoch.
type StateViewModel struct {
	width  int
	height int
	msg    *oem.Message
	cursor epoch.Epoch
	step   int // Index into stepSizes
}

// NewStateViewModel creates a state view whose step is the size closest to
// step seconds.
func NewStateViewModel(step float64) StateViewModel {
	best := 0
	for i, s := range stepSizes {
		if math.Abs(s-step) < math.Abs(stepSizes[best]-step) {
			best = i
		}
	}
	return StateViewModel{step: best}
}

// SetSize updates the viewport size.
func (m StateViewModel) SetSize(width, height int) StateViewModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData replaces the message. The cursor is kept when it is still
// inside the new message span.
func (m StateViewModel) UpdateData(msg *oem.Message) StateViewModel {
	first := m.msg == nil
	m.msg = msg
	if first {
		m.cursor = msg.StartEpoch()
	}
	m.cursor = m.clampEpoch(m.cursor)
	return m
}

// JumpTo moves the cursor to e.
func (m StateViewModel) JumpTo(e epoch.Epoch) StateViewModel {
	m.cursor = m.clampEpoch(e)
	return m
}

// Cursor returns the cursor epoch.
func (m StateViewModel) Cursor() epoch.Epoch {
	return m.cursor
}

// Step returns the cursor step in seconds.
func (m StateViewModel) Step() float64 {
	return stepSizes[m.step]
}

func (m StateViewModel) clampEpoch(e epoch.Epoch) epoch.Epoch {
	if m.msg == nil {
		return e
	}
	if e.Before(m.msg.StartEpoch()) {
		return m.msg.StartEpoch()
	}
	if e.After(m.msg.EndEpoch()) {
		return m.msg.EndEpoch()
	}
	return e
}

// Update handles messages.
func (m StateViewModel) Update(msg tea.Msg) (StateViewModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.msg == nil {
		return m, nil
	}

	switch key.String() {
	case "right", "l":
		m.cursor = m.clampEpoch(m.cursor.Add(m.Step()))
	case "left", "h":
		m.cursor = m.clampEpoch(m.cursor.Add(-m.Step()))
	case "+", "=":
		if m.step < len(stepSizes)-1 {
			m.step++
		}
	case "-", "_":
		if m.step > 0 {
			m.step--
		}
	case "home":
		m.cursor = m.msg.StartEpoch()
	case "end":
		m.cursor = m.msg.EndEpoch()
	case "n":
		m.cursor = m.adjacentSegmentStart(+1)
	case "p":
		m.cursor = m.adjacentSegmentStart(-1)
	}
	return m, nil
}

// adjacentSegmentStart returns the coverage start of the next (dir > 0) or
// previous segment relative to the cursor, or the cursor if there is none.
func (m StateViewModel) adjacentSegmentStart(dir int) epoch.Epoch {
	segs := m.msg.Segments()
	if dir > 0 {
		for _, s := range segs {
			if start, _ := s.Coverage(); start.After(m.cursor) {
				return start
			}
		}
		return m.cursor
	}
	for i := len(segs) - 1; i >= 0; i-- {
		if start, _ := segs[i].Coverage(); start.Before(m.cursor) {
			return start
		}
	}
	return m.cursor
}

// View renders the cursor epoch and the state there.
func (m StateViewModel) View() string {
	if m.msg == nil {
		return "No message loaded\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Interpolated state"))
	b.WriteString("\n\n")

	offset := m.cursor.Sub(m.msg.StartEpoch())
	fmt.Fprintf(&b, "  Epoch   %s\n", m.cursor)
	fmt.Fprintf(&b, "  Offset  %.3f s from %s\n", offset, m.msg.StartEpoch())
	fmt.Fprintf(&b, "  Step    %s\n\n", formatStep(m.Step()))

	state, err := m.msg.StateAt(m.cursor)
	if err != nil {
		if errors.Is(err, oem.ErrNoCoveringSegment) {
			b.WriteString(errorStyle.Render("  No segment covers this epoch"))
		} else {
			b.WriteString(errorStyle.Render("  " + err.Error()))
		}
		b.WriteString("\n")
		return b.String()
	}

	p, v := state.Position(), state.Velocity()
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %16s %16s %16s %16s", "", "X", "Y", "Z", "|·|")))
	b.WriteString("\n")
	b.WriteString(rowStyle.Render(fmt.Sprintf("%-10s %16.6f %16.6f %16.6f %16.6f", "r (km)", p[0], p[1], p[2], norm3(p))))
	b.WriteString("\n")
	b.WriteString(rowStyle.Render(fmt.Sprintf("%-10s %16.9f %16.9f %16.9f %16.9f", "v (km/s)", v[0], v[1], v[2], norm3(v))))
	b.WriteString("\n")
	return b.String()
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func formatStep(secs float64) string {
	switch {
	case secs >= 86400:
		return fmt.Sprintf("%gd", secs/86400)
	case secs >= 3600:
		return fmt.Sprintf("%gh", secs/3600)
	case secs >= 60:
		return fmt.Sprintf("%gm", secs/60)
	default:
		return fmt.Sprintf("%gs", secs)
	}
}
