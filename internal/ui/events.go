package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-ephem/internal/catalog"
)

var eventStyles = map[catalog.EventType]lipgloss.Style{
	catalog.EventLoaded:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	catalog.EventReloaded: lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")),
	catalog.EventFailed:   errorStyle,
	catalog.EventRemoved:  dimStyle,
}

// EventLogModel shows the catalog event log, newest first.
type EventLogModel struct {
	width  int
	height int
	offset int
	events []catalog.Event
}

// NewEventLogModel creates an empty event log.
func NewEventLogModel() EventLogModel {
	return EventLogModel{}
}

// SetSize updates the viewport size.
func (m EventLogModel) SetSize(width, height int) EventLogModel {
	m.width = width
	m.height = height
	return m
}

// UpdateData replaces the events, given oldest first.
func (m EventLogModel) UpdateData(events []catalog.Event) EventLogModel {
	m.events = events
	if m.offset > len(events)-1 {
		m.offset = max(len(events)-1, 0)
	}
	return m
}

// Update handles messages.
func (m EventLogModel) Update(msg tea.Msg) (EventLogModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up", "k":
			if m.offset > 0 {
				m.offset--
			}
		case "down", "j":
			if m.offset < len(m.events)-1 {
				m.offset++
			}
		}
	}
	return m, nil
}

// View renders the log.
func (m EventLogModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Catalog events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(dimStyle.Render("  No events yet"))
		b.WriteString("\n")
		return b.String()
	}

	rows := m.height - 3
	if rows <= 0 {
		rows = len(m.events)
	}

	shown := 0
	for i := len(m.events) - 1 - m.offset; i >= 0 && shown < rows; i-- {
		ev := m.events[i]
		style, ok := eventStyles[ev.Type]
		if !ok {
			style = rowStyle
		}

		detail := ev.Source
		switch {
		case ev.Error != "":
			detail += ": " + ev.Error
		case ev.Segments > 0:
			detail += fmt.Sprintf(" (%d segments)", ev.Segments)
		}

		fmt.Fprintf(&b, "  %s %s %s\n",
			dimStyle.Render(ev.Timestamp.Format("15:04:05")),
			style.Render(fmt.Sprintf("%-9s", ev.Type)),
			detail)
		shown++
	}
	return b.String()
}
