// Package ui provides the terminal ephemeris browser using Bubble Tea.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-ephem/internal/catalog"
	"github.com/litescript/ls-ephem/internal/oem"
	"github.com/litescript/ls-ephem/internal/version"
)

// ViewMode represents the current UI view.
type ViewMode int

const (
	ViewSegments ViewMode = iota
	ViewState
	ViewEvents
	viewCount
)

// Msg types for Bubble Tea
type (
	// TickMsg triggers a catalog refresh.
	TickMsg time.Time

	// AnimTickMsg drives the footer spinner.
	AnimTickMsg time.Time

	// ReloadedMsg reports the result of a manual reload.
	ReloadedMsg struct {
		Source string
		Err    error
	}
)

// Styles shared by the views.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7B2CBF"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E84A27"))
)

// Model is the root Bubble Tea model.
type Model struct {
	// Dependencies
	catalog *catalog.Catalog
	source  string

	// UI state
	viewMode  ViewMode
	width     int
	height    int
	ready     bool
	statusMsg string
	animTick  int

	// Sub-models
	segments SegmentListModel
	states   StateViewModel
	events   EventLogModel

	msg *oem.Message
}

// New creates the browser for source, which must already be loaded into cat.
// step is the initial cursor step in seconds.
func New(cat *catalog.Catalog, source string, step float64) Model {
	m := Model{
		catalog:  cat,
		source:   source,
		viewMode: ViewSegments,
		segments: NewSegmentListModel(),
		states:   NewStateViewModel(step),
		events:   NewEventLogModel(),
	}
	m.refresh()
	return m
}

// refresh pulls the current message and event log from the catalog.
func (m *Model) refresh() {
	m.events = m.events.UpdateData(m.catalog.Snapshot().Events)

	msg, ok := m.catalog.Message(m.source)
	if !ok || msg == m.msg {
		return
	}
	m.msg = msg
	m.segments = m.segments.UpdateData(msg)
	m.states = m.states.UpdateData(msg)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), animTickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "1":
			m.viewMode = ViewSegments
		case "2":
			m.viewMode = ViewState
		case "3":
			m.viewMode = ViewEvents

		case "tab":
			m.viewMode = (m.viewMode + 1) % viewCount

		case "r":
			m.statusMsg = "Reloading " + m.source + "..."
			cmds = append(cmds, reloadCmd(m.catalog, m.source))

		case "enter":
			if m.viewMode == ViewSegments {
				if seg, ok := m.segments.Selected(); ok {
					start, _ := seg.Coverage()
					m.states = m.states.JumpTo(start)
					m.viewMode = ViewState
				}
				break
			}
			cmds = append(cmds, m.updateActiveView(msg))

		default:
			cmds = append(cmds, m.updateActiveView(msg))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Header ~4 lines, footer ~2 lines
		contentHeight := msg.Height - 6
		m.segments = m.segments.SetSize(msg.Width, contentHeight)
		m.states = m.states.SetSize(msg.Width, contentHeight)
		m.events = m.events.SetSize(msg.Width, contentHeight)

	case TickMsg:
		cmds = append(cmds, tickCmd())
		m.refresh()

	case AnimTickMsg:
		cmds = append(cmds, animTickCmd())
		m.animTick++

	case ReloadedMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Reload failed: %v", msg.Err)
		} else {
			m.statusMsg = "Reloaded " + msg.Source
		}
		m.refresh()

	default:
		cmds = append(cmds, m.updateActiveView(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateActiveView(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.viewMode {
	case ViewSegments:
		m.segments, cmd = m.segments.Update(msg)
	case ViewState:
		m.states, cmd = m.states.Update(msg)
	case ViewEvents:
		m.events, cmd = m.events.Update(msg)
	}
	return cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var content string
	switch m.viewMode {
	case ViewSegments:
		content = m.segments.View()
	case ViewState:
		content = m.states.View()
	case ViewEvents:
		content = m.events.View()
	}

	return m.renderHeader() + "\n" + content + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(titleStyle.Render("ls-ephem"))
	b.WriteString(dimStyle.Render(fmt.Sprintf(" v%s · %s", version.Version, m.source)))
	if m.msg != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" · OEM %s · %s/%s",
			m.msg.Version(), m.msg.CentralBody(), m.msg.ReferenceFrame())))
	}
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"[1] Segments", "[2] State", "[3] Events"}
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")).Bold(true)

	var parts []string
	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			parts = append(parts, activeStyle.Render("▶ "+tab))
		} else {
			parts = append(parts, dimStyle.Render("  "+tab))
		}
	}
	return "  " + strings.Join(parts, "  ")
}

func (m Model) renderFooter() string {
	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinner := spinnerFrames[m.animTick%len(spinnerFrames)]

	var status string
	entry, _ := m.catalog.Get(m.source)
	switch {
	case entry.LastError != nil:
		status = errorStyle.Render("ERROR: " + entry.LastError.Error())
	case !entry.LoadedAt.IsZero():
		status = accentStyle.Render(spinner) + dimStyle.Render(fmt.Sprintf(" loaded %s (%s)",
			entry.LoadedAt.Format("15:04:05"), entry.LoadDuration.Round(time.Microsecond)))
	default:
		status = accentStyle.Render(spinner) + dimStyle.Render(" not loaded")
	}

	var help string
	switch m.viewMode {
	case ViewState:
		help = "←/→: step | +/-: step size | home/end: span | n/p: segment"
	case ViewEvents:
		help = "↑↓: scroll"
	default:
		help = "↑↓: navigate | enter: inspect | r: reload | tab: switch view"
	}

	footer := "  " + status + "  " + dimStyle.Render("|") + "  " + dimStyle.Render(help)
	if m.statusMsg != "" {
		footer += "\n  " + dimStyle.Render(m.statusMsg)
	}
	return footer
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func animTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}

func reloadCmd(cat *catalog.Catalog, source string) tea.Cmd {
	return func() tea.Msg {
		_, err := cat.Load(source)
		return ReloadedMsg{Source: source, Err: err}
	}
}
