package render

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/streambench/internal/scheduler"
)

// DefaultWindowBlocks is how many trailing render blocks the live view
// keeps on screen.
const DefaultWindowBlocks = 200

// ApplyMsg carries one scheduler apply into the live view. A Lagging apply
// only updates the status line; the text is redrawn by a later SettleMsg.
type ApplyMsg struct {
	Event   scheduler.ApplyEvent
	Stats   scheduler.Stats
	Pending bool
	Stale   bool
	Lagging bool
}

// SettleMsg carries the lagging view once it caught up.
type SettleMsg struct {
	Text string
}

// DoneMsg ends the stream. Err is nil for a clean completion.
type DoneMsg struct {
	Err     error
	Elapsed time.Duration
}

// Model is a full-screen live view. Each redraw renders a window of the
// trailing blocks of the displayed text into a scrolling viewport.
type Model struct {
	renderer *Renderer
	view     viewport.Model
	window   int

	title   string
	frame   string
	seq     int
	stats   scheduler.Stats
	pending bool
	stale   bool
	done    bool
	err     error
	elapsed time.Duration

	onQuit func()

	titleStyle  lipgloss.Style
	statusStyle lipgloss.Style
	errStyle    lipgloss.Style
}

// NewModel builds the live view. onQuit runs when the user quits, before
// the program exits.
func NewModel(r *Renderer, title string, onQuit func()) *Model {
	return &Model{
		renderer:    r,
		view:        viewport.New(r.Width(), 20),
		window:      DefaultWindowBlocks,
		title:       title,
		onQuit:      onQuit,
		titleStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// SetWindow sets how many trailing blocks are drawn; n <= 0 draws all.
func (m *Model) SetWindow(n int) {
	m.window = n
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = typed.Width
		m.view.Height = max(typed.Height-2, 1)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "esc", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
	case ApplyMsg:
		m.seq = typed.Event.Seq
		m.stats = typed.Stats
		m.pending = typed.Pending
		m.stale = typed.Stale
		if !typed.Lagging {
			m.redraw(typed.Event.Text)
		}
		return m, nil
	case SettleMsg:
		m.stale = false
		m.redraw(typed.Text)
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = typed.Err
		m.elapsed = typed.Elapsed
		return m, nil
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *Model) redraw(text string) {
	m.frame = m.renderer.Window(text, m.window)
	m.view.SetContent(m.frame)
	m.view.GotoBottom()
}

func (m *Model) View() string {
	header := m.titleStyle.Render(m.title)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.view.View(), m.status())
}

func (m *Model) status() string {
	if m.err != nil {
		return m.errStyle.Render("error: " + m.err.Error())
	}
	state := "streaming"
	if m.done {
		state = fmt.Sprintf("done in %s", m.elapsed.Round(time.Millisecond))
	}
	flags := ""
	if m.pending {
		flags += " pending"
	}
	if m.stale {
		flags += " stale"
	}
	return m.statusStyle.Render(fmt.Sprintf(
		"%s | tokens:%d applies:%d dropped:%d seq:%d%s | q: quit",
		state, m.stats.Tokens, m.stats.Applies, m.stats.Dropped, m.seq, flags,
	))
}
