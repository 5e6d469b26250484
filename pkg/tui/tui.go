// Package tui provides a terminal player for smfplay
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/smfplay/pkg/player"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	flagStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

const (
	refreshInterval = 100 * time.Millisecond
	tempoStep       = 5
)

// State represents the current TUI state
type State int

const (
	StateFilePicker State = iota
	StateLoading
	StatePlaying
)

// Model represents the TUI model
type Model struct {
	state      State
	session    *player.Session
	filePicker filepicker.Model
	spinner    spinner.Model
	status     player.Status
	loading    string
	err        error
	width      int
	height     int
}

type refreshMsg time.Time

// loadDoneMsg carries the result of loading a picked file
type loadDoneMsg struct {
	file string
	err  error
}

// New creates a TUI model controlling session, browsing dir
func New(session *player.Session, dir string) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi"}
	fp.CurrentDirectory = dir
	if dir == "" {
		fp.CurrentDirectory, _ = os.Getwd()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		state:      StateFilePicker,
		session:    session,
		filePicker: fp,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.filePicker.Init(), m.spinner.Tick, refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) load(path string) tea.Cmd {
	return func() tea.Msg {
		return loadDoneMsg{file: path, err: m.session.Load(path)}
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.Height = msg.Height - 10
		return m, nil

	case refreshMsg:
		m.status = m.session.Status()
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadDoneMsg:
		m.err = msg.err
		m.loading = ""
		m.state = StateFilePicker
		if msg.err == nil {
			m.state = StatePlaying
		}
		m.status = m.session.Status()
		return m, nil
	}

	if m.state == StateLoading {
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "ctrl+c" {
			m.session.Close()
			return m, tea.Quit
		}
		return m, nil
	}

	if m.state == StatePlaying {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			return m.updatePlaying(keyMsg)
		}
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "q", "ctrl+c":
			m.session.Close()
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)
	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.state = StateLoading
		m.loading = path
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.load(path))
	}
	return m, cmd
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch msg.String() {
	case " ":
		err = m.session.Pause(!m.status.Paused)
	case "r":
		err = m.session.Restart()
	case "l":
		m.session.SetLooping(!m.status.Looping)
	case "+", "=":
		err = m.session.AdjustTempo(tempoStep)
	case "-":
		err = m.session.AdjustTempo(-tempoStep)
	case "esc":
		m.session.Close()
		m.state = StateFilePicker
	case "q", "ctrl+c":
		m.session.Close()
		return m, tea.Quit
	}
	m.err = err
	m.status = m.session.Status()
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateLoading:
		s.WriteString(m.viewLoading())
	case StatePlaying:
		s.WriteString(m.viewPlaying())
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	}
	return s.String()
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: play • q: quit"))

	return s.String()
}

func (m Model) viewLoading() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" LOADING "))
	s.WriteString("\n\n")
	s.WriteString(m.spinner.View())
	s.WriteString(" ")
	s.WriteString(valueStyle.Render(filepath.Base(m.loading)))
	s.WriteString("\n")

	return s.String()
}

func (m Model) viewPlaying() string {
	st := m.status
	var s strings.Builder

	title := " PLAYING "
	if st.EndOfFile {
		title = " FINISHED "
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label))
		s.WriteString(valueStyle.Render(value))
		s.WriteString("\n")
	}
	row("File", filepath.Base(st.File))
	row("Tempo", fmt.Sprintf("%d%+d bpm", st.Tempo, st.TempoAdjust))
	row("Time sig", st.TimeSignature)
	row("Tracks", fmt.Sprintf("%d", st.Tracks))
	row("Ticks", fmt.Sprintf("%d", st.Ticks))

	var flags []string
	if st.Playing && !st.Paused {
		flags = append(flags, m.spinner.View()+" playing")
	}
	if st.Paused {
		flags = append(flags, "paused")
	}
	if st.Looping {
		flags = append(flags, "loop")
	}
	s.WriteString(flagStyle.Render(strings.Join(flags, "  ")))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("space: pause • r: restart • l: loop • +/-: tempo • esc: back • q: quit"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____  __  __ _____ ____  _        _ __   __
  / ___||  \/  |  ___|  _ \| |      / \\ \ / /
  \___ \| |\/| | |_  | |_) | |     / _ \\ V /
   ___) | |  | |  _| |  __/| |___ / ___ \| |
  |____/|_|  |_|_|   |_|   |_____/_/   \_\_|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(session *player.Session, dir string) error {
	p := tea.NewProgram(New(session, dir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
