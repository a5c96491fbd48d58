// Package ui provides the terminal transport for a narration.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/synfinner/auraspeech-tts/internal/control"
	"github.com/synfinner/auraspeech-tts/internal/narration"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "bookmarked!"
	ellipsis             = "…"
	headerHeight         = 3
	statusBarHeight      = 1
	defaultWidth         = 80
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color("#5A56E0")).
			Bold(true).
			Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarSpeedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}).
				Background(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFDF5")).
				Background(lipgloss.Color("#D70000")).
				Render
)

// Controller executes transport commands.
type Controller interface {
	Handle(ctx context.Context, cmd control.Command) control.Response
}

// SessionFunc returns the live session, for its text.
type SessionFunc func(ctx context.Context) (*narration.Session, error)

type (
	stateMsg        narration.State
	statesClosedMsg struct{}
	sessionMsg      struct{ session *narration.Session }

	responseMsg struct {
		action control.Action
		resp   control.Response
	}

	statusMessageTimeoutMsg struct{ id int }
)

// NewProgram returns a new Tea program driving ctrl. states delivers
// coordinator snapshots; the program quits when it is closed.
func NewProgram(ctx context.Context, cfg Config, ctrl Controller, sessions SessionFunc, states <-chan narration.State) *tea.Program {
	log.Debug("Starting ui", "alt_screen", cfg.AltScreen, "show_text", cfg.ShowText)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.InputTTY {
		opts = append(opts, tea.WithInputTTY())
	}
	return tea.NewProgram(newModel(ctx, cfg, ctrl, sessions, states), opts...)
}

type model struct {
	ctx      context.Context
	cfg      Config
	ctrl     Controller
	sessions SessionFunc
	states   <-chan narration.State

	state      narration.State
	session    *narration.Session
	shownChunk int
	chapter    string // looked up once Start succeeds

	keys     keyMap
	help     help.Model
	progress progress.Model
	spinner  spinner.Model
	viewport viewport.Model

	width  int
	height int

	statusMessage string
	statusIsError bool
	statusID      int
}

func newModel(ctx context.Context, cfg Config, ctrl Controller, sessions SessionFunc, states <-chan narration.State) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(blue)

	m := model{
		ctx:        ctx,
		cfg:        cfg,
		ctrl:       ctrl,
		sessions:   sessions,
		states:     states,
		state:      narration.State{CurrentIndex: -1, PendingIndex: -1, Phase: narration.PhaseIdle},
		shownChunk: -1,
		chapter:    cfg.Chapter,
		keys:       defaultKeys,
		help:       help.New(),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spinner:    sp,
		viewport:   viewport.New(defaultWidth, 10),
		width:      defaultWidth,
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForState(m.states)}
	if m.cfg.Start != "" {
		cmds = append(cmds, m.send(control.Command{Action: m.cfg.Start}))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.layout()
			return m, nil
		}
		if cmd, ok := m.commandFor(msg); ok {
			return m, m.send(cmd)
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshText(true)
		return m, nil

	case stateMsg:
		cmd := m.applyState(narration.State(msg))
		return m, tea.Batch(cmd, waitForState(m.states))

	case statesClosedMsg:
		log.Debug("Narration loop closed, leaving ui")
		return m, tea.Quit

	case sessionMsg:
		if msg.session != nil && msg.session.ID == m.state.SessionID {
			m.session = msg.session
			m.refreshText(true)
		}
		return m, nil

	case responseMsg:
		cmd := m.applyState(msg.resp.State)
		if !msg.resp.OK {
			return m, tea.Batch(cmd, m.showStatus(msg.resp.Error, true))
		}
		if msg.action == m.cfg.Start && m.chapter != "" {
			return m, tea.Batch(cmd, m.skipToChapter(msg.resp.State))
		}
		if note := responseNote(msg.action, msg.resp); note != "" {
			return m, tea.Batch(cmd, m.showStatus(note, false))
		}
		return m, cmd

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
			m.statusIsError = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) commandFor(msg tea.KeyMsg) (control.Command, bool) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Toggle):
		return control.Command{Action: control.TogglePause}, true
	case key.Matches(msg, k.Next):
		return control.Command{Action: control.Next}, true
	case key.Matches(msg, k.Previous):
		return control.Command{Action: control.Previous}, true
	case key.Matches(msg, k.Forward):
		return control.Command{Action: control.SeekRelative, Offset: seekStep}, true
	case key.Matches(msg, k.Back):
		return control.Command{Action: control.SeekRelative, Offset: -seekStep}, true
	case key.Matches(msg, k.NextChapter):
		return control.Command{Action: control.SkipToChapter, Chapter: m.state.ChapterIndex + 1}, true
	case key.Matches(msg, k.PrevChapter):
		return control.Command{Action: control.SkipToChapter, Chapter: m.state.ChapterIndex - 1}, true
	case key.Matches(msg, k.Faster):
		return control.Command{Action: control.NudgeSpeed, Steps: 1}, true
	case key.Matches(msg, k.Slower):
		return control.Command{Action: control.NudgeSpeed, Steps: -1}, true
	case key.Matches(msg, k.Mark):
		return control.Command{Action: control.SaveBookmark}, true
	case key.Matches(msg, k.Restore):
		return control.Command{Action: control.ResumeBookmark}, true
	case key.Matches(msg, k.Stop):
		return control.Command{Action: control.Stop}, true
	case key.Matches(msg, k.Article):
		return control.Command{Action: control.StartArticle}, true
	case key.Matches(msg, k.Selection):
		return control.Command{Action: control.StartSelection}, true
	}
	return control.Command{}, false
}

func (m model) send(cmd control.Command) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return responseMsg{action: cmd.Action, resp: ctrl.Handle(ctx, cmd)}
	}
}

// skipToChapter consumes the chapter query and skips to its best match.
func (m *model) skipToChapter(s narration.State) tea.Cmd {
	query := m.chapter
	m.chapter = ""
	index, err := narration.FindChapter(s.Chapters, query)
	if err != nil {
		return m.showStatus(err.Error(), true)
	}
	return m.send(control.Command{Action: control.SkipToChapter, Chapter: index})
}

func waitForState(states <-chan narration.State) tea.Cmd {
	if states == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-states
		if !ok {
			return statesClosedMsg{}
		}
		return stateMsg(s)
	}
}

func (m model) fetchSession() tea.Cmd {
	if m.sessions == nil {
		return nil
	}
	ctx, sessions := m.ctx, m.sessions
	return func() tea.Msg {
		s, err := sessions(ctx)
		if err != nil {
			log.Debug("No session to show", "error", err)
			return sessionMsg{}
		}
		return sessionMsg{session: s}
	}
}

// applyState records s, fetching the session text when a new session
// started.
func (m *model) applyState(s narration.State) tea.Cmd {
	prev := m.state
	m.state = s

	var cmd tea.Cmd
	if s.SessionID != prev.SessionID {
		m.session = nil
		if s.Active() {
			cmd = m.fetchSession()
		}
	}
	if s.Error != "" && s.Error != prev.Error {
		cmd = tea.Batch(cmd, m.showStatus(s.Error, true))
	}
	m.refreshText(false)
	return cmd
}

func (m *model) showStatus(text string, isError bool) tea.Cmd {
	m.statusID++
	m.statusMessage = text
	m.statusIsError = isError
	id := m.statusID
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{id: id}
	})
}

func responseNote(action control.Action, resp control.Response) string {
	switch action {
	case control.SaveBookmark:
		if b := resp.Bookmark; b != nil {
			return fmt.Sprintf("Bookmarked chunk %d at %s", b.ChunkIndex+1, narration.FormatClock(b.Position()))
		}
	case control.ResumeBookmark:
		if b := resp.Bookmark; b != nil {
			return fmt.Sprintf("Resumed at chunk %d", b.ChunkIndex+1)
		}
	case control.NudgeSpeed:
		return fmt.Sprintf("Speed %.2fx", resp.Speed)
	case control.SeekRelative:
		if s := resp.Seek; s != nil && s.HitStart {
			return "Start of chunk"
		} else if s != nil && s.HitEnd {
			return "End of chunk"
		}
	}
	return ""
}

func (m *model) layout() {
	helpHeight := lipgloss.Height(m.help.View(m.keys))
	m.help.Width = m.width
	m.progress.Width = max(10, m.width/3)
	m.viewport.Width = m.width
	m.viewport.Height = max(1, m.height-headerHeight-statusBarHeight-helpHeight-1)
}

// refreshText re-renders the session text when the chunk on screen
// changed, or always when force is set.
func (m *model) refreshText(force bool) {
	if !m.cfg.ShowText {
		return
	}
	at := m.state.CurrentIndex
	if m.state.PendingIndex >= 0 {
		at = m.state.PendingIndex
	}
	if !force && at == m.shownChunk {
		return
	}
	if m.session == nil {
		m.viewport.SetContent("")
		m.shownChunk = -1
		return
	}
	m.shownChunk = at
	m.viewport.SetContent(renderChunks(m.session, at, m.width-2))
	m.viewport.GotoTop()
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView() + "\n")
	b.WriteString(m.progressView() + "\n\n")
	if m.cfg.ShowText {
		b.WriteString(m.viewport.View() + "\n")
	}
	m.statusBarView(&b)
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m model) headerView() string {
	icon := lipgloss.NewStyle().Foreground(phaseColor(m.state)).Render(phaseIcon(m.state))
	if busy(m.state) && m.state.Error == "" {
		icon = m.spinner.View()
	}

	title := m.state.Title
	if title == "" {
		title = m.cfg.Title
	}
	if title == "" {
		title = "AuraSpeech"
	}
	if ch := chapterLine(m.state); ch != "" && ch != title {
		title += " · " + ch
	}
	avail := max(0, m.width-ansi.PrintableRuneWidth(icon)-1)
	return icon + " " + titleStyle.Render(runewidth.Truncate(title, avail, ellipsis))
}

func (m model) progressView() string {
	if !m.state.Active() {
		return statusBarNoteStyle(" Press a to read the document or v to read the clipboard ")
	}
	return m.progress.ViewAs(progressPercent(m.state)) + "  " + positionLine(m.state)
}

func (m model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" AuraSpeech ")
	speed := statusBarSpeedStyle(fmt.Sprintf(" %.2fx ", m.state.Speed))
	voice := statusBarSpeedStyle(" " + m.state.Voice + " ")

	style := statusBarNoteStyle
	note := phaseLabel(m.state)
	switch {
	case m.statusMessage != "" && m.statusIsError:
		note, style = m.statusMessage, statusBarErrorStyle
	case m.statusMessage != "":
		note, style = m.statusMessage, statusBarMessageStyle
	case m.state.Error != "":
		note, style = m.state.Error, statusBarErrorStyle
	}

	fixed := ansi.PrintableRuneWidth(logo) + ansi.PrintableRuneWidth(speed) + ansi.PrintableRuneWidth(voice)
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, m.width-fixed)), ellipsis) //nolint:gosec
	padding := max(0, m.width-fixed-ansi.PrintableRuneWidth(note))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		style(note),
		style(strings.Repeat(" ", padding)),
		speed,
		voice,
	)
}
