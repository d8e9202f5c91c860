// Package tui is the interactive match viewer: both rosters side by side, the
// kill timeline below, and one-key copy of each player's export.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ZehenForever/psreplay-stats/internal/model"
	"github.com/ZehenForever/psreplay-stats/internal/report"
)

// CopiedFor is how long the "Copied!" confirmation stays up.
const CopiedFor = 2 * time.Second

type sessionState int

const (
	stateLoading sessionState = iota
	stateReady
	stateError
)

type Options struct {
	Title string
	// Load produces the match to show. Used when no Result is given.
	Load   func(ctx context.Context) (*model.MatchResult, error)
	Result *model.MatchResult
	// Updates delivers fresh snapshots of a match that is still being parsed.
	Updates <-chan *model.MatchResult
	// Copy writes text to the clipboard; defaults to the system clipboard.
	Copy func(text string) error
}

type viewer struct {
	state    sessionState
	opts     Options
	res      *model.MatchResult
	err      error
	viewport viewport.Model
	width    int
	height   int

	copied  map[string]int // side -> seq of the confirmation on screen
	copySeq int
	copyErr error
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5F5F87")).
			Padding(0, 1).
			MarginRight(1)

	headStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Bold(true).
			Underline(true)

	faintedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")).
			Strikethrough(true)

	copiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D787")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)

func newViewer(opts Options) viewer {
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	v := viewer{
		state:    stateLoading,
		opts:     opts,
		viewport: viewport.New(80, 10),
		copied:   make(map[string]int),
	}
	if opts.Result != nil {
		v.res = opts.Result
		v.state = stateReady
		v.viewport.SetContent(v.renderTimeline())
	}
	return v
}

type resultMsg struct {
	res *model.MatchResult
}

type updatesClosedMsg struct{}

type errMsg struct {
	err error
}

type copyResultMsg struct {
	side string
	err  error
}

type clearCopiedMsg struct {
	side string
	seq  int
}

func (v viewer) Init() tea.Cmd {
	var load, wait tea.Cmd
	if v.res == nil && v.opts.Load != nil {
		load = v.load()
	}
	if v.opts.Updates != nil {
		wait = waitForUpdate(v.opts.Updates)
	}
	switch {
	case load != nil && wait != nil:
		return tea.Batch(load, wait)
	case load != nil:
		return load
	default:
		return wait
	}
}

func (v viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return v, tea.Quit
		case "1":
			return v, v.copyExport(model.SideP1)
		case "2":
			return v, v.copyExport(model.SideP2)
		}

	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.viewport.Width = msg.Width
		v.viewport.Height = max(msg.Height-v.topHeight()-3, 3)
		v.viewport.SetContent(v.renderTimeline())

	case resultMsg:
		v.res = msg.res
		v.state = stateReady
		v.viewport.SetContent(v.renderTimeline())
		v.viewport.GotoBottom()
		if v.opts.Updates != nil {
			return v, waitForUpdate(v.opts.Updates)
		}
		return v, nil

	case updatesClosedMsg:
		v.opts.Updates = nil
		return v, nil

	case errMsg:
		v.err = msg.err
		v.state = stateError
		return v, nil

	case copyResultMsg:
		if msg.err != nil {
			v.copyErr = msg.err
			return v, nil
		}
		v.copyErr = nil
		v.copySeq++
		seq := v.copySeq
		v.copied[msg.side] = seq
		side := msg.side
		return v, tea.Tick(CopiedFor, func(time.Time) tea.Msg {
			return clearCopiedMsg{side: side, seq: seq}
		})

	case clearCopiedMsg:
		// a later copy of the same side restarts the timer
		if v.copied[msg.side] == msg.seq {
			delete(v.copied, msg.side)
		}
		return v, nil
	}

	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return v, cmd
}

func (v viewer) View() string {
	var s string

	switch v.state {
	case stateLoading:
		s = "\n  Retrieving replay... please wait.\n"

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", v.err)

	case stateReady:
		help := "1/2: copy player export  ↑/↓: scroll  q: quit"
		if v.copyErr != nil {
			help = errorStyle.Render("copy failed: "+v.copyErr.Error()) + "  " + help
		}
		s = lipgloss.JoinVertical(lipgloss.Left,
			v.renderTop(),
			headStyle.Render("Kill Timeline"),
			v.viewport.View(),
			helpStyle.Render(help),
		)
	}

	return s + "\n"
}

func (v viewer) topHeight() int {
	if v.res == nil {
		return 0
	}
	return lipgloss.Height(v.renderTop())
}

func (v viewer) renderTop() string {
	var header []string
	if v.opts.Title != "" {
		header = append(header, titleStyle.Render(v.opts.Title))
	}
	if v.res.Format != "" {
		header = append(header, "Format: "+v.res.Format)
	}
	if v.res.Winner != "" {
		header = append(header, "Winner: "+v.res.Winner)
	}

	panels := make([]string, 0, 2)
	for i, side := range v.res.Sides() {
		panels = append(panels, v.renderPlayer(i+1, side))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(header, "  "),
		lipgloss.JoinHorizontal(lipgloss.Top, panels...),
	)
}

func (v viewer) renderPlayer(key int, side string) string {
	p := v.res.Players[side]

	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("%s (%s)", v.res.PlayerName(side), side)))
	b.WriteString("\n")

	width := len("Pokemon")
	for _, species := range p.Team {
		width = max(width, lipgloss.Width(species))
	}
	fmt.Fprintf(&b, "%-*s  %5s  %s\n", width, "Pokemon", "Kills", "Status")
	for _, species := range p.Team {
		st := p.Mons[species]
		kills := 0
		if st != nil {
			kills = st.Kills
		}
		line := fmt.Sprintf("%-*s  %5d  %s", width, species, kills, report.Status(st))
		if st != nil && st.Died {
			line = faintedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if _, ok := v.copied[side]; ok {
		b.WriteString(copiedStyle.Render("Copied!"))
	} else {
		b.WriteString(helpStyle.Render(fmt.Sprintf("[%d] copy export", key)))
	}
	return panelStyle.Render(b.String())
}

func (v viewer) renderTimeline() string {
	if v.res == nil {
		return ""
	}
	if len(v.res.KillLog) == 0 {
		return helpStyle.Render("No faints yet.")
	}
	var b strings.Builder
	if err := report.WriteKillLog(&b, v.res); err != nil {
		return err.Error()
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v viewer) copyExport(side string) tea.Cmd {
	if v.state != stateReady || v.res == nil {
		return nil
	}
	p := v.res.Players[side]
	if p == nil {
		return nil
	}
	text := report.ExportTSV(p)
	copyFn := v.opts.Copy
	return func() tea.Msg {
		return copyResultMsg{side: side, err: copyFn(text)}
	}
}

func (v viewer) load() tea.Cmd {
	load := v.opts.Load
	return func() tea.Msg {
		res, err := load(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return resultMsg{res}
	}
}

func waitForUpdate(ch <-chan *model.MatchResult) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return resultMsg{res}
	}
}

func Run(opts Options) error {
	p := tea.NewProgram(newViewer(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
