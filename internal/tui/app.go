// internal/tui/app.go
//
// This is the moderator console for Loups-Garous.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the console state plus the orchestrator it drives
// 2. Update: keys become orchestrator calls
// 3. View: the snapshot rendered as panels
//
// The console never edits game state itself. Every key goes through the
// orchestrator and the view is rebuilt from its snapshot.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/logbook"
	"github.com/kingrea/loups-garous/internal/orchestrator"
	"github.com/kingrea/loups-garous/internal/storyteller"
)

const (
	eliminationCause = "village vote"
	moderatorEnd     = "ended by the moderator"
	logTailLines     = 8
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the journal tail below the board.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithStories feeds finished dawn narrations into the console.
func WithStories(stories <-chan storyteller.Story) AppOption {
	return func(a *App) {
		a.stories = stories
	}
}

// WithFeedURL advertises the websocket feed in the footer.
func WithFeedURL(url string) AppOption {
	return func(a *App) {
		a.feedURL = strings.TrimSpace(url)
	}
}

type storyMsg storyteller.Story

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	orch    *orchestrator.Orchestrator
	logbook *logbook.Logbook
	stories <-chan storyteller.Story
	feedURL string

	state     game.State
	players   list.Model
	draft     []game.Effect
	narration string
	statusMsg string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// playerItem implements list.Item for the players panel.
type playerItem struct {
	player game.Player
}

func (i playerItem) Title() string {
	if !i.player.Alive() {
		return "✝ " + i.player.Name
	}
	return i.player.Name
}

func (i playerItem) Description() string {
	variant := string(i.player.Variant)
	if variant == "" {
		variant = "no role"
	}
	return fmt.Sprintf("%s · %s", i.player.ID, friendlyLabel(variant))
}

func (i playerItem) FilterValue() string { return string(i.player.ID) }

// NewApp creates a console driving o.
func NewApp(o *orchestrator.Orchestrator, opts ...AppOption) *App {
	players := list.New(nil, list.NewDefaultDelegate(), 40, 20)
	players.Title = "Players"
	players.SetShowStatusBar(false)
	players.SetFilteringEnabled(false)
	players.SetShowHelp(false)

	app := &App{
		orch:    o,
		players: players,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.refresh()
	app.statusMsg = "Press n to begin the night"
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.waitForStory()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.players.SetSize(max(20, msg.Width/3), max(6, msg.Height-16))
		return a, nil

	case storyMsg:
		if msg.Err != nil {
			a.narration = fmt.Sprintf("(the storyteller is silent: %v)", msg.Err)
		} else {
			a.narration = msg.Text
		}
		return a, a.waitForStory()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			return a.endGame()
		case "n":
			a.apply("Night begins", a.orch.BeginNight)
			return a, nil
		case "enter":
			return a.completeTurn()
		case "k":
			a.addEffect(game.EffectKill)
			return a, nil
		case "p":
			a.addEffect(game.EffectProtect)
			return a, nil
		case "i":
			a.addEffect(game.EffectInform)
			return a, nil
		case "x":
			a.draft = nil
			a.statusMsg = "Effects cleared"
			return a, nil
		case "b":
			a.draft = nil
			a.apply("Back to the previous role", a.orch.GoToPreviousRole)
			return a, nil
		case "e":
			return a.eliminateSelected()
		case "up", "down":
			var cmd tea.Cmd
			a.players, cmd = a.players.Update(msg)
			return a, cmd
		}
	}
	return a, nil
}

func (a *App) completeTurn() (tea.Model, tea.Cmd) {
	// Address the turn on screen so a turn someone else already closed is
	// not recorded twice.
	turn, ok := a.state.CurrentTurn()
	payload := game.Payload{Effects: a.draft}
	if ok {
		payload.Night, payload.Turn = a.state.Night, turn.Index
	}
	if !a.apply("", func() (game.State, error) { return a.orch.CompleteCurrentAction(payload) }) {
		return a, nil
	}
	a.draft = nil
	switch {
	case a.state.Phase == game.PhaseDay:
		a.statusMsg = fmt.Sprintf("Dawn of day %d", a.state.Night-1)
	case ok:
		a.statusMsg = fmt.Sprintf("%s done", friendlyLabel(string(turn.Variant)))
	}
	return a, nil
}

func (a *App) eliminateSelected() (tea.Model, tea.Cmd) {
	selected, ok := a.selectedPlayer()
	if !ok {
		a.statusMsg = "No player selected"
		return a, nil
	}
	a.apply(fmt.Sprintf("%s was eliminated", selected.Name), func() (game.State, error) {
		return a.orch.EliminatePlayer(selected.ID, eliminationCause)
	})
	return a, nil
}

func (a *App) endGame() (tea.Model, tea.Cmd) {
	if a.state.Phase != game.PhaseOver {
		if _, err := a.orch.EndGame(moderatorEnd); err != nil {
			a.statusMsg = "⚠ " + err.Error()
			return a, nil
		}
	}
	a.refresh()
	return a, tea.Quit
}

func (a *App) addEffect(kind game.EffectKind) {
	if a.state.Phase != game.PhaseNight {
		a.statusMsg = "Effects can only be recorded at night"
		return
	}
	selected, ok := a.selectedPlayer()
	if !ok {
		a.statusMsg = "No player selected"
		return
	}
	a.draft = append(a.draft, game.Effect{Kind: kind, Target: selected.ID})
	a.statusMsg = fmt.Sprintf("Added %s on %s", kind, selected.Name)
}

// apply runs one orchestrator call and rebuilds the view from the snapshot.
func (a *App) apply(done string, call func() (game.State, error)) bool {
	if _, err := call(); err != nil {
		a.statusMsg = "⚠ " + err.Error()
		return false
	}
	a.refresh()
	if done != "" {
		a.statusMsg = done
	}
	return true
}

func (a *App) refresh() {
	a.state = a.orch.Snapshot()
	items := make([]list.Item, 0, len(a.state.Players))
	for _, p := range a.state.Players {
		items = append(items, playerItem{player: p})
	}
	a.players.SetItems(items)
}

func (a *App) selectedPlayer() (game.Player, bool) {
	item, ok := a.players.SelectedItem().(playerItem)
	if !ok {
		return game.Player{}, false
	}
	return item.player, true
}

func (a *App) waitForStory() tea.Cmd {
	if a.stories == nil {
		return nil
	}
	stories := a.stories
	return func() tea.Msg {
		story, ok := <-stories
		if !ok {
			return nil
		}
		return storyMsg(story)
	}
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	leftWidth := max(24, width/3)
	rightWidth := width - leftWidth - 4
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render(fmt.Sprintf("☾ LOUPS-GAROUS · %s", a.orch.GameID()))
	phase := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(a.phaseLine())

	leftBox := panelStyle(leftWidth).Render(a.players.View())
	right := lipgloss.JoinVertical(lipgloss.Left,
		queueView{state: a.state, plan: a.orch.LastPlan()}.View(),
		"",
		renderDraft(a.draft, a.state),
	)
	rightBox := panelStyle(max(24, rightWidth)).Render(right)
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)

	sections := []string{header, phase, body}
	if a.narration != "" {
		sections = append(sections, panelStyle(width-2).
			Foreground(lipgloss.Color("#E0C097")).
			Italic(true).
			Render(a.narration))
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.footer())
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) phaseLine() string {
	s := a.state
	line := fmt.Sprintf("Phase: %s", s.Phase.FriendlyName())
	switch s.Phase {
	case game.PhaseNight:
		line += fmt.Sprintf(" · night %d · turn %d/%d", s.Night, min(s.Index+1, len(s.Queue)), len(s.Queue))
	case game.PhaseDay:
		line += fmt.Sprintf(" · day %d", s.Night-1)
	}
	return fmt.Sprintf("%s · %d alive", line, len(s.AlivePlayers()))
}

func (a *App) footer() string {
	lines := []string{
		a.statusMsg,
		"n=night  ↑/↓=select  k=kill  p=protect  i=inform  x=clear  enter=done  b=back  e=eliminate  q=end",
	}
	if a.feedURL != "" {
		lines = append(lines, "feed: "+a.feedURL)
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width))
}
