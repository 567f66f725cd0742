package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/night/scheduler"
)

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type turnLabel struct {
	text  string
	style lipgloss.Style
}

// queueView renders the night's queue with the current turn highlighted,
// plus the variants the scheduler left out.
type queueView struct {
	state game.State
	plan  scheduler.Plan
}

func (v queueView) View() string {
	s := v.state
	switch s.Phase {
	case game.PhaseIdle:
		return detailTextStyle.Render(fmt.Sprintf("Night %d has not started. Press n to begin.", s.Night))
	case game.PhaseDay:
		return v.renderDay()
	case game.PhaseOver:
		reason := s.EndReason
		if reason == "" {
			reason = "no reason given"
		}
		return labelStyleBlocked.Render("Game over · " + reason)
	}
	lines := []string{fmt.Sprintf("Night %d · %d turn(s)", s.Night, len(s.Queue))}
	for i, turn := range s.Queue {
		lines = append(lines, v.renderTurnLine(i, turn))
		if i == s.Index {
			lines = append(lines, v.renderTurnDetails(turn))
		}
	}
	if len(s.Queue) == 0 {
		lines = append(lines, detailTextStyle.Render("  nobody wakes tonight"))
	}
	if skipped := v.renderSkipped(); skipped != "" {
		lines = append(lines, "", skipped)
	}
	return strings.Join(lines, "\n")
}

func (v queueView) renderTurnLine(idx int, turn game.NightTurn) string {
	indicator := " "
	if idx == v.state.Index {
		indicator = ">"
	}
	labels := v.turnLabels(idx, turn)
	rendered := make([]string, 0, len(labels))
	for _, label := range labels {
		rendered = append(rendered, label.style.Render(label.text))
	}
	return fmt.Sprintf("%s %s · [%s]", indicator, friendlyLabel(string(turn.Variant)), strings.Join(rendered, ", "))
}

func (v queueView) turnLabels(idx int, turn game.NightTurn) []turnLabel {
	var labels []turnLabel
	switch {
	case turn.Completed:
		labels = append(labels, turnLabel{"Done", labelStyleReady})
	case idx == v.state.Index:
		labels = append(labels, turnLabel{"Awake", labelStyleRunning})
	default:
		labels = append(labels, turnLabel{"Waiting", labelStyleDefault})
	}
	if turn.TeamWide {
		labels = append(labels, turnLabel{"Team", labelStyleGate})
	}
	return labels
}

func (v queueView) renderTurnDetails(turn game.NightTurn) string {
	var details []string
	names := make([]string, 0, len(turn.Players))
	for _, id := range turn.Players {
		names = append(names, playerLabel(v.state, id))
	}
	details = append(details, "Wakes: "+strings.Join(names, ", "))
	if scratch := v.state.ScratchFor(turn.InstanceID()); len(scratch) > 0 {
		details = append(details, "Remembers: "+formatScratch(scratch))
	}
	body := "  " + strings.Join(details, "\n  ")
	return detailTextStyle.Render(body)
}

func (v queueView) renderSkipped() string {
	if len(v.plan.Skipped) == 0 || v.plan.Night != v.state.Night {
		return ""
	}
	keys := make([]string, 0, len(v.plan.Skipped))
	for key := range v.plan.Skipped {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s (%s)", key, friendlyLabel(string(v.plan.Skipped[key].Reason))))
	}
	return labelStyleSkipped.Render("Asleep: " + strings.Join(parts, ", "))
}

func (v queueView) renderDay() string {
	s := v.state
	lines := []string{fmt.Sprintf("Day %d", s.Night-1)}
	res := s.LastResolution
	if res == nil {
		return strings.Join(lines, "\n")
	}
	if len(res.Deaths) == 0 {
		lines = append(lines, labelStyleReady.Render("Nobody died"))
	}
	for _, death := range res.Deaths {
		lines = append(lines, labelStyleBlocked.Render(fmt.Sprintf("✝ %s (%s)", playerLabel(s, death.Player), death.Cause)))
	}
	for _, id := range res.Saved {
		lines = append(lines, labelStyleReady.Render("Saved: "+playerLabel(s, id)))
	}
	for _, note := range res.Notes {
		to := make([]string, 0, len(note.Source))
		for _, id := range note.Source {
			to = append(to, playerLabel(s, id))
		}
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("Tell %s: %s", strings.Join(to, ", "), note.Text)))
	}
	for _, c := range res.Conflicts {
		lines = append(lines, labelStyleGate.Render(fmt.Sprintf("⚠ %s: %s", playerLabel(s, c.Player), c.Message)))
	}
	return strings.Join(lines, "\n")
}

func renderDraft(draft []game.Effect, s game.State) string {
	if len(draft) == 0 {
		return detailTextStyle.Render("Effects: none (enter records an empty action)")
	}
	parts := make([]string, 0, len(draft))
	for _, e := range draft {
		parts = append(parts, fmt.Sprintf("%s %s", e.Kind, playerLabel(s, e.Target)))
	}
	return labelStyleRunning.Render("Effects: " + strings.Join(parts, ", "))
}

func playerLabel(s game.State, id game.PlayerID) string {
	if p, ok := s.Player(id); ok && p.Name != "" {
		return p.Name
	}
	return string(id)
}

func formatScratch(rs game.RoleState) string {
	keys := make([]string, 0, len(rs))
	for key := range rs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+rs[key])
	}
	return strings.Join(parts, " ")
}

func friendlyLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer("_", " ", "-", " ")
	words := strings.Fields(replacer.Replace(strings.ToLower(value)))
	if len(words) == 0 {
		return ""
	}
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
