// cmd/night-plan/main.go
//
// night-plan prints the wake-up queue a seating would produce, night by night,
// without running a game. Moderators use it to check a custom catalog before
// the table sits down.
//
//	night-plan -players "Ana=werewolf,Bob=seer,Chloe=villager" -nights 3
//	night-plan -roles ./roles -players "..." -dead Bob

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/night/scheduler"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
)

func main() {
	catalogPath := flag.String("catalog", "", "catalog YAML replacing the built-in roles")
	rolesDir := flag.String("roles", "", "directory of extra role YAML files")
	roster := flag.String("players", "", "seating: name=variant,name=variant,...")
	nights := flag.Int("nights", 4, "number of nights to plan")
	dead := flag.String("dead", "", "comma-separated names already dead before night 1")
	flag.Parse()

	if err := run(os.Stdout, *catalogPath, *rolesDir, *roster, *dead, *nights); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, catalogPath, rolesDir, roster, dead string, nights int) error {
	if nights < 1 {
		return fmt.Errorf("-nights must be at least 1")
	}
	catalog, err := roles.LoadCatalog(catalogPath, rolesDir)
	if err != nil {
		return err
	}
	registry, err := players.ParseRoster(roster)
	if err != nil {
		return err
	}
	for _, name := range strings.Split(dead, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if err := registry.MarkDead(players.SlugID(name), 1, "before the game"); err != nil {
			return err
		}
	}

	state := game.NewState("night-plan", registry.Players())
	for night := 1; night <= nights; night++ {
		state.Night = night
		plan, err := scheduler.BuildQueue(night, state, state.AlivePlayers(), catalog)
		if err != nil {
			return err
		}
		printPlan(w, state, plan)
	}
	return nil
}

func printPlan(w io.Writer, state game.State, plan scheduler.Plan) {
	fmt.Fprintf(w, "Night %d\n", plan.Night)
	if len(plan.Turns) == 0 {
		fmt.Fprintln(w, "  nobody wakes")
	}
	for i, turn := range plan.Turns {
		names := make([]string, 0, len(turn.Players))
		for _, id := range turn.Players {
			if p, ok := state.Player(id); ok && p.Name != "" {
				names = append(names, p.Name)
				continue
			}
			names = append(names, string(id))
		}
		team := ""
		if turn.TeamWide {
			team = " (team)"
		}
		fmt.Fprintf(w, "  %d. %s%s: %s\n", i+1, turn.Variant, team, strings.Join(names, ", "))
	}
	if len(plan.Skipped) > 0 {
		keys := make([]string, 0, len(plan.Skipped))
		for key := range plan.Skipped {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  - %s asleep: %s\n", key, plan.Skipped[key].Reason)
		}
	}
	fmt.Fprintln(w)
}
