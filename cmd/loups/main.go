// cmd/loups/main.go
//
// This is the entry point for the Loups-Garous moderator console.
// Run `loups` from the directory that should hold the game's .loups folder.
//
// Flow:
// 1. Load .loups/config.yaml (and .env), open logs and storage
// 2. Start a new game from -players, or reload one with -resume
// 3. Wire the observers (snapshots, journal, feed, storyteller)
// 4. Hand the orchestrator to the TUI

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/loups-garous/internal/config"
	"github.com/kingrea/loups-garous/internal/eventbridge"
	"github.com/kingrea/loups-garous/internal/logbook"
	"github.com/kingrea/loups-garous/internal/logging"
	"github.com/kingrea/loups-garous/internal/orchestrator"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
	"github.com/kingrea/loups-garous/internal/storage"
	"github.com/kingrea/loups-garous/internal/storyteller"
	"github.com/kingrea/loups-garous/internal/tui"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}
	projectDir := flag.String("project", cwd, "directory holding the .loups folder")
	roster := flag.String("players", "", "seating for a new game: name=variant,name=variant,...")
	resume := flag.String("resume", "", "id of a saved game to continue")
	list := flag.Bool("list", false, "list saved games and exit")
	flag.Parse()

	if err := run(*projectDir, *roster, *resume, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(projectDir, roster, resume string, listOnly bool) error {
	if err := config.InitDir(projectDir); err != nil {
		return fmt.Errorf("initializing .loups directory: %w", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return err
	}
	logger, err := logging.New(projectDir, cfg.Project.Logging.Debug)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Zap()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if listOnly {
		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	catalog, err := roles.LoadCatalog(cfg.Project.Catalog.Path, cfg.Project.Catalog.RolesDir)
	if err != nil {
		return err
	}
	book, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return err
	}

	settings := eventbridge.SettingsFromConfig(cfg)
	router := eventbridge.NewRouter(append(settings.RouterOptions(), eventbridge.RouterWithLogger(logger))...)
	server := eventbridge.NewServer(settings,
		eventbridge.WithRouter(router),
		eventbridge.WithLogger(logger),
	)
	feedEnabled := false
	if settings.Enabled {
		if err := server.Start(context.Background()); err != nil {
			log.Warn("feed server not started", zap.Error(err))
		} else {
			feedEnabled = true
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			}()
		}
	}

	teller, err := storyteller.NewTeller(cfg.Project.Storyteller)
	if err != nil {
		log.Warn("storyteller disabled", zap.Error(err))
	}
	stories := make(chan storyteller.Story, 4)
	narrator := storyteller.NewNarrator(teller, func(s storyteller.Story) {
		select {
		case stories <- s:
		default:
			log.Warn("story dropped; console is behind", zap.Int("night", s.Night))
		}
	}, storyteller.WithLogger(log))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithObserver(storage.NewPersister(store, log)),
		orchestrator.WithObserver(book),
		orchestrator.WithObserver(router),
		orchestrator.WithObserver(narrator),
	}
	o, err := openGame(store, catalog, roster, resume, opts)
	if err != nil {
		return err
	}
	_ = book.Info("console opened · game %s", o.GameID())

	appOpts := []tui.AppOption{tui.WithLogbook(book), tui.WithStories(stories)}
	if feedEnabled {
		appOpts = append(appOpts, tui.WithFeedURL(server.FeedURL(o.GameID())))
	}
	p := tea.NewProgram(
		tui.NewApp(o, appOpts...),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	fmt.Printf("Game %s saved. Continue it with: loups -resume %s\n", o.GameID(), o.GameID())
	return nil
}

func openGame(store storage.Store, catalog *roles.Catalog, roster, resume string, opts []orchestrator.Option) (*orchestrator.Orchestrator, error) {
	if resume != "" {
		state, err := store.Load(resume)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("no saved game %q (try -list)", resume)
			}
			return nil, err
		}
		return orchestrator.Resume(catalog, state, opts...)
	}
	if roster == "" {
		return nil, fmt.Errorf("-players is required for a new game, e.g. -players \"Ana=werewolf,Bob=seer,Chloe=villager\"")
	}
	registry, err := players.ParseRoster(roster)
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.NewGame(catalog, registry, opts...)
	if err != nil {
		return nil, err
	}
	// The persister only hears transitions, so save the seating now.
	if err := store.Save(o.Snapshot()); err != nil {
		return nil, err
	}
	return o, nil
}

func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.StorageBackend() {
	case "sqlite":
		path := cfg.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		s, err := storage.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return storage.NewFileStore(cfg.StateDir()), func() error { return nil }, nil
	}
}
