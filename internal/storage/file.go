package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/loups-garous/internal/game"
)

// FileStore keeps one indented JSON file per game.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load reads the persisted state if present.
func (s *FileStore) Load(gameID string) (game.State, error) {
	path, err := s.path(gameID)
	if err != nil {
		return game.State{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return game.State{}, ErrNotFound
		}
		return game.State{}, err
	}
	var state game.State
	if err := json.Unmarshal(data, &state); err != nil {
		return game.State{}, fmt.Errorf("storage: decode %s: %w", path, err)
	}
	return state, nil
}

// Save writes the snapshot through a temporary file so a crash never leaves
// a half-written game behind.
func (s *FileStore) Save(state game.State) error {
	path, err := s.path(state.GameID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// List returns the ids of every stored game, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) path(gameID string) (string, error) {
	id := strings.TrimSpace(gameID)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("storage: invalid game id %q", gameID)
	}
	return filepath.Join(s.dir, id+".json"), nil
}
