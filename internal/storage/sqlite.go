package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kingrea/loups-garous/internal/game"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS game_state (
	game_id    TEXT PRIMARY KEY,
	night      INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	snapshot   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS night_action (
	game_id    TEXT NOT NULL,
	night      INTEGER NOT NULL,
	turn       INTEGER NOT NULL,
	variant_id TEXT NOT NULL,
	actors     TEXT NOT NULL,
	effects    TEXT NOT NULL,
	PRIMARY KEY (game_id, night, turn)
);`

// SQLiteStore keeps the latest snapshot per game plus a journal of every
// completed night action.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// Action is one completed turn read back from the journal.
type Action struct {
	Night   int
	Turn    int
	Variant game.VariantID
	Actors  []game.PlayerID
	Effects []game.Effect
}

type actionRow struct {
	GameID  string `db:"game_id"`
	Night   int    `db:"night"`
	Turn    int    `db:"turn"`
	Variant string `db:"variant_id"`
	Actors  string `db:"actors"`
	Effects string `db:"effects"`
}

// OpenSQLite connects to the database at dsn and creates the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect %s: %w", dsn, err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing connection and creates the schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the latest snapshot of a game.
func (s *SQLiteStore) Load(gameID string) (game.State, error) {
	var snapshot string
	err := s.db.Get(&snapshot, "SELECT snapshot FROM game_state WHERE game_id = ?", gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.State{}, ErrNotFound
		}
		return game.State{}, fmt.Errorf("storage: load %s: %w", gameID, err)
	}
	var state game.State
	if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
		return game.State{}, fmt.Errorf("storage: decode %s: %w", gameID, err)
	}
	return state, nil
}

// Save upserts the snapshot and brings the night journal in line with the
// current queue: completed turns are written, reopened turns removed.
func (s *SQLiteStore) Save(state game.State) error {
	if state.GameID == "" {
		return fmt.Errorf("storage: snapshot has no game id")
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO game_state (game_id, night, phase, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			night = excluded.night,
			phase = excluded.phase,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		state.GameID, state.Night, string(state.Phase), string(encoded), s.now().UTC())
	if err != nil {
		return fmt.Errorf("storage: save %s: %w", state.GameID, err)
	}
	if state.Phase == game.PhaseNight {
		for _, turn := range state.Queue {
			if err := saveTurn(tx, state.GameID, state.Night, turn); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func saveTurn(tx *sqlx.Tx, gameID string, night int, turn game.NightTurn) error {
	if !turn.Completed || turn.Payload == nil {
		_, err := tx.Exec("DELETE FROM night_action WHERE game_id = ? AND night = ? AND turn = ?", gameID, night, turn.Index)
		return err
	}
	actors, err := json.Marshal(turn.Players)
	if err != nil {
		return err
	}
	effects, err := json.Marshal(turn.Payload.Effects)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO night_action (game_id, night, turn, variant_id, actors, effects)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id, night, turn) DO UPDATE SET
			variant_id = excluded.variant_id,
			actors = excluded.actors,
			effects = excluded.effects`,
		gameID, night, turn.Index, string(turn.Variant), string(actors), string(effects))
	if err != nil {
		return fmt.Errorf("storage: journal night %d turn %d: %w", night, turn.Index, err)
	}
	return nil
}

// List returns the ids of every stored game, most recently updated first.
func (s *SQLiteStore) List() ([]string, error) {
	var ids []string
	if err := s.db.Select(&ids, "SELECT game_id FROM game_state ORDER BY updated_at DESC, game_id"); err != nil {
		return nil, err
	}
	return ids, nil
}

// Actions reads the journal of completed turns for one night, in queue order.
func (s *SQLiteStore) Actions(gameID string, night int) ([]Action, error) {
	var rows []actionRow
	err := s.db.Select(&rows, `
		SELECT game_id, night, turn, variant_id, actors, effects
		FROM night_action
		WHERE game_id = ? AND night = ?
		ORDER BY turn`, gameID, night)
	if err != nil {
		return nil, err
	}
	out := make([]Action, 0, len(rows))
	for _, row := range rows {
		action := Action{Night: row.Night, Turn: row.Turn, Variant: game.VariantID(row.Variant)}
		if err := json.Unmarshal([]byte(row.Actors), &action.Actors); err != nil {
			return nil, fmt.Errorf("storage: decode actors: %w", err)
		}
		if err := json.Unmarshal([]byte(row.Effects), &action.Effects); err != nil {
			return nil, fmt.Errorf("storage: decode effects: %w", err)
		}
		out = append(out, action)
	}
	return out, nil
}
