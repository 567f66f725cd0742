package game

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnknownPlayer       = errors.New("unknown player")
	ErrDuplicateAssignment = errors.New("duplicate assignment")
	ErrAlreadyDead         = errors.New("already dead")
	ErrIncompleteTurn      = errors.New("incomplete turn")
	ErrAtStartOfNight      = errors.New("at start of night")
	ErrInvalidState        = errors.New("invalid state")
	ErrConflictingAction   = errors.New("conflicting action")
	ErrGameAlreadyOver     = errors.New("game already over")
)

// UnknownRoleError reports a variant id with no catalog definition.
type UnknownRoleError struct {
	ID VariantID
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.ID)
}

func (e *UnknownRoleError) Is(target error) bool { return target == ErrUnknownRole }

// UnknownPlayerError reports a player id the registry does not know.
type UnknownPlayerError struct {
	ID PlayerID
}

func (e *UnknownPlayerError) Error() string {
	return fmt.Sprintf("unknown player %q", e.ID)
}

func (e *UnknownPlayerError) Is(target error) bool { return target == ErrUnknownPlayer }

// DuplicateAssignmentError reports a second role assignment for a player.
type DuplicateAssignmentError struct {
	Player PlayerID
	Held   VariantID
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("player %s already holds role %s", e.Player, e.Held)
}

func (e *DuplicateAssignmentError) Is(target error) bool { return target == ErrDuplicateAssignment }

// AlreadyDeadError reports a kill aimed at a player who is already dead.
type AlreadyDeadError struct {
	Player PlayerID
	Night  int
}

func (e *AlreadyDeadError) Error() string {
	return fmt.Sprintf("player %s already dead (night %d)", e.Player, e.Night)
}

func (e *AlreadyDeadError) Is(target error) bool { return target == ErrAlreadyDead }

// IncompleteTurnError reports an advance past a turn whose action was never
// recorded.
type IncompleteTurnError struct {
	Index int
}

func (e *IncompleteTurnError) Error() string {
	return fmt.Sprintf("turn %d has no recorded action", e.Index)
}

func (e *IncompleteTurnError) Is(target error) bool { return target == ErrIncompleteTurn }

// AtStartOfNightError reports a retreat from the first turn.
type AtStartOfNightError struct {
	Night int
}

func (e *AtStartOfNightError) Error() string {
	return fmt.Sprintf("night %d is at its first turn", e.Night)
}

func (e *AtStartOfNightError) Is(target error) bool { return target == ErrAtStartOfNight }

// InvalidStateError reports an operation attempted in the wrong phase.
type InvalidStateError struct {
	Op     string
	Phase  Phase
	Detail string
}

func (e *InvalidStateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s not allowed in phase %s: %s", e.Op, e.Phase, e.Detail)
	}
	return fmt.Sprintf("%s not allowed in phase %s", e.Op, e.Phase)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// ConflictingActionError reports a re-sent action whose effects differ from
// the ones already recorded for that turn.
type ConflictingActionError struct {
	Night int
	Turn  int
}

func (e *ConflictingActionError) Error() string {
	return fmt.Sprintf("night %d turn %d already completed with different effects", e.Night, e.Turn)
}

func (e *ConflictingActionError) Is(target error) bool { return target == ErrConflictingAction }

// GameAlreadyOverError reports any transition attempted after the game ended.
type GameAlreadyOverError struct {
	Reason string
}

func (e *GameAlreadyOverError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("game already over (%s)", e.Reason)
	}
	return "game already over"
}

func (e *GameAlreadyOverError) Is(target error) bool { return target == ErrGameAlreadyOver }
