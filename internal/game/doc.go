// Package game holds the data model shared by every night-phase component:
// players and their statuses, night turns, deferred effects, the game state
// snapshot, and the typed errors each transition can report. It contains no
// sequencing logic of its own; the scheduler, the state store, and the
// orchestrator all operate on these values.
package game
