// Package scheduler builds the ordered queue of turns for a night and moves
// the turn pointer through it. Every function takes a game state value and
// returns the next one; nothing here owns state. Queues are deterministic for
// a given night, catalog, and set of living players, so a replay or a
// moderator stepping back always sees the same order.
package scheduler
