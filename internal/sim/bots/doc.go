// Package bots runs the autonomous agent engine: one decision pipeline per
// simulated player, stepped in parallel at host tick boundaries.
//
// The engine never touches host entity state directly. It reads immutable
// spatial snapshots published per tick, decides, and emits action intents
// through a bounded queue that the host drains at the next boundary. All
// cross-agent coordination (interrupt rosters, dispel duty, external
// defensives) happens in per-group coordinators guarded by their own locks;
// agent step state is owned by exactly one worker during a round and needs
// no locking at all.
package bots
