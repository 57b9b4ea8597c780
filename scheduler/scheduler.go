// Package scheduler implements the snapshot scheduler: a per-minute tick
// that runs the notification reactor, asks the level policy table for the
// highest coincident tier, and if one matched, invokes the caller-supplied
// checkpoint function. The minute counter, not iteration count, is the
// authoritative clock so checkpoint cadence is workload-independent.
package scheduler

import (
	"context"
	"time"

	"github.com/openhpc/mlcr/level"
	"github.com/openhpc/mlcr/notify"
)

// CheckpointFunc is invoked by Tick when a level is selected. A returned
// error is surfaced to the caller; a failed checkpoint does not advance
// the last durable level.
type CheckpointFunc func(ctx context.Context, level int) error

// Scheduler tracks the minute-granularity checkpoint cadence state:
// next/last minute, the checkpoint-count clock, and the observed
// inter-tick duration.
type Scheduler struct {
	Table      level.Table
	Reactor    *notify.Reactor
	NextMinute int
	LastMinute int
	CkptCount  int
	IterTime   time.Duration

	lastTick time.Time
}

// New builds a Scheduler over an already-configured level.Table and
// notify.Reactor (nil Reactor disables notification processing, useful
// for tests and for configurations with no notification producer wired).
func New(tbl level.Table, reactor *notify.Reactor) *Scheduler {
	return &Scheduler{Table: tbl, Reactor: reactor}
}

// Tick runs one scheduling cycle at currentMinute. The notification
// reactor runs at the same cadence as the scheduler and always runs
// first, so a regulation applied this minute can affect this same tick's
// Select; then CkptCount advances and a level is selected. checkpoint
// only fires when Select found a coincident tier.
func (s *Scheduler) Tick(ctx context.Context, currentMinute int, checkpoint CheckpointFunc) error {
	if s.Reactor != nil {
		s.Reactor.Tick(ctx, &s.Table, currentMinute)
	}

	now := time.Now()
	if !s.lastTick.IsZero() {
		s.IterTime = now.Sub(s.lastTick)
	}
	s.lastTick = now

	s.LastMinute = currentMinute
	s.NextMinute = currentMinute + 1
	s.CkptCount++

	lvl, ok := s.Table.Select(s.CkptCount)
	if !ok {
		return nil
	}
	return checkpoint(ctx, lvl)
}
