// Package controller implements the multi-level checkpoint controller:
// the per-rank state machine that drives the writer, dispatches to the
// right post-processor for a level, and talks to the head protocol when a
// level's policy calls for offload. Each operation is a guarded state
// transition yielding a typed error on failure.
package controller

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"

	"github.com/google/uuid"

	core "github.com/openhpc/mlcr/internal/core"
	"github.com/openhpc/mlcr/fsio"
	"github.com/openhpc/mlcr/head"
	"github.com/openhpc/mlcr/level"
	"github.com/openhpc/mlcr/registry"
	"github.com/openhpc/mlcr/statuscache"
	"github.com/openhpc/mlcr/topology"
	"github.com/openhpc/mlcr/writer"
)

// State is one node of the per-rank checkpoint state machine.
type State int

const (
	Idle State = iota
	Writing
	PostProc
	Offloaded
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Writing:
		return "writing"
	case PostProc:
		return "post-proc"
	case Offloaded:
		return "offloaded"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// PostProcessor implements one level's post-write durability step: local
// copy, partner copy, erasure encoding, or archival stage.
type PostProcessor interface {
	Process(ctx context.Context, groupID, rank, ckptID int, path string, reg *registry.Registry) error
}

// Controller is one rank's instance of the state machine. Within a rank
// the library is strictly sequential, so it is not meant for concurrent
// Checkpoint/Finalize calls; the mutex only guards State against
// concurrent reads from observability code.
type Controller struct {
	Topo      topology.View
	Table     level.Table
	Registry  *registry.Registry
	FileIO    fsio.FileIO
	Transport head.Transport
	// WriteFileIO overrides FileIO for the Writer call on specific levels
	// (level.Policy.UseDirectIO), e.g. routing Level 1's hot-path write
	// through fsio.NewDirectFileIO while post-processing and every other
	// level keep using the buffered default. A level with no entry falls
	// back to FileIO.
	WriteFileIO    map[int]fsio.FileIO
	PostProcessors map[int]PostProcessor
	Status         *statuscache.Publisher

	mu             sync.Mutex
	state          State
	ckptID         int
	ckptLevel      int
	lastCkptLevel  int
	wasLastOffline bool
	pendingCorr    uuid.UUID
}

// New builds a Controller for one rank. postProcessors must have an entry
// for every level the Table's policies route inline or offload through.
func New(topo topology.View, tbl level.Table, reg *registry.Registry, fio fsio.FileIO, transport head.Transport, postProcessors map[int]PostProcessor, status *statuscache.Publisher) *Controller {
	return &Controller{
		Topo:           topo,
		Table:          tbl,
		Registry:       reg,
		FileIO:         fio,
		Transport:      transport,
		PostProcessors: postProcessors,
		Status:         status,
	}
}

// writeFileIOFor returns the FileIO the Writer should use for lvl,
// preferring WriteFileIO's override when present.
func (c *Controller) writeFileIOFor(lvl int) fsio.FileIO {
	if fio, ok := c.WriteFileIO[lvl]; ok {
		return fio
	}
	return c.FileIO
}

// State returns the controller's current state (for tests/observability).
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastCkptLevel returns the most recently durable level, or 0 if none yet.
func (c *Controller) LastCkptLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCkptLevel
}

// Checkpoint writes the checkpoint file and dispatches to either an
// inline post-processor or an offload send to the group's head, per
// Table[level].IsInline. A level outside {1..4} is a NotSuccess with no
// state change.
func (c *Controller) Checkpoint(ctx context.Context, ckptID, lvl int) error {
	if lvl < 1 || lvl > 4 {
		return core.NotSuccess(core.BadArgument, fmt.Errorf("level %d not in {1..4}", lvl), ckptID, lvl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wasLastOffline {
		if err := c.drainPreviousLocked(ctx); err != nil {
			log.Warn("controller: draining previous offload reply failed", "err", err)
		}
	}

	c.state = Writing
	c.ckptID = ckptID
	c.ckptLevel = lvl

	policy := c.Table[lvl]
	path, size, err := writer.Write(ctx, c.writeFileIOFor(lvl), policy.Dir, lvl, c.Topo.GroupID, c.Topo.SplitRank, ckptID, c.Registry)

	if !policy.IsInline {
		return c.handleOffload(ctx, ckptID, lvl, path, err)
	}
	return c.handleInline(ctx, ckptID, lvl, path, size, err)
}

func (c *Controller) handleInline(ctx context.Context, ckptID, lvl int, path string, size int64, writeErr error) error {
	if writeErr != nil {
		c.state = Idle
		log.Error("controller: writer failed", "ckptID", ckptID, "level", lvl, "err", writeErr)
		return core.NotSuccess(core.FileIOError, writeErr, ckptID, lvl)
	}

	c.state = PostProc
	pp, ok := c.PostProcessors[lvl]
	if !ok {
		c.state = Idle
		return core.NotSuccess(core.BadArgument, fmt.Errorf("no post-processor registered for level %d", lvl), ckptID, lvl)
	}
	if err := pp.Process(ctx, c.Topo.GroupID, c.Topo.SplitRank, ckptID, path, c.Registry); err != nil {
		c.state = Idle
		log.Error("controller: post-processing failed", "ckptID", ckptID, "level", lvl, "err", err)
		return core.NotSuccess(core.FileIOError, err, ckptID, lvl)
	}

	c.lastCkptLevel = lvl
	c.wasLastOffline = false
	c.state = Idle
	c.publishStatus(ctx, size)
	return nil
}

func (c *Controller) handleOffload(ctx context.Context, ckptID, lvl int, path string, writeErr error) error {
	msg := head.Message{Level: lvl, CkptID: ckptID, FromRank: c.Topo.SplitRank, Path: path, CorrelationID: uuid.New()}
	if writeErr != nil {
		msg.Kind = head.KindReject
		log.Error("controller: writer failed before offload", "ckptID", ckptID, "level", lvl, "err", writeErr)
	} else {
		msg.Kind = head.KindCheckpoint
	}

	c.state = Offloaded
	c.wasLastOffline = true
	c.pendingCorr = msg.CorrelationID

	if err := c.Transport.Send(ctx, c.Topo.GroupID, c.Topo.HeadRank, msg); err != nil {
		// Nothing is in flight if the send itself failed; leaving
		// wasLastOffline set would make the next Checkpoint block on a
		// reply that can never arrive.
		c.state = Idle
		c.wasLastOffline = false
		return core.NotSuccess(core.FileIOError, fmt.Errorf("sending offload notice to head: %w", err), ckptID, lvl)
	}
	if writeErr != nil {
		return core.NotSuccess(core.FileIOError, writeErr, ckptID, lvl)
	}
	return nil
}

// drainPreviousLocked blocks for the previous offload's reply, the
// barrier that bounds offload latency to one checkpoint period, and
// updates lastCkptLevel if it was acknowledged.
func (c *Controller) drainPreviousLocked(ctx context.Context) error {
	reply, err := c.Transport.Recv(ctx, c.Topo.GroupID, c.Topo.SplitRank)
	c.wasLastOffline = false
	if err != nil {
		return err
	}
	if reply.CorrelationID != uuid.Nil && reply.CorrelationID != c.pendingCorr {
		log.Warn("controller: offload reply correlation mismatch",
			"got", reply.CorrelationID, "want", c.pendingCorr)
	}
	if reply.Kind == head.KindAck {
		c.lastCkptLevel = reply.Level
	}
	return nil
}

// Finalize drains any outstanding offload reply, sends END to the head,
// and returns to Idle.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wasLastOffline {
		if err := c.drainPreviousLocked(ctx); err != nil {
			log.Warn("controller: draining final offload reply failed", "err", err)
		}
	}

	c.state = Draining
	if c.Transport != nil {
		if err := c.Transport.Send(ctx, c.Topo.GroupID, c.Topo.HeadRank, head.Message{Kind: head.KindEnd, FromRank: c.Topo.SplitRank}); err != nil {
			c.state = Idle
			return core.NotSuccess(core.FileIOError, fmt.Errorf("sending END to head: %w", err), c.ckptID, c.ckptLevel)
		}
	}
	c.state = Idle
	return nil
}

func (c *Controller) publishStatus(ctx context.Context, size int64) {
	if c.Status == nil {
		return
	}
	c.Status.Publish(ctx, c.Topo.SplitRank, statuscache.Status{
		CkptID:        c.ckptID,
		CkptLevel:     c.ckptLevel,
		LastCkptLevel: c.lastCkptLevel,
		CkptSize:      size,
	})
}
