package mlcr

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"

	"github.com/openhpc/mlcr/archive"
	"github.com/openhpc/mlcr/controller"
	"github.com/openhpc/mlcr/erasure"
	"github.com/openhpc/mlcr/fsio"
	"github.com/openhpc/mlcr/head"
	"github.com/openhpc/mlcr/inject"
	"github.com/openhpc/mlcr/level"
	"github.com/openhpc/mlcr/notify"
	"github.com/openhpc/mlcr/recovery"
	"github.com/openhpc/mlcr/registry"
	"github.com/openhpc/mlcr/scheduler"
	"github.com/openhpc/mlcr/statuscache"
	"github.com/openhpc/mlcr/topology"
	"github.com/openhpc/mlcr/writer"
)

// Facade is the library's single context handle: one per rank, built by
// Init and torn down by Finalize or Abort.
type Facade struct {
	Config     Config
	Topo       topology.View
	Levels     level.Table
	Registry   *registry.Registry
	Controller *controller.Controller
	Scheduler  *scheduler.Scheduler
	Injector   *inject.Injector
	Publisher  *statuscache.Publisher
	Exec       ExecState

	fio       fsio.FileIO
	transport head.Transport
	headDone  chan error
	pp        map[int]controller.PostProcessor
}

// Init loads the configuration, builds the level policy table and
// registry, and either diverts a head rank into its head.Listen loop or
// prepares an application-rank Facade ready for Protect/Checkpoint/etc.
// When the restart sentinel says a prior run is still in progress, Init
// recovers the application rank before returning. transport is shared by
// every rank in the process, standing in for the MPI-style communicator a
// real launch supplies.
func Init(ctx context.Context, configPath string, topo topology.View, transport head.Transport) (*Facade, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ConfigureLogging()
	SetLogLevelFromVerbosity(cfg.Verbosity)

	// cfg.Restart above already captured the prior run's sentinel (used
	// below to decide whether this Init should recover); this rewrite marks
	// the new run as in-progress so a crash before Finalize is detected on
	// the next Init. Rank 0 owns the sentinel.
	if !topo.AmIAHead && topo.SplitRank == 0 {
		if err := WriteRestartState(cfg.MetaDir, RestartInProgress); err != nil {
			return nil, initFatal(err)
		}
	}

	tbl := level.NewTable(
		[5]int{0, cfg.CkptL1, cfg.CkptL2, cfg.CkptL3, cfg.CkptL4},
		cfg.InlineL2, cfg.InlineL3,
		cfg.CkptDir, cfg.GlobDir, cfg.MetaDir,
	)
	if !cfg.Head {
		// No dedicated heads are reserved, so there is nobody to offload
		// to; every level runs its post-processing on the application rank.
		for l := 2; l <= 3; l++ {
			tbl[l].IsInline = true
		}
	}

	f := &Facade{
		Config:    cfg,
		Topo:      topo,
		Levels:    tbl,
		Registry:  registry.New(),
		fio:       fsio.NewFileIO(),
		transport: transport,
		Exec:      ExecState{Reco: cfg.Restart == RestartInProgress, BaseInterval: cfg.CkptL1},
	}

	f.pp = f.postProcessors(ctx)

	if topo.AmIAHead {
		f.headDone = make(chan error, 1)
		nbAppRanks := maxInt(topo.GroupSize-1, 1)
		go func() {
			f.headDone <- head.Listen(ctx, transport, topo.GroupID, topo.HeadRank, 1, nbAppRanks, f.headHandler())
		}()
		return f, nil
	}

	rules, err := notify.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	reactor := notify.New(fmt.Sprintf("%s/notifications.log", cfg.MetaDir), rules)
	f.Scheduler = scheduler.New(tbl, reactor)

	if cfg.StatusCacheAddr != "" {
		f.Publisher = statuscache.NewPublisher(statuscache.Options{Address: cfg.StatusCacheAddr})
	} else {
		f.Publisher = statuscache.NewNoop()
	}

	f.Controller = controller.New(topo, tbl, f.Registry, f.fio, transport, f.pp, f.Publisher)
	f.Controller.WriteFileIO = writeFileIOByLevel(tbl)
	f.Injector = inject.NewInjector(topo.SplitRank, topo.SplitRank, 0, 1<<30)

	if cfg.Restart == RestartInProgress {
		if _, err := f.Recover(ctx); err != nil {
			return nil, initFatal(err)
		}
	}

	return f, nil
}

// initFatal marks init-time failures as fatal: a rank with a broken
// configuration or topology cannot participate in checkpointing at all.
func initFatal(err error) error {
	log.Error("mlcr: fatal init-time failure", "err", err)
	return err
}

func (f *Facade) postProcessors(ctx context.Context) map[int]controller.PostProcessor {
	pp := map[int]controller.PostProcessor{
		1: &controller.LocalCopyPostProcessor{FileIO: f.fio},
		2: &controller.PartnerCopyPostProcessor{FileIO: f.fio, Dir: f.Levels[2].Dir, Level: 2, GroupSize: f.Topo.GroupSize},
	}

	if g, err := erasure.New(maxInt(f.Topo.GroupSize-1, 1), 2); err == nil {
		pp[3] = &controller.ErasurePostProcessor{FileIO: f.fio, Group: g, Dir: f.Levels[3].Dir, MetaDir: f.Levels[3].MetaDir, Level: 3}
	} else {
		log.Warn("mlcr: erasure group construction failed, level 3 post-processing unavailable", "err", err)
	}

	mover := f.buildArchiveMover(ctx)
	if mover != nil {
		pp[4] = &controller.ArchivePostProcessor{Mover: mover, Level: 4}
	}
	return pp
}

func (f *Facade) buildArchiveMover(ctx context.Context) archive.Mover {
	if f.Config.GlobBackend == "s3" {
		mover, err := archive.NewS3Mover(ctx, archive.S3Config{Bucket: f.Config.S3Bucket, Region: f.Config.S3Region})
		if err != nil {
			log.Warn("mlcr: s3 archive mover construction failed, falling back to local PFS mover", "err", err)
		} else {
			return mover
		}
	}
	return archive.NewPFSMover(f.Config.GlobDir, f.fio)
}

// writeFileIOByLevel builds the Controller's per-level write override: any
// tier whose Policy.UseDirectIO is set (Level 1 by default, see Init) routes
// its Writer call through fsio.NewDirectFileIO instead of the buffered
// default, bypassing the page cache on the hot, inline-checkpoint path so
// a large node-local write does not evict the application's working set.
func writeFileIOByLevel(tbl level.Table) map[int]fsio.FileIO {
	m := make(map[int]fsio.FileIO)
	for l := 1; l <= 4; l++ {
		if tbl[l].UseDirectIO {
			m[l] = fsio.NewDirectFileIO()
		}
	}
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// headHandler adapts the per-level post-processor dispatch to head.Handler
// for a head rank's Listen loop: each checkpoint notice runs the named
// level's post-processor for the sending rank's group.
func (f *Facade) headHandler() head.Handler {
	return func(ctx context.Context, msg head.Message) (head.Message, error) {
		if msg.Kind == head.KindReject {
			return head.Message{Kind: head.KindReject, Level: msg.Level, CkptID: msg.CkptID, CorrelationID: msg.CorrelationID}, nil
		}
		pp, ok := f.pp[msg.Level]
		if !ok {
			return head.Message{}, fmt.Errorf("no post-processor for level %d", msg.Level)
		}
		if err := pp.Process(ctx, f.Topo.GroupID, msg.FromRank, msg.CkptID, msg.Path, f.Registry); err != nil {
			return head.Message{}, err
		}
		return head.Message{Kind: head.KindAck, Level: msg.Level, CkptID: msg.CkptID, CorrelationID: msg.CorrelationID}, nil
	}
}

// WaitHead blocks until a head-rank Facade's Listen loop returns (on
// KindEnd from every application rank in the group, or context
// cancellation). Only meaningful when Topo.AmIAHead is true; on an
// application-rank Facade the channel is nil and the receive never returns.
func (f *Facade) WaitHead() error {
	return <-f.headDone
}

// Status reports whether this rank is rehydrating from a prior run.
func (f *Facade) Status() bool {
	return f.Exec.Reco
}

// InitType registers a new element type of the given byte size and returns
// its descriptor.
func (f *Facade) InitType(sizeBytes int) registry.TypeDescriptor {
	t := f.Registry.InitType(sizeBytes)
	f.Exec.NbTypes = f.Registry.NbTypes()
	return t
}

// Protect registers (or idempotently updates) a protected dataset.
func (f *Facade) Protect(id int, ptr []byte, count int64, t registry.TypeDescriptor) error {
	if err := f.Registry.Protect(id, ptr, count, t); err != nil {
		return err
	}
	f.Exec.NbVars = f.Registry.NbVar()
	f.Exec.CkptSize = f.Registry.CkptSize()
	return nil
}

// Checkpoint runs the multi-level controller's state machine for level
// lvl. On a head rank Checkpoint is a NotSuccess: head ranks never call
// application operations.
func (f *Facade) Checkpoint(ctx context.Context, id, lvl int) error {
	if f.Controller == nil {
		return NotSuccess(BadArgument, fmt.Errorf("Checkpoint called on a head rank"), id, lvl)
	}
	f.Exec.CkptID = id
	err := f.Controller.Checkpoint(ctx, id, lvl)
	// A failed offload write still leaves a REJECT notice in flight, so the
	// offline flag mirrors the controller's state even on error.
	f.Exec.WasLastOffline = f.Controller.State() == controller.Offloaded
	f.Exec.LastCkptLevel = f.Controller.LastCkptLevel()
	if err == nil {
		f.Exec.CkptLevel = lvl
	}
	return err
}

// Recover scans tiers high-to-low and rehydrates every registered dataset
// from the strongest surviving one. Clears Exec.Reco on success.
func (f *Facade) Recover(ctx context.Context) (int, error) {
	lvl, err := recovery.Recover(ctx, f.fio, f.Levels, f.Topo.GroupID, f.Topo.SplitRank, f.Exec.CkptID, f.Registry)
	if err != nil {
		if f.Exec.Reco {
			return 0, initFatal(err)
		}
		return 0, err
	}
	f.Exec.Reco = false
	return lvl, nil
}

// Snapshot is the convenience operation for the main simulation loop:
// Recover when this rank is rehydrating, otherwise a scheduled Checkpoint
// driven by the Scheduler's tick (level selection plus notification
// regulation).
func (f *Facade) Snapshot(ctx context.Context, currentMinute int) error {
	if f.Exec.Reco {
		_, err := f.Recover(ctx)
		return err
	}
	if f.Scheduler == nil {
		return nil
	}
	err := f.Scheduler.Tick(ctx, currentMinute, func(ctx context.Context, lvl int) error {
		return f.Checkpoint(ctx, f.Exec.CkptID+1, lvl)
	})
	f.Exec.CkptCount = f.Scheduler.CkptCount
	f.Exec.LastMinute = f.Scheduler.LastMinute
	f.Exec.NextMinute = f.Scheduler.NextMinute
	f.Exec.IterTime = f.Scheduler.IterTime
	return err
}

// Finalize drains any outstanding offload, optionally promotes the last
// checkpoint into the archival tier (keep_last), and updates the restart
// sentinel.
func (f *Facade) Finalize(ctx context.Context) error {
	if f.Controller == nil {
		return nil
	}
	if err := f.Controller.Finalize(ctx); err != nil {
		return err
	}
	// The drain above may have acknowledged an outstanding offload.
	f.Exec.LastCkptLevel = f.Controller.LastCkptLevel()

	restart := RestartFresh
	if f.Config.KeepLast && f.Exec.LastCkptLevel > 0 && f.Exec.LastCkptLevel < 4 {
		if err := f.promoteToL4(ctx); err != nil {
			log.Warn("mlcr: keep_last promotion to L4 failed", "err", err)
		} else {
			restart = RestartKeepLast
		}
	}
	if f.Topo.SplitRank != 0 {
		// Rank 0 owns the restart sentinel.
		return nil
	}
	return WriteRestartState(f.Config.MetaDir, restart)
}

// promoteToL4 stages the last durable checkpoint into a temporary global
// directory and atomically renames it into the archival tier, so a crash
// mid-promotion can never leave a torn L4 entry.
func (f *Facade) promoteToL4(ctx context.Context) error {
	src := writer.Path(f.Levels[f.Exec.LastCkptLevel].Dir, f.Exec.LastCkptLevel, f.Topo.GroupID, f.Topo.SplitRank, f.Exec.CkptID)

	tmpRoot := filepath.Join(f.Config.GlobDir, fmt.Sprintf("gTmpDir-%d", f.Topo.SplitRank))
	mover := archive.NewPFSMover(tmpRoot, f.fio)
	key := fmt.Sprintf("%d/rank-%d-ckpt-%d", f.Topo.GroupID, f.Topo.SplitRank, f.Exec.CkptID)
	if err := mover.Promote(ctx, src, key); err != nil {
		return err
	}

	finalDir := filepath.Join(f.Config.GlobDir, "L4", fmt.Sprintf("%d", f.Topo.GroupID))
	if err := f.fio.MkdirAll(ctx, filepath.Dir(finalDir), 0o755); err != nil {
		return err
	}
	staged := filepath.Join(tmpRoot, fmt.Sprintf("%d", f.Topo.GroupID))
	if err := os.Rename(staged, finalDir); err != nil {
		// The group directory may already exist from an earlier L4
		// checkpoint; move just this rank's file in that case.
		name := fmt.Sprintf("rank-%d-ckpt-%d", f.Topo.SplitRank, f.Exec.CkptID)
		if rerr := os.Rename(filepath.Join(staged, name), filepath.Join(finalDir, name)); rerr != nil {
			return NotSuccess(FileIOError, err, f.Exec.CkptID, 4)
		}
	}
	return f.fio.RemoveAll(ctx, tmpRoot)
}

// Abort cleans every tier's directory before the caller hard-terminates
// with a non-zero exit code.
func (f *Facade) Abort(ctx context.Context) error {
	for l := 1; l <= 4; l++ {
		if err := f.fio.RemoveAll(ctx, f.Levels[l].Dir); err != nil {
			log.Warn("mlcr: abort cleanup failed", "level", l, "err", err)
		}
	}
	if f.Topo.SplitRank != 0 {
		return nil
	}
	return WriteRestartState(f.Config.MetaDir, RestartFresh)
}

// BitFlip drives a silent-data-corruption experiment via the fault
// injector. Never invoked on production paths.
func (f *Facade) BitFlip(datasetID, elementIndex, bitPos int) error {
	return f.Injector.BitFlip(f.Registry, datasetID, elementIndex, bitPos)
}
