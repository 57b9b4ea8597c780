// Package recovery locates the most recent surviving checkpoint file by
// scanning tiers strongest-to-weakest and rehydrates every registered
// dataset from it in place. It shares writer.Path so the two packages can
// never disagree about on-disk layout.
package recovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	core "github.com/openhpc/mlcr/internal/core"
	"github.com/openhpc/mlcr/fsio"
	"github.com/openhpc/mlcr/level"
	"github.com/openhpc/mlcr/registry"
	"github.com/openhpc/mlcr/writer"
)

// Recover scans tiers 4 down to 1 for this rank's checkpoint file. A
// positive ckptID names the exact file at writer.Path(table[l].Dir, l,
// groupID, rank, ckptID); ckptID zero means "the newest surviving id",
// the restart case where the new process has no memory of the previous
// run's counter. On the first tier where a file is found, Recover reads
// exactly TotalBytes for each registered dataset, in registration order,
// into that dataset's Ptr. The registry must already hold the same
// ids/order/sizes used when the checkpoint was written; that is the
// application's contract, not something this package can verify.
//
// If no tier has a file, Recover returns a NotSuccess(RecoveryFailure)
// error; callers treat this as fatal when their reco flag is set, since
// there is no partial restart.
func Recover(ctx context.Context, fio fsio.FileIO, table level.Table, groupID, rank, ckptID int, reg *registry.Registry) (usedLevel int, err error) {
	for l := 4; l >= 1; l-- {
		path := ""
		if ckptID > 0 {
			path = writer.Path(table[l].Dir, l, groupID, rank, ckptID)
			if !fio.Exists(ctx, path) {
				continue
			}
		} else {
			path = newestCheckpoint(ctx, fio, table[l].Dir, l, groupID, rank)
			if path == "" {
				continue
			}
		}

		var offset int64
		for _, d := range reg.Datasets() {
			if err := fio.ReadInto(ctx, path, offset, d.Ptr[:d.TotalBytes]); err != nil {
				return 0, core.NotSuccess(core.RecoveryFailure, fmt.Errorf("reading dataset %d from %s: %w", d.ID, path, err), ckptID, l)
			}
			offset += d.TotalBytes
		}
		return l, nil
	}

	return 0, core.NotSuccess(core.RecoveryFailure, fmt.Errorf("no surviving checkpoint file found for ckpt id %d", ckptID), ckptID, 0)
}

// newestCheckpoint returns the path of the rank's highest-id checkpoint
// file in tier l's group directory, or "" when the directory is missing or
// holds none. Partner copies and erasure shards carry suffixes after the
// id and are skipped by the strict integer parse.
func newestCheckpoint(ctx context.Context, fio fsio.FileIO, dir string, l, groupID, rank int) string {
	groupDir := filepath.Dir(writer.Path(dir, l, groupID, rank, 0))
	entries, err := fio.ReadDir(ctx, groupDir)
	if err != nil {
		return ""
	}

	prefix := fmt.Sprintf("rank-%d-ckpt-", rank)
	best, bestID := "", 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err != nil || id <= bestID {
			continue
		}
		best, bestID = filepath.Join(groupDir, e.Name()), id
	}
	return best
}
