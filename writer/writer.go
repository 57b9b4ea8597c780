// Package writer serializes a registry's protected datasets to exactly
// one checkpoint file per rank, as the raw concatenation of each dataset's
// bytes in registration order, no framing, no header. Built on
// fsio.FileIO's retry-wrapped WriteFile so "what bytes go on disk" stays
// separate from "how reliably they get there."
package writer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openhpc/mlcr/fsio"
	"github.com/openhpc/mlcr/registry"
)

// Path builds the on-disk location for one rank's checkpoint file at tier
// level: `<dir>/L<k>/<group>/rank-<r>-ckpt-<id>`.
func Path(dir string, level, groupID, rank, ckptID int) string {
	return filepath.Join(dir, fmt.Sprintf("L%d", level), fmt.Sprintf("%d", groupID), fmt.Sprintf("rank-%d-ckpt-%d", rank, ckptID))
}

// Write serializes reg's datasets, in registration order, to a single file
// at Path(dir, level, groupID, rank, ckptID) and returns the number of
// bytes written (expected to equal reg.CkptSize()). I/O failures are
// returned as-is from fsio (already wrapped as core.Error by FileIO);
// partial files are left in place, the controller owns reclaim.
func Write(ctx context.Context, fio fsio.FileIO, dir string, level, groupID, rank, ckptID int, reg *registry.Registry) (string, int64, error) {
	path := Path(dir, level, groupID, rank, ckptID)

	datasets := reg.Datasets()
	buf := make([]byte, 0, reg.CkptSize())
	for _, d := range datasets {
		buf = append(buf, d.Ptr...)
	}

	if err := fio.WriteFile(ctx, path, buf, 0o644); err != nil {
		return path, 0, err
	}
	return path, int64(len(buf)), nil
}
