package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/openhpc/mlcr/fsio"
)

// PFSMover is the default archival backend: a directory tree the caller's
// glob_dir configuration points at a mounted parallel filesystem. Promote
// is a retry-wrapped copy via fsio.FileIO, matching the rest of the
// library's I/O reliability posture rather than introducing a second retry
// policy just for archival moves.
type PFSMover struct {
	root string
	fio  fsio.FileIO
}

// NewPFSMover builds a Mover rooted at root (normally the configured
// glob_dir).
func NewPFSMover(root string, fio fsio.FileIO) *PFSMover {
	return &PFSMover{root: root, fio: fio}
}

func (m *PFSMover) Promote(ctx context.Context, localPath, archiveKey string) error {
	data, err := m.fio.ReadFile(ctx, localPath)
	if err != nil {
		return err
	}
	dest := filepath.Join(m.root, archiveKey)
	if err := m.fio.MkdirAll(ctx, filepath.Dir(dest), os.FileMode(0o755)); err != nil {
		return err
	}
	return m.fio.WriteFile(ctx, dest, data, 0o644)
}
