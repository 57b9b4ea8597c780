package fsio

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ncw/directio"

	core "github.com/openhpc/mlcr/internal/core"
)

// directFileIO backs the node-local Level 1 tier with github.com/ncw/directio
// so checkpoint writes bypass the page cache. Checkpoint writers are on the
// hot path (the application blocks on them when the level is inline) and a
// large per-rank write would otherwise evict the application's own working
// set from cache for no benefit, since a checkpoint file is written once and
// not re-read until a restart. Reads (Recovery, infrequent) fall back to the
// buffered implementation since there is no warm-cache benefit to protect.
type directFileIO struct {
	buffered FileIO
}

// NewDirectFileIO returns a FileIO whose WriteFile path uses O_DIRECT-aligned
// I/O; all other operations delegate to the buffered default implementation.
func NewDirectFileIO() FileIO {
	return &directFileIO{buffered: NewFileIO()}
}

func (d *directFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := d.buffered.MkdirAll(ctx, filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return core.Retry(ctx, func(context.Context) error {
		block := directio.AlignedBlock(alignedSize(len(data)))
		copy(block, data)
		f, err := directio.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			// Direct I/O is unsupported on some filesystems (tmpfs, overlayfs);
			// fall back to the buffered writer rather than fail the checkpoint.
			return fallbackWrite(ctx, d.buffered, name, data, perm)
		}
		defer f.Close()
		if _, err := f.Write(block); err != nil {
			return fallbackWrite(ctx, d.buffered, name, data, perm)
		}
		return f.Truncate(int64(len(data)))
	}, nil)
}

func fallbackWrite(ctx context.Context, buffered FileIO, name string, data []byte, perm os.FileMode) error {
	return buffered.WriteFile(ctx, name, data, perm)
}

func (d *directFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return d.buffered.ReadFile(ctx, name)
}
func (d *directFileIO) ReadInto(ctx context.Context, name string, offset int64, buf []byte) error {
	return d.buffered.ReadInto(ctx, name, offset, buf)
}
func (d *directFileIO) Remove(ctx context.Context, name string) error { return d.buffered.Remove(ctx, name) }
func (d *directFileIO) Exists(ctx context.Context, path string) bool  { return d.buffered.Exists(ctx, path) }
func (d *directFileIO) RemoveAll(ctx context.Context, path string) error {
	return d.buffered.RemoveAll(ctx, path)
}
func (d *directFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return d.buffered.MkdirAll(ctx, path, perm)
}
func (d *directFileIO) ReadDir(ctx context.Context, sourceDir string) ([]os.DirEntry, error) {
	return d.buffered.ReadDir(ctx, sourceDir)
}

// alignedSize rounds n up to directio.BlockSize, the alignment O_DIRECT requires.
func alignedSize(n int) int {
	bs := directio.BlockSize
	if n%bs == 0 {
		return n
	}
	return (n/bs + 1) * bs
}
