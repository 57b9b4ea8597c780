// Package fsio provides the retryable file I/O primitives the checkpoint
// writer and recovery scan are built on: a FileIO interface with a
// retry-wrapped os.* default implementation, plus a direct-I/O variant
// (direct_io.go) backing the hot, node-local Level 1 tier.
package fsio

import (
	"context"
	"io"
	"os"
	"path/filepath"

	retry "github.com/sethvargo/go-retry"

	core "github.com/openhpc/mlcr/internal/core"
)

// FileIO is the file and directory access surface the Writer, Recovery and
// archival movers depend on. Defaults to os.* wrapped with bounded retry;
// see NewDirectFileIO for the direct-I/O variant used by Level 1.
type FileIO interface {
	WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// ReadInto reads exactly len(buf) bytes from name at the given offset into buf,
	// the shape recovery needs to rehydrate one dataset at a time.
	ReadInto(ctx context.Context, name string, offset int64, buf []byte) error
	Remove(ctx context.Context, name string) error
	Exists(ctx context.Context, path string) bool

	RemoveAll(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
	ReadDir(ctx context.Context, sourceDir string) ([]os.DirEntry, error)
}

type defaultFileIO struct{}

// NewFileIO returns the default os.*-backed FileIO implementation.
func NewFileIO() FileIO {
	return &defaultFileIO{}
}

// classify wraps err as a FileIOError, marking it retryable only when the
// failure looks transient; a missing file or a read-only filesystem must
// fail fast instead of riding out the whole backoff schedule.
func classify(err error) error {
	e := core.Error{Code: core.FileIOError, Err: err}
	if core.ShouldRetry(err) {
		return retry.RetryableError(e)
	}
	return e
}

func (dio defaultFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(name, data, perm); err != nil {
		dirPath := filepath.Dir(name)
		if derr := dio.MkdirAll(ctx, dirPath, 0o755); derr == nil {
			return core.Retry(ctx, func(context.Context) error {
				if err := os.WriteFile(name, data, perm); err != nil {
					return classify(err)
				}
				return nil
			}, nil)
		}
		return err
	}
	return nil
}

func (dio defaultFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var ba []byte
	err := core.Retry(ctx, func(context.Context) error {
		var err error
		ba, err = os.ReadFile(name)
		if err != nil {
			return classify(err)
		}
		return nil
	}, nil)
	return ba, err
}

func (dio defaultFileIO) ReadInto(ctx context.Context, name string, offset int64, buf []byte) error {
	return core.Retry(ctx, func(context.Context) error {
		f, err := os.Open(name)
		if err != nil {
			return classify(err)
		}
		defer f.Close()
		if _, err := f.Seek(offset, 0); err != nil {
			return classify(err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return classify(err)
		}
		return nil
	}, nil)
}

func (dio defaultFileIO) Remove(ctx context.Context, name string) error {
	return core.Retry(ctx, func(context.Context) error {
		if err := os.Remove(name); err != nil {
			return classify(err)
		}
		return nil
	}, nil)
}

func (dio defaultFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return core.Retry(ctx, func(context.Context) error {
		err := os.MkdirAll(path, perm)
		if err != nil {
			if IsPermanentIOError(err) {
				return core.Error{Code: core.FileIOError, Err: err}
			}
			return classify(err)
		}
		return nil
	}, nil)
}

func (dio defaultFileIO) RemoveAll(ctx context.Context, path string) error {
	return core.Retry(ctx, func(context.Context) error {
		if err := os.RemoveAll(path); err != nil {
			return classify(err)
		}
		return nil
	}, nil)
}

func (dio defaultFileIO) Exists(ctx context.Context, path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func (dio defaultFileIO) ReadDir(ctx context.Context, sourceDir string) ([]os.DirEntry, error) {
	var r []os.DirEntry
	err := core.Retry(ctx, func(context.Context) error {
		var err error
		r, err = os.ReadDir(sourceDir)
		if err != nil {
			return classify(err)
		}
		return nil
	}, nil)
	return r, err
}
