package core

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// Checkpoint I/O rides out short storage hiccups (an NFS server failing
// over, a congested metadata server) but must not stall a timestep for
// long: the whole point of the local tiers is that a checkpoint costs a
// bounded slice of compute time.
const (
	retryAttempts  = 5
	retryBaseDelay = 500 * time.Millisecond
)

// Retry runs task under capped Fibonacci backoff. Used by fsio for
// checkpoint file I/O and by notify for notification-file access; the
// latter passes gaveUpTask to downgrade an exhausted retry to a debug
// record, since notifications are advisory and loss is tolerated.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	err := retry.Do(ctx, retry.WithMaxRetries(retryAttempts, retry.NewFibonacci(retryBaseDelay)), task)
	if err == nil {
		return nil
	}
	if gaveUpTask != nil {
		gaveUpTask(ctx)
		return err
	}
	log.Warn("mlcr: retries exhausted", "err", err)
	return err
}

// permanentIOErrors are failure shapes a checkpoint write or recovery read
// will reproduce identically on every attempt: a path that isn't there, a
// permission wall, a full or read-only filesystem, a malformed path. None
// of these get better with backoff.
var permanentIOErrors = []error{
	os.ErrNotExist,
	os.ErrPermission,
	os.ErrClosed,
	os.ErrExist,
	syscall.EROFS,
	syscall.ENOSPC,
	syscall.EDQUOT,
	syscall.EACCES,
	syscall.EPERM,
	syscall.ENOTDIR,
	syscall.EISDIR,
	syscall.ENAMETOOLONG,
	syscall.EINVAL,
}

// ShouldRetry reports whether a checkpoint I/O failure is worth another
// attempt. Context cancellation and the permanent failure shapes above
// fail fast; everything else is presumed transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, p := range permanentIOErrors {
		if errors.Is(err, p) {
			return false
		}
	}
	// Some NFS clients surface EROFS as text only.
	return !strings.Contains(err.Error(), "read-only file system")
}
