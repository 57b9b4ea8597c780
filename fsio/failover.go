package fsio

import (
	"context"
	"errors"
	"strings"
	"syscall"
)

// IsPermanentIOError reports whether err indicates the underlying drive
// or filesystem is unhealthy in a way that retrying is pointless. It
// gates MkdirAll's retry loop; within this module it has no other caller.
func IsPermanentIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	permanent := []syscall.Errno{
		syscall.EIO,
		syscall.ENODEV,
		syscall.ENXIO,
		syscall.EROFS,
		syscall.ENOSPC,
		syscall.EDQUOT,
	}
	for _, code := range permanent {
		if errors.Is(err, code) {
			return true
		}
	}

	s := err.Error()
	return strings.Contains(s, "read-only file system") || strings.Contains(s, "readonly file system")
}
