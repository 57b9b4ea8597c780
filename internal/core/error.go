package core

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates the checkpoint/restart error categories used across packages.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// ConfigError marks a configuration or topology failure encountered during Init.
	ConfigError
	// RegistryFull is returned by Protect when the dataset table is full and id is new.
	RegistryFull
	// BadArgument marks an invalid argument to a public operation (e.g. level outside 1..4).
	BadArgument
	// FileIOError represents file I/O related errors raised while writing or recovering checkpoints.
	FileIOError
	// RecoveryFailure indicates that no surviving tier could be read during Recover.
	RecoveryFailure
)

// Error is the library's NotSuccess result: a recoverable or reportable
// failure carrying a code, the wrapped cause and the checkpoint
// identifiers relevant to diagnosing it.
type Error struct {
	Code   ErrorCode
	Err    error
	CkptID int
	Level  int
}

// Error implements the error interface, formatting the code and checkpoint identifiers.
func (e Error) Error() string {
	return fmt.Errorf("mlcr: code=%d ckpt=%d level=%d: %w", e.Code, e.CkptID, e.Level, e.Err).Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// ErrReject names the library's Reject protocol result: a requested
// post-processing step cannot proceed, and the checkpoint counts as failed
// while the run continues. On the wire a rejection travels as a
// head.KindReject message; no package in this module returns ErrReject.
var ErrReject = errors.New("mlcr: post-processing rejected")

// NotSuccess wraps err as a reportable Error with the given code and checkpoint identifiers.
func NotSuccess(code ErrorCode, err error, ckptID, level int) error {
	if err == nil {
		return nil
	}
	return Error{Code: code, Err: err, CkptID: ckptID, Level: level}
}
