package mlcr

import core "github.com/openhpc/mlcr/internal/core"

// These aliases re-export the foundational error, retry, and logging
// primitives from internal/core under the public mlcr import path, so
// subpackages and callers share one error vocabulary without the root
// package depending back on them.

type ErrorCode = core.ErrorCode

const (
	Unknown         = core.Unknown
	ConfigError     = core.ConfigError
	RegistryFull    = core.RegistryFull
	BadArgument     = core.BadArgument
	FileIOError     = core.FileIOError
	RecoveryFailure = core.RecoveryFailure
)

type Error = core.Error

var ErrReject = core.ErrReject

// NotSuccess wraps err as a reportable Error with the given code and checkpoint identifiers.
func NotSuccess(code ErrorCode, err error, ckptID, level int) error {
	return core.NotSuccess(code, err, ckptID, level)
}

// Retry executes task with bounded Fibonacci backoff (internal/core.Retry).
var Retry = core.Retry

// ShouldRetry reports whether err is worth retrying.
var ShouldRetry = core.ShouldRetry

// ConfigureLogging sets up the default slog logger from MLCR_LOG_LEVEL.
func ConfigureLogging() { core.ConfigureLogging() }

// SetLogLevelFromVerbosity maps a config verbosity string onto the default logger.
func SetLogLevelFromVerbosity(v string) { core.SetLogLevelFromVerbosity(v) }
