package mlcr

import (
	"fmt"
	"os"
	"path/filepath"

	validator "github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
)

// RestartState is the on-disk `restart` sentinel: rank 0 flips it
// atomically at Init and Finalize so a subsequent run knows whether it is
// starting fresh, resuming a crashed run, or resuming from a deliberately
// kept last checkpoint.
type RestartState int

const (
	RestartFresh      RestartState = 0
	RestartInProgress RestartState = 1
	RestartKeepLast   RestartState = 2
)

// Config is the library's configuration file shape, parsed as TOML. Keys
// are snake_case so the file on disk reads the way operators of ini-style
// checkpoint configs expect.
type Config struct {
	Head      bool   `toml:"head" validate:"-"`
	NodeSize  int    `toml:"node_size" validate:"required,min=1"`
	GroupSize int    `toml:"group_size" validate:"required,min=1"`
	CkptDir   string `toml:"ckpt_dir" validate:"required"`
	GlobDir   string `toml:"glob_dir" validate:"required"`
	MetaDir   string `toml:"meta_dir" validate:"required"`

	CkptL1 int `toml:"ckpt_L1" validate:"required,min=1"`
	CkptL2 int `toml:"ckpt_L2" validate:"required,min=1"`
	CkptL3 int `toml:"ckpt_L3" validate:"required,min=1"`
	CkptL4 int `toml:"ckpt_L4" validate:"required,min=1"`

	InlineL2 bool `toml:"inline_L2"`
	InlineL3 bool `toml:"inline_L3"`
	InlineL4 bool `toml:"inline_L4"`

	KeepLast bool `toml:"keep_last"`

	// Verbosity is one of quiet/info/warn/debug/error; see core.SetLogLevelFromVerbosity.
	Verbosity string `toml:"verbosity" validate:"omitempty,oneof=quiet info warn debug error"`

	// GlobBackend selects the Level 4 archival mover: "local" (default,
	// archive.NewPFSMover) or "s3" (archive.NewS3Mover).
	GlobBackend string `toml:"glob_backend" validate:"omitempty,oneof=local s3"`
	S3Bucket    string `toml:"s3_bucket" validate:"required_if=GlobBackend s3"`
	S3Region    string `toml:"s3_region"`

	// RulesFile points at the optional YAML notification-rule sidecar
	// (notify.LoadRules); empty uses the built-in default table.
	RulesFile string `toml:"rules_file"`

	// StatusCacheAddr is the optional Redis endpoint checkpoint status is
	// published to after each successful inline checkpoint; empty disables
	// publication entirely.
	StatusCacheAddr string `toml:"status_cache_addr"`

	// Restart is not read from the file on LoadConfig; it is read/written
	// separately via ReadRestartState/WriteRestartState since it mutates
	// at runtime while the rest of Config is static for the run's lifetime.
	Restart RestartState `toml:"-"`
}

var configValidator = validator.New()

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, NotSuccess(ConfigError, err, 0, 0)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, NotSuccess(ConfigError, fmt.Errorf("parsing %s: %w", path, err), 0, 0)
	}
	if c.GlobBackend == "" {
		c.GlobBackend = "local"
	}
	if c.Verbosity == "" {
		c.Verbosity = "info"
	}

	if err := configValidator.Struct(c); err != nil {
		return Config{}, NotSuccess(ConfigError, fmt.Errorf("validating %s: %w", path, err), 0, 0)
	}

	state, err := ReadRestartState(c.MetaDir)
	if err != nil {
		return Config{}, err
	}
	c.Restart = state
	return c, nil
}

func restartFile(metaDir string) string {
	return filepath.Join(metaDir, "restart")
}

// ReadRestartState reads the sentinel from <meta_dir>/restart, defaulting
// to RestartFresh if the file does not yet exist (first run).
func ReadRestartState(metaDir string) (RestartState, error) {
	data, err := os.ReadFile(restartFile(metaDir))
	if os.IsNotExist(err) {
		return RestartFresh, nil
	}
	if err != nil {
		return RestartFresh, NotSuccess(ConfigError, err, 0, 0)
	}
	var n int
	if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil {
		return RestartFresh, NotSuccess(ConfigError, fmt.Errorf("corrupt restart sentinel: %w", err), 0, 0)
	}
	return RestartState(n), nil
}

// WriteRestartState atomically overwrites <meta_dir>/restart via a
// temp-file-plus-rename so a crash mid-write can never leave a torn
// sentinel.
func WriteRestartState(metaDir string, state RestartState) error {
	final := restartFile(metaDir)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d", state)), 0o644); err != nil {
		return NotSuccess(ConfigError, err, 0, 0)
	}
	if err := os.Rename(tmp, final); err != nil {
		return NotSuccess(ConfigError, err, 0, 0)
	}
	return nil
}
