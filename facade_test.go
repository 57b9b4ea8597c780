package mlcr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openhpc/mlcr/head"
	"github.com/openhpc/mlcr/registry"
	"github.com/openhpc/mlcr/topology"
)

func writeTestConfig(t *testing.T, ckptDir, globDir, metaDir string) string {
	t.Helper()
	body := `
node_size = 1
group_size = 1
ckpt_dir = "` + ckptDir + `"
glob_dir = "` + globDir + `"
meta_dir = "` + metaDir + `"
ckpt_L1 = 1
ckpt_L2 = 2
ckpt_L3 = 4
ckpt_L4 = 8
`
	path := filepath.Join(metaDir, "mlcr.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

// A single rank protects a dataset, checkpoints inline at level 1, zeroes
// its memory, and recovers it byte-for-byte.
func TestFacade_InlineLevel1RoundTrip(t *testing.T) {
	ctx := context.Background()
	ckptDir, globDir, metaDir := t.TempDir(), t.TempDir(), t.TempDir()
	cfgPath := writeTestConfig(t, ckptDir, globDir, metaDir)

	topo, err := topology.Build(0, 1, 1, false)
	if err != nil {
		t.Fatalf("topology.Build: %v", err)
	}
	transport := head.NewChannelTransport(4)

	f, err := Init(ctx, cfgPath, topo, transport)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.Status() {
		t.Fatal("fresh run should not report recovery mode")
	}

	doubleType := f.InitType(8)
	data := make([]byte, 8*4)
	for i := range data {
		data[i] = byte(i + 1)
	}
	if err := f.Protect(1, data, 4, doubleType); err != nil {
		t.Fatalf("Protect: %v", err)
	}

	if err := f.Checkpoint(ctx, 1, 1); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	original := append([]byte(nil), data...)
	for i := range data {
		data[i] = 0
	}

	f.Exec.CkptID = 1
	if _, err := f.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	for i := range original {
		if data[i] != original[i] {
			t.Fatalf("byte %d = %d, want %d after recover", i, data[i], original[i])
		}
	}

	if err := f.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

// CkptSize equals the sum of registered datasets' TotalBytes, including
// after an idempotent re-Protect of the same id.
func TestFacade_ProtectIdempotentAndAggregatesCkptSize(t *testing.T) {
	ctx := context.Background()
	ckptDir, globDir, metaDir := t.TempDir(), t.TempDir(), t.TempDir()
	cfgPath := writeTestConfig(t, ckptDir, globDir, metaDir)

	topo, _ := topology.Build(0, 1, 1, false)
	f, err := Init(ctx, cfgPath, topo, head.NewChannelTransport(4))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	dbl := f.InitType(8)
	if err := f.Protect(7, make([]byte, 8*100), 100, dbl); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if f.Exec.CkptSize != 800 {
		t.Fatalf("CkptSize = %d, want 800", f.Exec.CkptSize)
	}

	flt := registry.TypeDescriptor{ID: 20, SizeBytes: 4, Kind: registry.KindFloat}
	if err := f.Protect(7, make([]byte, 4*50), 50, flt); err != nil {
		t.Fatalf("Protect (replace): %v", err)
	}
	if f.Exec.CkptSize != 200 {
		t.Fatalf("CkptSize after replace = %d, want 200 (50*4)", f.Exec.CkptSize)
	}
}

// With keep_last configured, Finalize promotes the last durable checkpoint
// into the L4 archival directory and leaves the restart sentinel at
// keep-last-available.
func TestFacade_KeepLastPromotesToL4(t *testing.T) {
	ctx := context.Background()
	ckptDir, globDir, metaDir := t.TempDir(), t.TempDir(), t.TempDir()
	body := `
node_size = 1
group_size = 1
ckpt_dir = "` + ckptDir + `"
glob_dir = "` + globDir + `"
meta_dir = "` + metaDir + `"
ckpt_L1 = 1
ckpt_L2 = 2
ckpt_L3 = 4
ckpt_L4 = 8
inline_L2 = true
keep_last = true
`
	cfgPath := filepath.Join(metaDir, "mlcr.toml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	topo, _ := topology.Build(0, 1, 1, false)
	f, err := Init(ctx, cfgPath, topo, head.NewChannelTransport(4))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	dbl := f.InitType(8)
	data := make([]byte, 8*4)
	for i := range data {
		data[i] = byte(i)
	}
	if err := f.Protect(1, data, 4, dbl); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if err := f.Checkpoint(ctx, 1, 2); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	if err := f.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	promoted := filepath.Join(globDir, "L4", "0", "rank-0-ckpt-1")
	got, err := os.ReadFile(promoted)
	if err != nil {
		t.Fatalf("reading promoted L4 file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("promoted content differs from last L2 checkpoint")
	}

	state, err := ReadRestartState(metaDir)
	if err != nil {
		t.Fatalf("ReadRestartState: %v", err)
	}
	if state != RestartKeepLast {
		t.Fatalf("restart sentinel = %v, want RestartKeepLast", state)
	}
}

// Init writes the restart sentinel to in-progress for rank 0, and
// Finalize resets it to fresh when keep_last is not configured.
func TestFacade_RestartSentinelLifecycle(t *testing.T) {
	ctx := context.Background()
	ckptDir, globDir, metaDir := t.TempDir(), t.TempDir(), t.TempDir()
	cfgPath := writeTestConfig(t, ckptDir, globDir, metaDir)

	topo, _ := topology.Build(0, 1, 1, false)
	f, err := Init(ctx, cfgPath, topo, head.NewChannelTransport(4))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	mid, err := ReadRestartState(metaDir)
	if err != nil {
		t.Fatalf("ReadRestartState after Init: %v", err)
	}
	if mid != RestartInProgress {
		t.Fatalf("restart sentinel after Init = %v, want RestartInProgress", mid)
	}

	if err := f.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	final, err := ReadRestartState(metaDir)
	if err != nil {
		t.Fatalf("ReadRestartState after Finalize: %v", err)
	}
	if final != RestartFresh {
		t.Fatalf("restart sentinel after Finalize = %v, want RestartFresh", final)
	}
}
