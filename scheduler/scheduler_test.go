package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openhpc/mlcr/level"
	"github.com/openhpc/mlcr/notify"
)

func TestTick_FiresOnCoincidentLevel(t *testing.T) {
	tbl := level.NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")
	s := New(tbl, nil)

	var fired []int
	err := s.Tick(context.Background(), 0, func(_ context.Context, lvl int) error {
		fired = append(fired, lvl)
		return nil
	})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("fired = %v, want [1] on first tick (ckptCount=1)", fired)
	}
}

func TestTick_NoOpWhenNoLevelCoincides(t *testing.T) {
	tbl := level.NewTable([5]int{0, 5, 10, 20, 30}, false, false, "/ckpt", "/glob", "/meta")
	s := New(tbl, nil)

	calls := 0
	for i := 0; i < 3; i++ {
		if err := s.Tick(context.Background(), i, func(_ context.Context, _ int) error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (ckptCount 1..3 doesn't coincide with interval 5)", calls)
	}
}

// A notification regulating level 4 must change which level the scheduler
// actually fires, end to end: base L4 interval 30, a matching notification
// at minute 1 halves it to 15, and the tick at ckptCount 15 selects level
// 4 where the unregulated table never would.
func TestTick_RegulatedLevel4FiresAheadOfBaseCadence(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "notifications.log")
	// component=1, event=03, count=001 matches the default rule targeting
	// level 4 with freq_multiplier 2 and a 30-minute window.
	if err := os.WriteFile(logPath, []byte("2026-08-01T00:00:00|103001|correctable memory errors\n"), 0o644); err != nil {
		t.Fatalf("writing notification log: %v", err)
	}

	tbl := level.NewTable([5]int{0, 7, 9, 11, 30}, false, false, "/ckpt", "/glob", "/meta")
	s := New(tbl, notify.New(logPath, notify.DefaultRules()))

	var fired []int
	for minute := 1; minute <= 15; minute++ {
		if err := s.Tick(context.Background(), minute, func(_ context.Context, lvl int) error {
			fired = append(fired, lvl)
			return nil
		}); err != nil {
			t.Fatalf("Tick(minute %d): %v", minute, err)
		}
	}

	if len(fired) == 0 || fired[len(fired)-1] != 4 {
		t.Fatalf("fired = %v, want the tick at ckptCount 15 to select level 4 under regulation", fired)
	}
	count4 := 0
	for _, l := range fired {
		if l == 4 {
			count4++
		}
	}
	if count4 != 1 {
		t.Fatalf("level 4 fired %d times over 15 ticks, want exactly once (at the regulated interval)", count4)
	}
}

func TestTick_PropagatesCheckpointError(t *testing.T) {
	tbl := level.NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")
	s := New(tbl, nil)
	wantErr := context.Canceled

	err := s.Tick(context.Background(), 0, func(_ context.Context, _ int) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Tick error = %v, want %v", err, wantErr)
	}
}
