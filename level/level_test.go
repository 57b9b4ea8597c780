package level

import "testing"

// Tier coincidence: with intervals L1=1, L2=2, L3=4 the highest
// coincident tier wins.
func TestSelect_TierCoincidence(t *testing.T) {
	tbl := NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")

	if lvl, ok := tbl.Select(4); !ok || lvl != 3 {
		t.Fatalf("Select(4) = (%d, %v), want (3, true)", lvl, ok)
	}
	if lvl, ok := tbl.Select(3); !ok || lvl != 1 {
		t.Fatalf("Select(3) = (%d, %v), want (1, true)", lvl, ok)
	}
}

// A regulated level-4 interval participates in selection like any other
// tier's, so a notification targeting the archival tier can genuinely
// fire it ahead of its base cadence.
func TestSelect_RegulatedLevel4Coincides(t *testing.T) {
	tbl := NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")
	tbl.Regulate(4, 2, 0, 100) // CurrentInterval[4] = 15

	if lvl, ok := tbl.Select(15); !ok || lvl != 4 {
		t.Fatalf("Select(15) = (%d, %v), want (4, true) under regulation", lvl, ok)
	}

	tbl.Revert(100)
	if lvl, ok := tbl.Select(15); !ok || lvl != 1 {
		t.Fatalf("Select(15) after revert = (%d, %v), want (1, true)", lvl, ok)
	}
}

// Regulation: base L4 interval 30, a rule with mult=2 dur=1 applied at
// minute 10 halves the interval until minute 11.
func TestRegulateAndRevert(t *testing.T) {
	tbl := NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")

	tbl.Regulate(4, 2, 10, 1)
	if tbl[4].CurrentInterval != 15 {
		t.Fatalf("CurrentInterval[4] = %d, want 15", tbl[4].CurrentInterval)
	}

	tbl.Revert(11) // minute 11 >= regulationStop(11)
	if tbl[4].CurrentInterval != 30 {
		t.Fatalf("CurrentInterval[4] after revert = %d, want 30 (base)", tbl[4].CurrentInterval)
	}
}

// Regulation is idempotent: applying the same rule twice produces the same interval.
func TestRegulate_Idempotent(t *testing.T) {
	tbl := NewTable([5]int{0, 1, 2, 4, 30}, false, false, "/ckpt", "/glob", "/meta")
	tbl.Regulate(4, 2, 10, 5)
	first := tbl[4].CurrentInterval
	tbl.Regulate(4, 2, 10, 5)
	if tbl[4].CurrentInterval != first {
		t.Fatalf("Regulate not idempotent: %d then %d", first, tbl[4].CurrentInterval)
	}
}

func TestCurrentIntervalNeverExceedsBase(t *testing.T) {
	tbl := NewTable([5]int{0, 10, 10, 10, 30}, false, false, "/ckpt", "/glob", "/meta")
	tbl.Regulate(1, 1, 0, 5) // multiplier 1 => interval stays at base, never grows
	if tbl[1].CurrentInterval > tbl[1].BaseInterval {
		t.Fatalf("CurrentInterval %d exceeds BaseInterval %d", tbl[1].CurrentInterval, tbl[1].BaseInterval)
	}
}
