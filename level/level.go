// Package level implements the per-tier checkpoint policy: interval,
// inline-vs-offload, and directory configuration for each of the four
// durability tiers, plus the highest-coincident-tier selection rule.
package level

// Tier identifies one of the four durability classes.
type Tier int

const (
	Tier1 Tier = 1 // local copy
	Tier2 Tier = 2 // partner-copy
	Tier3 Tier = 3 // group-encoded (Reed-Solomon/XOR)
	Tier4 Tier = 4 // parallel filesystem / archival
)

// Policy is one tier's configuration.
type Policy struct {
	BaseInterval    int // minutes
	CurrentInterval int // minutes; always <= BaseInterval, regulation never relaxes frequency
	IsInline        bool
	Dir             string
	MetaDir         string
	RegulationStart int
	RegulationStop  int
	// UseDirectIO selects fsio.NewDirectFileIO for this tier's writes
	// instead of the buffered default. Set for Tier1 only in the default
	// configuration.
	UseDirectIO bool
}

// Table holds the four tiers' policies, indexed 1..4 (index 0 unused to
// keep tier numbers self-documenting at call sites).
type Table [5]Policy

// NewTable returns a table with level 4 forced inline (the archival tier
// on the parallel filesystem is never offloaded) and CurrentInterval
// initialized to BaseInterval for every tier.
func NewTable(base [5]int, inlineL2, inlineL3 bool, ckptDir, globDir, metaDir string) Table {
	var t Table
	t[1] = Policy{BaseInterval: base[1], CurrentInterval: base[1], IsInline: true, Dir: ckptDir, MetaDir: metaDir, UseDirectIO: true}
	t[2] = Policy{BaseInterval: base[2], CurrentInterval: base[2], IsInline: inlineL2, Dir: ckptDir, MetaDir: metaDir}
	t[3] = Policy{BaseInterval: base[3], CurrentInterval: base[3], IsInline: inlineL3, Dir: ckptDir, MetaDir: metaDir}
	t[4] = Policy{BaseInterval: base[4], CurrentInterval: base[4], IsInline: true, Dir: globDir, MetaDir: metaDir}
	return t
}

// Select picks the level to checkpoint at: the highest tier L such that
// ckptCount mod CurrentInterval[L] == 0 wins; ok is false if none match.
// Higher tiers imply stronger durability, so when multiple tiers coincide
// the strongest is taken and the weaker is implicitly satisfied. A
// regulated CurrentInterval participates like any other, so a
// notification targeting the archival tier genuinely shortens its
// selection cadence for the regulation window.
func (t Table) Select(ckptCount int) (lvl int, ok bool) {
	lvl = -1
	for l := 1; l <= 4; l++ {
		interval := t[l].CurrentInterval
		if interval <= 0 {
			continue
		}
		if ckptCount%interval != 0 {
			continue
		}
		lvl = l
	}
	return lvl, lvl != -1
}

// Regulate applies a temporary interval reduction to tier l:
// CurrentInterval := BaseInterval / freqMultiplier, computed fresh each
// call (not mutated relatively), which is what makes the notification
// reactor idempotent across redundant deliveries.
func (t *Table) Regulate(l int, freqMultiplier int, currentMinute, durationMinutes int) {
	if l < 1 || l > 4 || freqMultiplier <= 0 {
		return
	}
	p := &t[l]
	interval := p.BaseInterval / freqMultiplier
	if interval < 1 {
		interval = 1
	}
	p.CurrentInterval = interval
	p.RegulationStart = currentMinute
	p.RegulationStop = currentMinute + durationMinutes
}

// Revert reverts any tier whose regulation window has elapsed back to its
// base interval and clears the window.
func (t *Table) Revert(currentMinute int) {
	for l := 1; l <= 4; l++ {
		p := &t[l]
		if p.RegulationStop != 0 && p.RegulationStop <= currentMinute {
			p.CurrentInterval = p.BaseInterval
			p.RegulationStart = 0
			p.RegulationStop = 0
		}
	}
}
