// Package inject implements the optional bit-flip fault injector, used to
// drive silent-data-corruption experiments against a running registry.
// Never invoked on production paths. The registry's Kind tag lets the
// injector refuse datasets that are not float or double.
package inject

import (
	"time"

	core "github.com/openhpc/mlcr/internal/core"
	"github.com/openhpc/mlcr/registry"
)

// Injector gates BitFlip by rank, elapsed time since the last injection,
// and a remaining budget.
type Injector struct {
	Rank         int
	TargetRank   int
	MinInterval  time.Duration
	Budget       int
	lastInjected time.Time
	spent        int
}

// NewInjector builds an Injector that only fires on targetRank, waits at
// least minInterval between injections, and stops after budget injections.
func NewInjector(rank, targetRank int, minInterval time.Duration, budget int) *Injector {
	return &Injector{Rank: rank, TargetRank: targetRank, MinInterval: minInterval, Budget: budget}
}

// BitFlip XORs one bit at bitPos into element elementIndex of the dataset
// identified by datasetID. Supported for float and double element types
// only; any other kind, an out-of-range bit position, a rank mismatch, an
// elapsed-time gate miss, or an exhausted budget returns a NotSuccess
// error and performs no write.
func (inj *Injector) BitFlip(reg *registry.Registry, datasetID, elementIndex, bitPos int) error {
	if inj.Rank != inj.TargetRank {
		return core.NotSuccess(core.BadArgument, errNotTargetRank, datasetID, 0)
	}
	if inj.spent >= inj.Budget {
		return core.NotSuccess(core.BadArgument, errBudgetExhausted, datasetID, 0)
	}
	if !inj.lastInjected.IsZero() && time.Since(inj.lastInjected) < inj.MinInterval {
		return core.NotSuccess(core.BadArgument, errTooSoon, datasetID, 0)
	}

	d, ok := reg.Get(datasetID)
	if !ok {
		return core.NotSuccess(core.BadArgument, errNoSuchDataset, datasetID, 0)
	}
	if d.Type.Kind != registry.KindFloat && d.Type.Kind != registry.KindDouble {
		return core.NotSuccess(core.BadArgument, errUnsupportedKind, datasetID, 0)
	}
	if elementIndex < 0 || int64(elementIndex) >= d.Count {
		return core.NotSuccess(core.BadArgument, errElementOutOfRange, datasetID, 0)
	}
	if bitPos < 0 || bitPos >= 8*d.EleSize {
		return core.NotSuccess(core.BadArgument, errBitOutOfRange, datasetID, 0)
	}

	offset := elementIndex * d.EleSize
	buf := d.Ptr[offset : offset+d.EleSize]
	byteIdx, bitIdx := bitPos/8, uint(bitPos%8)
	buf[byteIdx] ^= 1 << bitIdx

	inj.lastInjected = time.Now()
	inj.spent++
	return nil
}