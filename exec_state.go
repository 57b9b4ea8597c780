package mlcr

import "time"

// ExecState is the per-rank execution state: the current checkpoint's
// identity, the cadence counters, and the registry aggregates. It lives
// as a plain field on Facade rather than package-level state so multiple
// contexts can coexist in one process.
type ExecState struct {
	CkptID         int
	CkptLevel      int
	LastCkptLevel  int
	WasLastOffline bool
	CkptSize       int64
	CkptCount      int
	NextMinute     int
	LastMinute     int
	BaseInterval   int
	NbVars         int
	NbTypes        int
	Reco           bool
	IterTime       time.Duration
}
