package core

import (
	"context"
	"math/rand"
	"time"
)

// Archival staggering. Every rank of a large job reaches its Level 4
// checkpoint at the same timestep, and a parallel filesystem served the
// whole job's files in one instant degrades for everyone. A small random
// delay per rank spreads the burst; it is seeded per process so ranks
// launched together pick different offsets.
var staggerRNG = rand.New(rand.NewSource(time.Now().UnixNano()))

const staggerUnit = 25 * time.Millisecond

// RandomSleep delays between one and four stagger units (25-100ms) before
// an archival write, or returns early if ctx is done.
func RandomSleep(ctx context.Context) {
	Sleep(ctx, time.Duration(staggerRNG.Intn(4)+1)*staggerUnit)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	<-t.Done()
}
