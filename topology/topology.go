// Package topology models the process-group view. Constructing it from a
// real launcher (MPI rank, node list, etc.) belongs to the deployment;
// this package supplies the immutable value type plus a single-process
// default builder so the rest of the library, the test suite, and
// cmd/mlcrdemo have something concrete to run against.
package topology

import "fmt"

// View is the immutable per-rank topology snapshot. It never changes
// after Init, so it is passed by value everywhere.
type View struct {
	MyRank    int
	SplitRank int // rank used in checkpoint file names and mailboxes; Build sets it to MyRank, heads are not renumbered out
	NbProc    int
	AmIAHead  bool
	HeadRank  int
	GroupID   int
	NbHeads   int
	GroupSize int // ranks in this group, the head included; 1 when heads are disabled
}

// Build partitions nbProc ranks into groups of groupSize, reserving the
// last rank of each group as the group's dedicated head when headEnabled
// is true. When headEnabled is false every rank is its own head (AmIAHead
// is always false and HeadRank equals the rank itself), which degrades
// the head protocol to a same-process call.
func Build(myRank, nbProc, groupSize int, headEnabled bool) (View, error) {
	if nbProc <= 0 {
		return View{}, fmt.Errorf("topology: nbProc must be positive, got %d", nbProc)
	}
	if groupSize <= 0 {
		groupSize = nbProc
	}
	if myRank < 0 || myRank >= nbProc {
		return View{}, fmt.Errorf("topology: myRank %d out of range [0,%d)", myRank, nbProc)
	}

	groupID := myRank / groupSize
	groupStart := groupID * groupSize
	groupEnd := groupStart + groupSize
	if groupEnd > nbProc {
		groupEnd = nbProc
	}
	headRank := groupEnd - 1

	nbGroups := (nbProc + groupSize - 1) / groupSize

	v := View{
		MyRank:    myRank,
		SplitRank: myRank,
		NbProc:    nbProc,
		GroupID:   groupID,
		NbHeads:   nbGroups,
		GroupSize: groupEnd - groupStart,
	}

	if !headEnabled {
		v.HeadRank = myRank
		v.NbHeads = nbProc
		v.GroupSize = 1
		return v, nil
	}

	v.HeadRank = headRank
	v.AmIAHead = myRank == headRank
	return v, nil
}
