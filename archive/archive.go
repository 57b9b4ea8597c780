// Package archive implements the Level 4 archival movers: promoting a
// rank's surviving checkpoint into the archival tier, either a local
// PFS-style directory or an S3-compatible bucket (multipart upload above
// a size threshold).
package archive

import "context"

// Mover promotes a local checkpoint file into the archival tier.
type Mover interface {
	// Promote copies the file at localPath into archival storage under
	// archiveKey (e.g. "L4/<group>/rank-<r>-ckpt-<id>") and returns once
	// durable there.
	Promote(ctx context.Context, localPath, archiveKey string) error
}
