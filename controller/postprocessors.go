package controller

import (
	"context"
	"fmt"

	"github.com/openhpc/mlcr/archive"
	"github.com/openhpc/mlcr/erasure"
	"github.com/openhpc/mlcr/fsio"
	core "github.com/openhpc/mlcr/internal/core"
	"github.com/openhpc/mlcr/registry"
	"github.com/openhpc/mlcr/writer"
)

// LocalCopyPostProcessor implements L1: local copy only, nothing more. The
// Writer already placed the durable bytes on node-local disk, so Process
// exists only to confirm the file landed.
type LocalCopyPostProcessor struct {
	FileIO fsio.FileIO
}

func (p *LocalCopyPostProcessor) Process(ctx context.Context, groupID, rank, ckptID int, path string, _ *registry.Registry) error {
	if !p.FileIO.Exists(ctx, path) {
		return fmt.Errorf("local copy missing at %s", path)
	}
	return nil
}

// PartnerCopyPostProcessor implements L2: partner-copy across a sibling
// rank in the group. It duplicates the rank's checkpoint bytes under its
// partner's slot in the same tier directory so either rank's loss still
// leaves one surviving copy.
type PartnerCopyPostProcessor struct {
	FileIO    fsio.FileIO
	Dir       string
	Level     int
	GroupSize int
}

func (p *PartnerCopyPostProcessor) Process(ctx context.Context, groupID, rank, ckptID int, path string, _ *registry.Registry) error {
	data, err := p.FileIO.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("reading %s for partner copy: %w", path, err)
	}

	partner := partnerRank(rank, p.GroupSize)
	dest := writer.Path(p.Dir, p.Level, groupID, partner, ckptID) + ".partner-of-" + fmt.Sprint(rank)
	return p.FileIO.WriteFile(ctx, dest, data, 0o644)
}

func partnerRank(rank, groupSize int) int {
	if groupSize <= 1 {
		return rank
	}
	return (rank + 1) % groupSize
}

// ErasurePostProcessor implements L3: Reed-Solomon encoding of this rank's
// checkpoint file. It encodes the file into shards, writes each shard next
// to the checkpoint under Dir and each shard's metadata under MetaDir, from
// which erasure.Group.Rebuild can reconstruct a missing or corrupted shard.
// All shards stay under this rank's path; none is sent to another group
// member.
type ErasurePostProcessor struct {
	FileIO  fsio.FileIO
	Group   *erasure.Group
	Dir     string
	MetaDir string
	Level   int
}

func (p *ErasurePostProcessor) Process(ctx context.Context, groupID, rank, ckptID int, path string, _ *registry.Registry) error {
	data, err := p.FileIO.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("reading %s for erasure encode: %w", path, err)
	}

	shards, metas, err := p.Group.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	for i, shard := range shards {
		shardPath := fmt.Sprintf("%s.shard%d", writer.Path(p.Dir, p.Level, groupID, rank, ckptID), i)
		metaPath := fmt.Sprintf("%s.shard%d.meta", writer.Path(p.MetaDir, p.Level, groupID, rank, ckptID), i)
		if err := p.FileIO.WriteFile(ctx, shardPath, shard, 0o644); err != nil {
			return fmt.Errorf("writing shard %d: %w", i, err)
		}
		if err := p.FileIO.WriteFile(ctx, metaPath, metas[i].Marshal(), 0o644); err != nil {
			return fmt.Errorf("writing shard %d metadata: %w", i, err)
		}
	}
	return nil
}

// ArchivePostProcessor implements L4, staging the checkpoint into archival
// storage by delegating to an archive.Mover. Each rank sleeps a short
// random multiple of the jitter unit first so a large job does not present
// every rank's archival write to the parallel filesystem in the same
// instant.
type ArchivePostProcessor struct {
	Mover archive.Mover
	Level int
}

func (p *ArchivePostProcessor) Process(ctx context.Context, groupID, rank, ckptID int, path string, _ *registry.Registry) error {
	core.RandomSleep(ctx)
	key := fmt.Sprintf("L%d/%d/rank-%d-ckpt-%d", p.Level, groupID, rank, ckptID)
	return p.Mover.Promote(ctx, path, key)
}
