// Package erasure implements the Reed-Solomon encoding used by Level 3
// post-processing. The blob being encoded is one rank's checkpoint file,
// split into data and parity shards that each carry a checksum sidecar, so
// a missing or silently corrupted shard is detected and repaired on
// rebuild as long as the losses stay within the parity budget. The package
// does not place shards on other group members; ErasurePostProcessor
// writes all of a rank's shards under that rank's own path.
package erasure

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// ShardMeta is the per-shard sidecar persisted under the level's meta_dir:
// the number of zero bytes Encode appended so the checkpoint split evenly
// across the group, and the shard's checksum at write time.
type ShardMeta struct {
	Pad      int
	Checksum [md5.Size]byte
}

// MetaSize is the marshaled ShardMeta length: one pad byte plus the checksum.
const MetaSize = 1 + md5.Size

// Marshal renders m in the on-disk layout.
func (m ShardMeta) Marshal() []byte {
	b := make([]byte, MetaSize)
	b[0] = byte(m.Pad)
	copy(b[1:], m.Checksum[:])
	return b
}

// ParseShardMeta reads back what Marshal wrote.
func ParseShardMeta(b []byte) (ShardMeta, error) {
	if len(b) != MetaSize {
		return ShardMeta{}, fmt.Errorf("erasure: shard metadata is %d bytes, want %d", len(b), MetaSize)
	}
	m := ShardMeta{Pad: int(b[0])}
	copy(m.Checksum[:], b[1:])
	return m, nil
}

// Group is the Reed-Solomon encoder/decoder for one checkpoint group:
// dataShards is normally the number of application ranks in the group and
// parityShards the number of simultaneous member losses the group must
// survive. Safe for concurrent use; a head can serve two groups at once on
// a multi-head node.
type Group struct {
	dataShards   int
	parityShards int

	mu  sync.Mutex
	enc reedsolomon.Encoder
}

// New builds a Group. dataShards+parityShards may not exceed 256, a limit
// of the underlying Galois field.
func New(dataShards, parityShards int) (*Group, error) {
	if dataShards+parityShards > 256 {
		return nil, fmt.Errorf("erasure: %d total shards exceeds the 256-shard field limit", dataShards+parityShards)
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Group{dataShards: dataShards, parityShards: parityShards, enc: enc}, nil
}

// Encode splits one rank's checkpoint bytes into data+parity shards and
// returns them alongside the metadata each shard must be persisted with.
func (g *Group) Encode(data []byte) ([][]byte, []ShardMeta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	shards, err := g.enc.Split(data)
	if err != nil {
		return nil, nil, err
	}
	if err := g.enc.Encode(shards); err != nil {
		return nil, nil, err
	}

	pad := 0
	if r := len(data) % g.dataShards; r != 0 {
		pad = g.dataShards - r
	}
	metas := make([]ShardMeta, len(shards))
	for i, s := range shards {
		metas[i] = ShardMeta{Pad: pad, Checksum: md5.Sum(s)}
	}
	return shards, metas, nil
}

// Rebuild restores the original checkpoint bytes from whatever survived on
// disk. A shard counts as lost when it is nil (its member's file is gone)
// or when its checksum no longer matches metas (silent corruption); both
// draw on the same parity budget. Returns the data plus the indices of the
// shards that had to be reconstructed, so the caller can rewrite their
// files.
func (g *Group) Rebuild(shards [][]byte, metas []ShardMeta) ([]byte, []int, error) {
	if len(shards) == 0 || len(shards) != len(metas) {
		return nil, nil, fmt.Errorf("erasure: %d shards with %d metadata records", len(shards), len(metas))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var rebuilt []int
	for i, s := range shards {
		if s == nil {
			rebuilt = append(rebuilt, i)
			continue
		}
		if md5.Sum(s) != metas[i].Checksum {
			shards[i] = nil
			rebuilt = append(rebuilt, i)
		}
	}

	if len(rebuilt) > 0 {
		if err := g.enc.Reconstruct(shards); err != nil {
			return nil, nil, fmt.Errorf("erasure: %d shards lost or corrupt, reconstruction failed: %w", len(rebuilt), err)
		}
	}
	if ok, err := g.enc.Verify(shards); err != nil || !ok {
		return nil, nil, fmt.Errorf("erasure: shards fail parity verification after rebuild (err=%v)", err)
	}

	var buf bytes.Buffer
	if err := g.enc.Join(&buf, shards, len(shards[0])*g.dataShards); err != nil {
		return nil, nil, fmt.Errorf("erasure: join failed: %w", err)
	}
	data := buf.Bytes()
	return data[:len(data)-metas[0].Pad], rebuilt, nil
}
