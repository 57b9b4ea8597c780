// Package registry implements the protected-variable registry: the map
// from a user-chosen dataset id to the memory region, count, and type that
// together describe what a checkpoint persists. It is deliberately a flat,
// linearly-scanned structure; the registry is small, hundreds of entries
// at most.
package registry

import (
	"sync"

	core "github.com/openhpc/mlcr/internal/core"
)

// MaxDatasets bounds the number of datasets one rank may register.
const MaxDatasets = 512

// Kind tags the primitive element types so callers (notably package inject)
// can specialize on float/double without relying on magic type ids.
type Kind int

const (
	KindComposite Kind = iota
	KindChar
	KindShort
	KindInt
	KindLong
	KindUChar
	KindUShort
	KindUInt
	KindULong
	KindFloat
	KindDouble
	KindLongDouble
)

// TypeDescriptor is one element type: size is the sole semantic attribute
// the library interprets; payloads are opaque byte runs.
type TypeDescriptor struct {
	ID        int
	SizeBytes int
	Kind      Kind
}

// Dataset is one protected variable.
type Dataset struct {
	ID         int
	Ptr        []byte // non-owning view into application memory
	Count      int64
	Type       TypeDescriptor
	EleSize    int
	TotalBytes int64
}

// Registry is the per-rank table of protected datasets.
type Registry struct {
	mu       sync.Mutex
	datasets []Dataset
	nbTypes  int
	ckptSize int64
}

// New returns an empty registry whose low type ids are reserved, in order,
// for the fixed primitive types (char, short, int, long, the unsigned
// variants, float, double, long double). Only the id counter is kept; the
// registry does not store type descriptors.
func New() *Registry {
	r := &Registry{}
	for _, sz := range []struct {
		kind Kind
		size int
	}{
		{KindChar, 1}, {KindShort, 2}, {KindInt, 4}, {KindLong, 8},
		{KindUChar, 1}, {KindUShort, 2}, {KindUInt, 4}, {KindULong, 8},
		{KindFloat, 4}, {KindDouble, 8}, {KindLongDouble, 16},
	} {
		r.registerType(sz.kind, sz.size)
	}
	return r
}

func (r *Registry) registerType(kind Kind, size int) TypeDescriptor {
	t := TypeDescriptor{ID: r.nbTypes, SizeBytes: size, Kind: kind}
	r.nbTypes++
	return t
}

// InitType assigns the next free type id and returns a descriptor carrying
// size. size must be positive; the library otherwise places no constraint
// on it.
func (r *Registry) InitType(size int) TypeDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerType(KindComposite, size)
}

// NbTypes returns the number of type descriptors registered so far.
func (r *Registry) NbTypes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nbTypes
}

// Protect registers or updates a protected dataset. Re-registering an
// existing id is idempotent: it updates ptr/count/type in place and
// adjusts the running ckptSize aggregate by new_total - old_total.
// Returns core.RegistryFull when the table is full and id is new.
func (r *Registry) Protect(id int, ptr []byte, count int64, t TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := int64(t.SizeBytes) * count
	for i := range r.datasets {
		if r.datasets[i].ID == id {
			prevTotal := r.datasets[i].TotalBytes
			r.datasets[i].Ptr = ptr
			r.datasets[i].Count = count
			r.datasets[i].Type = t
			r.datasets[i].EleSize = t.SizeBytes
			r.datasets[i].TotalBytes = total
			r.ckptSize += total - prevTotal
			return nil
		}
	}

	if len(r.datasets) >= MaxDatasets {
		return core.NotSuccess(core.RegistryFull, errTooMany, id, 0)
	}

	r.datasets = append(r.datasets, Dataset{
		ID:         id,
		Ptr:        ptr,
		Count:      count,
		Type:       t,
		EleSize:    t.SizeBytes,
		TotalBytes: total,
	})
	r.ckptSize += total
	return nil
}

var errTooMany = tooManyError{}

type tooManyError struct{}

func (tooManyError) Error() string { return "too many variables registered" }

// CkptSize returns the sum of all registered datasets' TotalBytes, the
// exact size of the file a checkpoint of this registry produces.
func (r *Registry) CkptSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ckptSize
}

// NbVar returns the number of registered datasets.
func (r *Registry) NbVar() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.datasets)
}

// Datasets returns a snapshot of the registry in registration order, the
// order the Writer serializes them in.
func (r *Registry) Datasets() []Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dataset, len(r.datasets))
	copy(out, r.datasets)
	return out
}

// Get returns the dataset registered under id, if any.
func (r *Registry) Get(id int) (Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}
