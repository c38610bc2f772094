// Package mapio implements the write and maintenance paths of a voxel map:
// double-buffered edit accumulation with dirty-chunk tracking, world-space
// edit splitting, empty-chunk removal, worker-local cache flushing, and
// LRU eviction with background compression.
package mapio

import (
	"fmt"
	"sort"
	"sync"

	"voxelgrid.dev/internal/volume"
)

// Edit is one pending write: a chunk-local region and its replacement
// values in x-fastest order.
type Edit[V volume.Voxel] struct {
	Region volume.Extent
	Values []V
}

// DirtyChunks is the set of chunk keys whose contents changed in the most
// recently completed flush. Produced once per cycle, consumed exactly once
// by index regeneration.
type DirtyChunks map[volume.ChunkKey]struct{}

// Keys returns the dirty keys in deterministic order.
func (d DirtyChunks) Keys() []volume.ChunkKey {
	keys := make([]volume.ChunkKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return keys
}

// EditBuffer accumulates voxel edits from any number of concurrent writers.
// It is double buffered: Submit appends to the front buffer, Flush swaps
// buffers and merges the back buffer into the store. Writers submitting
// during a merge land in the new front buffer and are never blocked; their
// edits belong to the next cycle.
type EditBuffer[V volume.Voxel] struct {
	mu    sync.Mutex
	front map[volume.ChunkKey][]Edit[V]
}

func NewEditBuffer[V volume.Voxel]() *EditBuffer[V] {
	return &EditBuffer[V]{front: make(map[volume.ChunkKey][]Edit[V])}
}

// Submit queues an edit against a chunk-local region. values are consumed in
// x-fastest order and must match the region's size.
func (b *EditBuffer[V]) Submit(key volume.ChunkKey, region volume.Extent, values []V) error {
	if region.Size() != len(values) {
		return fmt.Errorf("edit for %v: region size %d != %d values", key, region.Size(), len(values))
	}
	b.mu.Lock()
	b.front[key] = append(b.front[key], Edit[V]{Region: region, Values: values})
	b.mu.Unlock()
	return nil
}

// Pending returns the number of chunks with queued edits.
func (b *EditBuffer[V]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.front)
}

// Flush swaps buffers, merges every queued edit into the store, and returns
// the deduplicated set of chunk keys touched. Edits to chunks that do not
// exist yet create them filled with the ambient value. The lock is held only
// for the swap, so the merge never stalls writers.
func (b *EditBuffer[V]) Flush(store *volume.Store[V]) (DirtyChunks, error) {
	b.mu.Lock()
	back := b.front
	b.front = make(map[volume.ChunkKey][]Edit[V])
	b.mu.Unlock()

	dirty := make(DirtyChunks, len(back))
	for key, edits := range back {
		for _, e := range edits {
			if err := store.WriteRegion(key, e.Region, e.Values); err != nil {
				return dirty, fmt.Errorf("merge edit for %v: %w", key, err)
			}
		}
		dirty[key] = struct{}{}
	}
	return dirty, nil
}
