package mapio

import "voxelgrid.dev/internal/volume"

// EmptyChunks queues chunk keys that index regeneration found entirely empty.
// Marked chunks are removed from the map at the end of the cycle in which
// they were marked, strictly before the next cycle's edit flush merges, so
// writes from the same cycle are never lost to removal.
type EmptyChunks struct {
	chunksToRemove []volume.ChunkKey
}

// Mark queues the chunk at key for removal.
func (e *EmptyChunks) Mark(key volume.ChunkKey) {
	e.chunksToRemove = append(e.chunksToRemove, key)
}

func (e *EmptyChunks) Len() int { return len(e.chunksToRemove) }

// RemoveEmpty drains the queue, deleting each marked chunk from the store,
// and returns how many chunks were actually removed.
func RemoveEmpty[V volume.Voxel](e *EmptyChunks, store *volume.Store[V]) int {
	removed := 0
	for _, key := range e.chunksToRemove {
		if store.Remove(key) {
			removed++
		}
	}
	e.chunksToRemove = e.chunksToRemove[:0]
	return removed
}
