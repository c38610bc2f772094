package mapio

import "voxelgrid.dev/internal/volume"

// FlushLocalCaches drains every worker's local cache into the store after a
// batch barrier, promoting chunks the workers decompressed back into the
// live set. Repeat reads of the same chunk then hit the live store, and the
// LRU sees the read as recent. Copies whose chunk is already live, or whose
// chunk was removed in the meantime, are discarded. Runs on the coordinator
// only; workers must be quiescent. Returns the number of chunks promoted.
func FlushLocalCaches[V volume.Voxel](store *volume.Store[V], caches []*volume.LocalCache[V]) int {
	flushed := 0
	for _, cache := range caches {
		if cache == nil {
			continue
		}
		for _, ch := range cache.Drain() {
			if store.InsertLive(ch) {
				flushed++
			}
		}
	}
	return flushed
}
