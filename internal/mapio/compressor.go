package mapio

import "voxelgrid.dev/internal/volume"

// CacheConfig bounds the decompressed working set.
type CacheConfig struct {
	// MaxLiveChunks is the decompressed-cache capacity. The live set may
	// exceed it transiently; the compressor works it back down each cycle.
	MaxLiveChunks int
	// MaxCompressedPerCyclePerWorker caps eviction batch size so one cycle
	// never stalls on compressing an arbitrarily large backlog.
	MaxCompressedPerCyclePerWorker int
}

// DefaultCacheConfig assumes chunks in the 4-16KiB range and reserves on the
// order of a gigabyte for the live set.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxLiveChunks:                  100000,
		MaxCompressedPerCyclePerWorker: 50,
	}
}

// CompressLRU runs one eviction pass: while the live chunk count exceeds
// capacity, detach least-recently-used chunks (up to the per-cycle bound),
// compress them in parallel across workers, and reinsert the payloads
// serially. Compression only changes representation — a later read
// decompresses transparently — so eviction never loses data. Returns the
// number of chunks evicted; fewer LRU candidates than computed is a smaller
// batch, not an error.
func CompressLRU[V volume.Voxel](store *volume.Store[V], cfg CacheConfig, workers int) int {
	live := store.LenLive()
	if live <= cfg.MaxLiveChunks {
		return 0
	}

	overgrowth := live - cfg.MaxLiveChunks
	batch := overgrowth
	if limit := workers * cfg.MaxCompressedPerCyclePerWorker; batch > limit {
		batch = limit
	}

	chunks := make([]*volume.Chunk[V], 0, batch)
	for i := 0; i < batch; i++ {
		ch, ok := store.RemoveLRU()
		if !ok {
			break
		}
		chunks = append(chunks, ch)
	}

	payloads := make([][]byte, len(chunks))
	codec := store.Codec()
	ForkJoin(workers, len(chunks), func(_, i int) {
		payloads[i] = codec.Compress(chunks[i].Data)
	})

	for i, ch := range chunks {
		store.InsertCompressed(ch.Key, payloads[i])
	}
	return len(chunks)
}
