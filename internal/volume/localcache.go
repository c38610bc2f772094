package volume

// LocalCache memoizes decompressed chunks for a single worker. Each worker
// owns exactly one cache for its lifetime; caches are never shared or
// migrated between workers, which keeps the hot read path free of
// cross-thread synchronization. Workers reading the same compressed chunk
// concurrently each decompress their own copy; the duplicated work buys zero
// contention. A cache has no eviction policy of its own: its entries are
// bounded by the chunks a worker touches per cycle and it is drained back
// into the store after each batch.
type LocalCache[V Voxel] struct {
	chunks map[ChunkKey]*Chunk[V]
}

func NewLocalCache[V Voxel]() *LocalCache[V] {
	return &LocalCache[V]{chunks: make(map[ChunkKey]*Chunk[V])}
}

func (c *LocalCache[V]) Len() int { return len(c.chunks) }

// Drain removes and returns all cached chunks.
func (c *LocalCache[V]) Drain() []*Chunk[V] {
	out := make([]*Chunk[V], 0, len(c.chunks))
	for _, ch := range c.chunks {
		out = append(out, ch)
	}
	c.chunks = make(map[ChunkKey]*Chunk[V])
	return out
}

// Reader reads chunks from a store through a worker's local cache. Readers
// are cheap values created per batch; they never write to the shared store
// and never update LRU recency.
type Reader[V Voxel] struct {
	store *Store[V]
	cache *LocalCache[V]
}

// Reader returns a read view over the store backed by the given local cache.
func (s *Store[V]) Reader(cache *LocalCache[V]) Reader[V] {
	return Reader[V]{store: s, cache: cache}
}

// Chunk returns the chunk at key, or nil if absent from the store. Live
// chunks are returned directly (the store does not mutate during a batch);
// compressed chunks are decompressed into the local cache on first access.
func (r Reader[V]) Chunk(key ChunkKey) (*Chunk[V], error) {
	if ch, ok := r.cache.chunks[key]; ok {
		return ch, nil
	}
	live, payload := r.store.peek(key)
	if live != nil {
		return live, nil
	}
	if payload == nil {
		return nil, nil
	}
	data, err := r.store.codec.Decompress(payload, r.store.edge*r.store.edge*r.store.edge)
	if err != nil {
		return nil, err
	}
	ch := &Chunk[V]{Key: key, Edge: r.store.edge, Data: data}
	r.cache.chunks[key] = ch
	return ch, nil
}
