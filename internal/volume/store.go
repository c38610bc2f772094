package volume

import (
	"container/list"
	"fmt"
	"sort"
	"sync"
)

// StoreConfig configures a compressible chunk store.
type StoreConfig[V Voxel] struct {
	// ChunkEdge is the side length of one cubic chunk. It must be a power of
	// two so per-chunk occupancy octrees subdivide evenly.
	ChunkEdge int
	// Ambient is the voxel value chunks are created with and the value
	// reported for positions in chunks that have never been written.
	Ambient V
	// DecodeVoxel reconstructs a voxel from its stored type index.
	DecodeVoxel func(uint16) V
}

// Store holds every chunk of a volume in one of two states: live
// (decompressed, directly readable, tracked in LRU order) or compressed
// (opaque payload). Mutating methods and recency updates are serialized by
// the coordinator; Reader grants workers contention-free concurrent reads
// during a batch.
type Store[V Voxel] struct {
	edge    int
	ambient V
	codec   *Codec[V]

	mu         sync.RWMutex
	live       map[ChunkKey]*list.Element // element value is *Chunk[V]
	recency    *list.List                 // front = most recently used
	compressed map[ChunkKey][]byte
}

func NewStore[V Voxel](cfg StoreConfig[V]) (*Store[V], error) {
	if cfg.ChunkEdge < 2 || cfg.ChunkEdge&(cfg.ChunkEdge-1) != 0 {
		return nil, fmt.Errorf("store: chunk edge %d is not a power of two >= 2", cfg.ChunkEdge)
	}
	codec, err := NewCodec(cfg.DecodeVoxel)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store[V]{
		edge:       cfg.ChunkEdge,
		ambient:    cfg.Ambient,
		codec:      codec,
		live:       make(map[ChunkKey]*list.Element),
		recency:    list.New(),
		compressed: make(map[ChunkKey][]byte),
	}, nil
}

func (s *Store[V]) Edge() int        { return s.edge }
func (s *Store[V]) Ambient() V       { return s.ambient }
func (s *Store[V]) Codec() *Codec[V] { return s.codec }

// Get returns the chunk at key, or nil if the key has never been written.
// A compressed chunk is decompressed and promoted to live. The access
// refreshes the chunk's LRU recency.
func (s *Store[V]) Get(key ChunkKey) (*Chunk[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store[V]) getLocked(key ChunkKey) (*Chunk[V], error) {
	if el, ok := s.live[key]; ok {
		s.recency.MoveToFront(el)
		return el.Value.(*Chunk[V]), nil
	}
	payload, ok := s.compressed[key]
	if !ok {
		return nil, nil
	}
	data, err := s.codec.Decompress(payload, s.edge*s.edge*s.edge)
	if err != nil {
		return nil, fmt.Errorf("store: chunk %v: %w", key, err)
	}
	ch := &Chunk[V]{Key: key, Edge: s.edge, Data: data}
	delete(s.compressed, key)
	s.live[key] = s.recency.PushFront(ch)
	return ch, nil
}

// GetOrCreate returns the chunk at key, materializing it with the ambient
// value if it does not exist.
func (s *Store[V]) GetOrCreate(key ChunkKey) (*Chunk[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.getLocked(key)
	if err != nil || ch != nil {
		return ch, err
	}
	ch = NewChunk(key, s.edge, s.ambient)
	s.live[key] = s.recency.PushFront(ch)
	return ch, nil
}

// WriteRegion overwrites a chunk-local region with values in x-fastest
// order, creating the chunk if needed.
func (s *Store[V]) WriteRegion(key ChunkKey, region Extent, values []V) error {
	if region.Size() != len(values) {
		return fmt.Errorf("store: region size %d != %d values", region.Size(), len(values))
	}
	ch, err := s.GetOrCreate(key)
	if err != nil {
		return err
	}
	ch.SetRegion(region, values)
	return nil
}

// Remove deletes the chunk at key in either state. Removing an absent key is
// a no-op: the empty-chunk remover may race with a store that already shrank.
func (s *Store[V]) Remove(key ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.live[key]; ok {
		s.recency.Remove(el)
		delete(s.live, key)
		return true
	}
	if _, ok := s.compressed[key]; ok {
		delete(s.compressed, key)
		return true
	}
	return false
}

// RemoveLRU detaches the least recently used live chunk from the store and
// returns it. The caller compresses and reinserts it via InsertCompressed.
func (s *Store[V]) RemoveLRU() (*Chunk[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el := s.recency.Back()
	if el == nil {
		return nil, false
	}
	ch := el.Value.(*Chunk[V])
	s.recency.Remove(el)
	delete(s.live, ch.Key)
	return ch, true
}

// InsertCompressed stores a compressed payload for key, replacing any live
// chunk. Used by the compressor's serialized reinsert step.
func (s *Store[V]) InsertCompressed(key ChunkKey, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.live[key]; ok {
		s.recency.Remove(el)
		delete(s.live, key)
	}
	s.compressed[key] = payload
}

// InsertLive promotes an already-decompressed chunk into the live set,
// replacing the compressed payload. If the key is already live or no longer
// present in the store at all, the copy is discarded. Used when worker-local
// caches are flushed back after a batch.
func (s *Store[V]) InsertLive(ch *Chunk[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[ch.Key]; ok {
		return false
	}
	if _, ok := s.compressed[ch.Key]; !ok {
		return false
	}
	delete(s.compressed, ch.Key)
	s.live[ch.Key] = s.recency.PushFront(ch)
	return true
}

// LenLive returns the number of decompressed chunks.
func (s *Store[V]) LenLive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// LenCompressed returns the number of compressed chunks.
func (s *Store[V]) LenCompressed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.compressed)
}

// Keys returns every chunk key in the store, in deterministic order.
func (s *Store[V]) Keys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.live)+len(s.compressed))
	for k := range s.live {
		keys = append(keys, k)
	}
	for k := range s.compressed {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

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

// ForEach visits every chunk's raw data in deterministic key order,
// decompressing compressed chunks into transient copies without promoting
// them. Used for snapshot export.
func (s *Store[V]) ForEach(fn func(key ChunkKey, data []V) error) error {
	for _, key := range s.Keys() {
		s.mu.RLock()
		var data []V
		var payload []byte
		if el, ok := s.live[key]; ok {
			data = el.Value.(*Chunk[V]).Data
		} else {
			payload = s.compressed[key]
		}
		s.mu.RUnlock()

		if data == nil {
			if payload == nil {
				continue // removed concurrently
			}
			var err error
			data, err = s.codec.Decompress(payload, s.edge*s.edge*s.edge)
			if err != nil {
				return fmt.Errorf("store: chunk %v: %w", key, err)
			}
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}

// peek returns the chunk at key without touching recency. Exactly one of the
// returns is non-nil when the key exists. Worker reads go through here so the
// hot read path takes no exclusive lock.
func (s *Store[V]) peek(key ChunkKey) (*Chunk[V], []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if el, ok := s.live[key]; ok {
		return el.Value.(*Chunk[V]), nil
	}
	return nil, s.compressed[key]
}
