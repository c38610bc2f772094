package volume

import "testing"

type testVoxel uint16

func (v testVoxel) TypeIndex() int { return int(v) }

type testInfo struct {
	empty bool
}

func (i testInfo) IsEmpty() bool { return i.empty }

func newTestStore(t *testing.T, edge int) *Store[testVoxel] {
	t.Helper()
	s, err := NewStore(StoreConfig[testVoxel]{
		ChunkEdge:   edge,
		Ambient:     0,
		DecodeVoxel: func(id uint16) testVoxel { return testVoxel(id) },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestNewStore_RejectsDegenerateEdge(t *testing.T) {
	for _, edge := range []int{0, 1, 3, 12, -8} {
		_, err := NewStore(StoreConfig[testVoxel]{
			ChunkEdge:   edge,
			DecodeVoxel: func(id uint16) testVoxel { return testVoxel(id) },
		})
		if err == nil {
			t.Fatalf("edge %d: expected error", edge)
		}
	}
}

func TestStore_GetAbsentReturnsNil(t *testing.T) {
	s := newTestStore(t, 8)
	ch, err := s.Get(ChunkKey{1, 2, 3})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ch != nil {
		t.Fatalf("expected nil for never-written key")
	}
}

func TestStore_GetOrCreateFillsAmbient(t *testing.T) {
	s := newTestStore(t, 4)
	ch, err := s.GetOrCreate(ChunkKey{0, 0, 0})
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	for _, v := range ch.Data {
		if v != 0 {
			t.Fatalf("chunk not ambient-filled: %v", v)
		}
	}
	if s.LenLive() != 1 {
		t.Fatalf("live count = %d, want 1", s.LenLive())
	}
}

func TestStore_WriteRegionValidatesSize(t *testing.T) {
	s := newTestStore(t, 4)
	region := Extent{Min: Point{0, 0, 0}, Shape: Point{2, 2, 2}}
	if err := s.WriteRegion(ChunkKey{}, region, []testVoxel{1}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	values := make([]testVoxel, 8)
	for i := range values {
		values[i] = 1
	}
	if err := s.WriteRegion(ChunkKey{}, region, values); err != nil {
		t.Fatalf("write region: %v", err)
	}
	ch, _ := s.Get(ChunkKey{})
	if ch.At(1, 1, 1) != 1 || ch.At(2, 0, 0) != 0 {
		t.Fatalf("region write landed wrong: %v %v", ch.At(1, 1, 1), ch.At(2, 0, 0))
	}
}

func TestStore_RemoveLRUOrder(t *testing.T) {
	s := newTestStore(t, 4)
	a, b, c := ChunkKey{0, 0, 0}, ChunkKey{1, 0, 0}, ChunkKey{2, 0, 0}
	for _, k := range []ChunkKey{a, b, c} {
		if _, err := s.GetOrCreate(k); err != nil {
			t.Fatalf("create %v: %v", k, err)
		}
	}

	// Touch a: reads count as accesses, so b becomes the LRU.
	if _, err := s.Get(a); err != nil {
		t.Fatalf("get: %v", err)
	}

	ch, ok := s.RemoveLRU()
	if !ok || ch.Key != b {
		t.Fatalf("lru = %v, want %v", ch.Key, b)
	}
	ch, ok = s.RemoveLRU()
	if !ok || ch.Key != c {
		t.Fatalf("lru = %v, want %v", ch.Key, c)
	}
	ch, ok = s.RemoveLRU()
	if !ok || ch.Key != a {
		t.Fatalf("lru = %v, want %v", ch.Key, a)
	}
	if _, ok := s.RemoveLRU(); ok {
		t.Fatalf("expected empty LRU")
	}
}

func TestStore_CompressedRoundTrip(t *testing.T) {
	s := newTestStore(t, 4)
	key := ChunkKey{5, -3, 2}
	ch, _ := s.GetOrCreate(key)
	for i := range ch.Data {
		ch.Data[i] = testVoxel(i % 3)
	}
	want := append([]testVoxel(nil), ch.Data...)

	evicted, ok := s.RemoveLRU()
	if !ok {
		t.Fatalf("nothing to evict")
	}
	s.InsertCompressed(key, s.Codec().Compress(evicted.Data))
	if s.LenLive() != 0 || s.LenCompressed() != 1 {
		t.Fatalf("state after compress: live=%d compressed=%d", s.LenLive(), s.LenCompressed())
	}

	// A read transparently decompresses and promotes back to live.
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("get compressed: %v", err)
	}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("voxel %d: got %v want %v", i, got.Data[i], want[i])
		}
	}
	if s.LenLive() != 1 || s.LenCompressed() != 0 {
		t.Fatalf("state after promote: live=%d compressed=%d", s.LenLive(), s.LenCompressed())
	}
}

func TestReader_UsesLocalCacheForCompressed(t *testing.T) {
	s := newTestStore(t, 4)
	key := ChunkKey{1, 1, 1}
	ch, _ := s.GetOrCreate(key)
	ch.Set(0, 0, 0, 7)

	evicted, _ := s.RemoveLRU()
	s.InsertCompressed(key, s.Codec().Compress(evicted.Data))

	cache := NewLocalCache[testVoxel]()
	r := s.Reader(cache)

	got, err := r.Chunk(key)
	if err != nil {
		t.Fatalf("reader chunk: %v", err)
	}
	if got.At(0, 0, 0) != 7 {
		t.Fatalf("decompressed read wrong: %v", got.At(0, 0, 0))
	}
	if cache.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cache.Len())
	}
	// The shared store is untouched: the chunk stays compressed.
	if s.LenLive() != 0 || s.LenCompressed() != 1 {
		t.Fatalf("reader mutated store: live=%d compressed=%d", s.LenLive(), s.LenCompressed())
	}

	again, err := r.Chunk(key)
	if err != nil {
		t.Fatalf("reader chunk: %v", err)
	}
	if again != got {
		t.Fatalf("second read did not hit local cache")
	}
}

func TestStore_InsertLive(t *testing.T) {
	s := newTestStore(t, 4)
	key := ChunkKey{0, 1, 0}
	ch, _ := s.GetOrCreate(key)
	ch.Set(1, 0, 0, 9)
	evicted, _ := s.RemoveLRU()
	s.InsertCompressed(key, s.Codec().Compress(evicted.Data))

	cache := NewLocalCache[testVoxel]()
	if _, err := s.Reader(cache).Chunk(key); err != nil {
		t.Fatalf("reader: %v", err)
	}

	for _, cached := range cache.Drain() {
		if !s.InsertLive(cached) {
			t.Fatalf("flush of %v rejected", cached.Key)
		}
	}
	if s.LenLive() != 1 || s.LenCompressed() != 0 {
		t.Fatalf("state after flush: live=%d compressed=%d", s.LenLive(), s.LenCompressed())
	}

	// Removed chunks must not be resurrected by a flush.
	stale, _ := s.Get(key)
	s.Remove(key)
	if s.InsertLive(stale.Clone()) {
		t.Fatalf("flush resurrected a removed chunk")
	}
}

func TestStore_ForEachCoversBothStates(t *testing.T) {
	s := newTestStore(t, 4)
	liveKey, coldKey := ChunkKey{0, 0, 0}, ChunkKey{1, 0, 0}
	ch, _ := s.GetOrCreate(coldKey)
	ch.Set(0, 0, 0, 3)
	evicted, _ := s.RemoveLRU()
	s.InsertCompressed(coldKey, s.Codec().Compress(evicted.Data))

	ch, _ = s.GetOrCreate(liveKey)
	ch.Set(0, 0, 0, 2)

	seen := map[ChunkKey]testVoxel{}
	err := s.ForEach(func(key ChunkKey, data []testVoxel) error {
		seen[key] = data[0]
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %v", err)
	}
	if seen[liveKey] != 2 || seen[coldKey] != 3 {
		t.Fatalf("foreach saw %v", seen)
	}
	// Export does not promote compressed chunks.
	if s.LenCompressed() != 1 {
		t.Fatalf("foreach promoted a chunk")
	}
}
