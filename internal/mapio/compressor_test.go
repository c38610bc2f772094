package mapio

import (
	"testing"

	"voxelgrid.dev/internal/volume"
)

func fillChunks(t *testing.T, store *volume.Store[testVoxel], n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ch, err := store.GetOrCreate(volume.ChunkKey{X: i, Y: 0, Z: 0})
		if err != nil {
			t.Fatalf("create chunk %d: %v", i, err)
		}
		ch.Set(0, 0, 0, testVoxel(1))
	}
}

func TestCompressLRU_UnderCapacityDoesNothing(t *testing.T) {
	store := newTestStore(t, 4)
	fillChunks(t, store, 5)
	cfg := CacheConfig{MaxLiveChunks: 10, MaxCompressedPerCyclePerWorker: 50}
	if n := CompressLRU(store, cfg, 4); n != 0 {
		t.Fatalf("evicted %d under capacity", n)
	}
	if store.LenLive() != 5 || store.LenCompressed() != 0 {
		t.Fatalf("store mutated: live=%d compressed=%d", store.LenLive(), store.LenCompressed())
	}
}

func TestCompressLRU_EvictsDownToCapacity(t *testing.T) {
	store := newTestStore(t, 4)
	fillChunks(t, store, 12)
	cfg := CacheConfig{MaxLiveChunks: 10, MaxCompressedPerCyclePerWorker: 50}
	if n := CompressLRU(store, cfg, 4); n != 2 {
		t.Fatalf("evicted %d, want 2", n)
	}
	if store.LenLive() != 10 || store.LenCompressed() != 2 {
		t.Fatalf("after pass: live=%d compressed=%d", store.LenLive(), store.LenCompressed())
	}

	// The oldest chunks went first, and content survives round trip.
	ch, err := store.Get(volume.ChunkKey{X: 0, Y: 0, Z: 0})
	if err != nil || ch == nil {
		t.Fatalf("evicted chunk unreadable: %v", err)
	}
	if ch.At(0, 0, 0) != 1 {
		t.Fatalf("evicted chunk lost data")
	}
}

func TestCompressLRU_PerCycleBound(t *testing.T) {
	store := newTestStore(t, 4)
	fillChunks(t, store, 20)
	cfg := CacheConfig{MaxLiveChunks: 4, MaxCompressedPerCyclePerWorker: 2}
	workers := 3
	// overgrowth is 16 but the cycle cap is workers*2 = 6.
	if n := CompressLRU(store, cfg, workers); n != 6 {
		t.Fatalf("evicted %d, want 6", n)
	}
	if store.LenLive() != 14 {
		t.Fatalf("live = %d, want 14", store.LenLive())
	}
	// Subsequent passes keep draining.
	if n := CompressLRU(store, cfg, workers); n != 6 {
		t.Fatalf("second pass evicted %d, want 6", n)
	}
}

func TestForkJoin_RunsEveryUnitOnce(t *testing.T) {
	counts := make([]int, 100)
	ForkJoin(7, len(counts), func(worker, unit int) {
		if worker < 0 || worker >= 7 {
			t.Errorf("worker id %d out of range", worker)
		}
		counts[unit]++
	})
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("unit %d ran %d times", i, c)
		}
	}
}

func TestForkJoin_ZeroUnits(t *testing.T) {
	ForkJoin(4, 0, func(worker, unit int) {
		t.Fatalf("unit ran for empty batch")
	})
}
