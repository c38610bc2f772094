package mapio

import (
	"sync"
	"testing"

	"voxelgrid.dev/internal/volume"
)

type testVoxel uint16

func (v testVoxel) TypeIndex() int { return int(v) }

func newTestStore(t *testing.T, edge int) *volume.Store[testVoxel] {
	t.Helper()
	s, err := volume.NewStore(volume.StoreConfig[testVoxel]{
		ChunkEdge:   edge,
		Ambient:     0,
		DecodeVoxel: func(id uint16) testVoxel { return testVoxel(id) },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func voxelRegion(x, y, z int) volume.Extent {
	return volume.Extent{Min: volume.Point{X: x, Y: y, Z: z}, Shape: volume.Point{X: 1, Y: 1, Z: 1}}
}

func TestEditBuffer_DirtySetComplete(t *testing.T) {
	store := newTestStore(t, 4)
	buf := NewEditBuffer[testVoxel]()

	a, b := volume.ChunkKey{X: 0, Y: 0, Z: 0}, volume.ChunkKey{X: 2, Y: 0, Z: -1}
	if err := buf.Submit(a, voxelRegion(0, 0, 0), []testVoxel{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := buf.Submit(a, voxelRegion(1, 0, 0), []testVoxel{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := buf.Submit(b, voxelRegion(3, 3, 3), []testVoxel{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	dirty, err := buf.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	// Every touched chunk appears exactly once.
	if len(dirty) != 2 {
		t.Fatalf("dirty = %v, want 2 keys", dirty)
	}
	if _, ok := dirty[a]; !ok {
		t.Fatalf("dirty missing %v", a)
	}
	if _, ok := dirty[b]; !ok {
		t.Fatalf("dirty missing %v", b)
	}

	// The merge created the chunks and applied values over ambient fill.
	ch, err := store.Get(a)
	if err != nil || ch == nil {
		t.Fatalf("chunk %v missing after merge: %v", a, err)
	}
	if ch.At(0, 0, 0) != 1 || ch.At(1, 0, 0) != 1 || ch.At(2, 0, 0) != 0 {
		t.Fatalf("merge applied wrong values")
	}
}

func TestEditBuffer_NoDoubleApply(t *testing.T) {
	store := newTestStore(t, 4)
	buf := NewEditBuffer[testVoxel]()

	key := volume.ChunkKey{X: 0, Y: 0, Z: 0}
	if err := buf.Submit(key, voxelRegion(0, 0, 0), []testVoxel{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	dirty, err := buf.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(dirty) != 1 {
		t.Fatalf("first flush dirty = %v", dirty)
	}

	// Submitted after the flush: belongs to the next cycle.
	other := volume.ChunkKey{X: 1, Y: 1, Z: 1}
	if err := buf.Submit(other, voxelRegion(0, 0, 0), []testVoxel{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	dirty, err = buf.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(dirty) != 1 {
		t.Fatalf("second flush dirty = %v", dirty)
	}
	if _, ok := dirty[other]; !ok {
		t.Fatalf("second flush missing %v", other)
	}
	if _, ok := dirty[key]; ok {
		t.Fatalf("key from first cycle leaked into second flush")
	}
}

func TestEditBuffer_ConcurrentSubmit(t *testing.T) {
	store := newTestStore(t, 4)
	buf := NewEditBuffer[testVoxel]()

	const writers = 8
	const perWriter = 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := volume.ChunkKey{X: w, Y: 0, Z: 0}
				_ = buf.Submit(key, voxelRegion(i%4, (i/4)%4, (i/16)%4), []testVoxel{1})
			}
		}(w)
	}
	wg.Wait()

	dirty, err := buf.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(dirty) != writers {
		t.Fatalf("dirty = %d chunks, want %d", len(dirty), writers)
	}
}

func TestEditBuffer_SubmitValidatesSize(t *testing.T) {
	buf := NewEditBuffer[testVoxel]()
	region := volume.Extent{Shape: volume.Point{X: 2, Y: 2, Z: 2}}
	if err := buf.Submit(volume.ChunkKey{}, region, []testVoxel{1, 2}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}
