package volume

import "testing"

func testPalette() Palette[testInfo] {
	return Palette[testInfo]{Infos: []testInfo{{empty: true}, {empty: false}}}
}

func TestNewMap_Validation(t *testing.T) {
	s := newTestStore(t, 4)
	if _, err := NewMap[testVoxel, testInfo](nil, testPalette()); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewMap(s, Palette[testInfo]{}); err == nil {
		t.Fatalf("expected error for empty palette")
	}

	bad, err := NewStore(StoreConfig[testVoxel]{
		ChunkEdge:   4,
		Ambient:     9,
		DecodeVoxel: func(id uint16) testVoxel { return testVoxel(id) },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := NewMap(bad, testPalette()); err == nil {
		t.Fatalf("expected error for ambient outside palette")
	}
}

func TestInfoView_LazyTransform(t *testing.T) {
	s := newTestStore(t, 4)
	m, err := NewMap(s, testPalette())
	if err != nil {
		t.Fatalf("new map: %v", err)
	}

	ch, _ := s.GetOrCreate(ChunkKey{})
	ch.Set(2, 1, 3, 1)

	view := m.InfoView(ch)
	if view.EmptyAt(2, 1, 3) {
		t.Fatalf("written voxel reported empty")
	}
	if !view.EmptyAt(0, 0, 0) {
		t.Fatalf("ambient voxel reported non-empty")
	}
}

func TestVoxelInfo_PanicsOutsidePalette(t *testing.T) {
	s := newTestStore(t, 4)
	m, err := NewMap(s, testPalette())
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range type index")
		}
	}()
	m.VoxelInfo(testVoxel(40))
}
