package volume

import "fmt"

// Map is the source of truth for voxels in a volume: the chunked store plus
// the palette that interprets raw type indices. Per-voxel memory stays at one
// index regardless of how much metadata a type carries; richness is derived
// through the palette on read.
type Map[V Voxel, I TypeInfo] struct {
	Chunks  *Store[V]
	Palette Palette[I]
}

func NewMap[V Voxel, I TypeInfo](store *Store[V], palette Palette[I]) (*Map[V, I], error) {
	if store == nil {
		return nil, fmt.Errorf("map: nil store")
	}
	if palette.Len() == 0 {
		return nil, fmt.Errorf("map: empty palette")
	}
	if idx := store.Ambient().TypeIndex(); idx >= palette.Len() {
		return nil, fmt.Errorf("map: ambient type index %d outside palette of %d", idx, palette.Len())
	}
	return &Map[V, I]{Chunks: store, Palette: palette}, nil
}

// VoxelInfo returns the palette metadata for a voxel. Panics if the voxel's
// type index is outside the palette; that is a programming error, not a
// runtime fault to recover from.
func (m *Map[V, I]) VoxelInfo(v V) I { return m.Palette.Info(v.TypeIndex()) }

// InfoView returns a view of a chunk that yields palette metadata instead of
// raw voxels, element by element, without materializing a parallel array.
func (m *Map[V, I]) InfoView(ch *Chunk[V]) InfoView[V, I] {
	return InfoView[V, I]{chunk: ch, palette: m.Palette}
}

// InfoView lazily transforms a chunk's voxels into their palette metadata.
// This is how compression policy and octree building inspect emptiness
// without doubling memory.
type InfoView[V Voxel, I TypeInfo] struct {
	chunk   *Chunk[V]
	palette Palette[I]
}

// At returns the metadata for the voxel at local coordinates.
func (vw InfoView[V, I]) At(x, y, z int) I {
	return vw.palette.Info(vw.chunk.At(x, y, z).TypeIndex())
}

// EmptyAt reports whether the voxel at local coordinates is empty space.
func (vw InfoView[V, I]) EmptyAt(x, y, z int) bool { return vw.At(x, y, z).IsEmpty() }
