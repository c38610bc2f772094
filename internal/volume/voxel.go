package volume

// Voxel is implemented by any per-voxel sample stored in a Map. A voxel
// carries nothing but a small type index; everything richer (is it empty, is
// it solid, ...) lives in the Palette and is looked up by that index.
type Voxel interface {
	comparable
	TypeIndex() int
}

// TypeInfo is the minimum capability the engine needs from palette metadata:
// deciding whether a voxel type counts as empty space.
type TypeInfo interface {
	IsEmpty() bool
}

// Palette maps a voxel's type index to its metadata record. Every type index
// ever stored in a chunk must be < Len(); indexing past the end is a
// programming error and panics, it is never a recoverable runtime condition.
type Palette[I TypeInfo] struct {
	Infos []I
}

func (p Palette[I]) Len() int { return len(p.Infos) }

// Info returns the metadata for a type index.
func (p Palette[I]) Info(idx int) I { return p.Infos[idx] }
