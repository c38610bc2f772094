package volume

// Chunk is a dense cube of voxels with edge length Edge. Data is laid out
// x fastest, then y, then z. The store owns chunk data; chunks handed out by
// readers are borrowed views and must not be retained across cycles.
type Chunk[V Voxel] struct {
	Key  ChunkKey
	Edge int
	Data []V
}

func NewChunk[V Voxel](key ChunkKey, edge int, fill V) *Chunk[V] {
	data := make([]V, edge*edge*edge)
	for i := range data {
		data[i] = fill
	}
	return &Chunk[V]{Key: key, Edge: edge, Data: data}
}

func (c *Chunk[V]) index(x, y, z int) int {
	return x + y*c.Edge + z*c.Edge*c.Edge
}

// At returns the voxel at local coordinates.
func (c *Chunk[V]) At(x, y, z int) V { return c.Data[c.index(x, y, z)] }

func (c *Chunk[V]) Set(x, y, z int, v V) { c.Data[c.index(x, y, z)] = v }

// Extent returns the chunk's world-space extent.
func (c *Chunk[V]) Extent() Extent { return KeyExtent(c.Key, c.Edge) }

// SetRegion overwrites a local region with values in x-fastest order.
// The region must lie inside the chunk and len(values) must equal its size.
func (c *Chunk[V]) SetRegion(region Extent, values []V) {
	i := 0
	region.ForEach(func(p Point) {
		c.Data[c.index(p.X, p.Y, p.Z)] = values[i]
		i++
	})
}

// Clone returns a deep copy. Used when a decompressed private copy is folded
// back into the shared store.
func (c *Chunk[V]) Clone() *Chunk[V] {
	data := make([]V, len(c.Data))
	copy(data, c.Data)
	return &Chunk[V]{Key: c.Key, Edge: c.Edge, Data: data}
}
