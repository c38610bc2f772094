package mapio

import (
	"fmt"

	"voxelgrid.dev/internal/volume"
)

// Editor queues world-space writes against an EditBuffer, splitting extents
// that straddle chunk boundaries into per-chunk local edits.
type Editor[V volume.Voxel] struct {
	buf  *EditBuffer[V]
	edge int
}

func NewEditor[V volume.Voxel](buf *EditBuffer[V], chunkEdge int) *Editor[V] {
	return &Editor[V]{buf: buf, edge: chunkEdge}
}

// WriteVoxel queues a single-voxel write at a world position.
func (ed *Editor[V]) WriteVoxel(p volume.Point, v V) error {
	key := volume.KeyAt(p, ed.edge)
	origin := volume.KeyExtent(key, ed.edge).Min
	local := volume.Extent{Min: p.Sub(origin), Shape: volume.Point{X: 1, Y: 1, Z: 1}}
	return ed.buf.Submit(key, local, []V{v})
}

// FillExtent queues a uniform fill of a world-space extent.
func (ed *Editor[V]) FillExtent(ext volume.Extent, v V) error {
	return ed.forEachChunkRegion(ext, func(key volume.ChunkKey, local volume.Extent, _ volume.Extent) error {
		values := make([]V, local.Size())
		for i := range values {
			values[i] = v
		}
		return ed.buf.Submit(key, local, values)
	})
}

// WriteExtent queues a write of values (x fastest over ext) across however
// many chunks the extent touches.
func (ed *Editor[V]) WriteExtent(ext volume.Extent, values []V) error {
	if ext.Size() != len(values) {
		return fmt.Errorf("write extent: size %d != %d values", ext.Size(), len(values))
	}
	width, height := ext.Shape.X, ext.Shape.Y
	return ed.forEachChunkRegion(ext, func(key volume.ChunkKey, local volume.Extent, world volume.Extent) error {
		sub := make([]V, 0, local.Size())
		world.ForEach(func(p volume.Point) {
			off := p.Sub(ext.Min)
			sub = append(sub, values[off.X+off.Y*width+off.Z*width*height])
		})
		return ed.buf.Submit(key, local, sub)
	})
}

// forEachChunkRegion invokes fn once per chunk overlapped by ext with the
// chunk-local region and its world-space counterpart.
func (ed *Editor[V]) forEachChunkRegion(ext volume.Extent, fn func(key volume.ChunkKey, local, world volume.Extent) error) error {
	if ext.Empty() {
		return nil
	}
	minKey := volume.KeyAt(ext.Min, ed.edge)
	last := ext.Max().Sub(volume.Point{X: 1, Y: 1, Z: 1})
	maxKey := volume.KeyAt(last, ed.edge)

	for kz := minKey.Z; kz <= maxKey.Z; kz++ {
		for ky := minKey.Y; ky <= maxKey.Y; ky++ {
			for kx := minKey.X; kx <= maxKey.X; kx++ {
				key := volume.ChunkKey{X: kx, Y: ky, Z: kz}
				chunkExt := volume.KeyExtent(key, ed.edge)
				world := ext.Intersect(chunkExt)
				if world.Empty() {
					continue
				}
				local := volume.Extent{Min: world.Min.Sub(chunkExt.Min), Shape: world.Shape}
				if err := fn(key, local, world); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
