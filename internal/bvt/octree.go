// Package bvt maintains the spatial index over a voxel volume: one compact
// occupancy octree per chunk, held in a dynamic bounding-volume tree keyed by
// chunk coordinate. Consumers use it read-only for broad-phase geometric
// queries; the engine rebuilds leaves for dirty chunks each cycle.
package bvt

import (
	"math/bits"

	"voxelgrid.dev/internal/volume"
)

// Octree summarizes which sub-regions of one chunk contain non-empty voxels.
// Nodes are stored sparsely as child-occupancy masks keyed by location code:
// the root is code 1, a child's code is parent<<3|octant. Octant bit 0 selects
// +x, bit 1 +y, bit 2 +z. A set mask bit whose child has no entry of its own
// denotes a fully occupied subtree, so uniform regions cost nothing.
type Octree struct {
	edge  int
	full  bool
	nodes map[uint32]uint8
}

const rootCode uint32 = 1

// BuildOctree builds the occupancy octree for a chunk with the given edge
// (a power of two; validated by store construction). occupied reports whether
// the voxel at local coordinates is non-empty.
func BuildOctree(edge int, occupied func(x, y, z int) bool) *Octree {
	o := &Octree{edge: edge, nodes: make(map[uint32]uint8)}
	switch o.build(rootCode, 0, 0, 0, edge, occupied) {
	case subtreeFull:
		o.full = true
	case subtreeEmpty:
		o.nodes = nil
	}
	return o
}

type subtreeState uint8

const (
	subtreeEmpty subtreeState = iota
	subtreeFull
	subtreeMixed
)

func (o *Octree) build(code uint32, x, y, z, edge int, occupied func(x, y, z int) bool) subtreeState {
	if edge == 1 {
		if occupied(x, y, z) {
			return subtreeFull
		}
		return subtreeEmpty
	}

	half := edge / 2
	var mask uint8
	fullCount := 0
	for i := 0; i < 8; i++ {
		cx := x + (i&1)*half
		cy := y + (i>>1&1)*half
		cz := z + (i>>2&1)*half
		switch o.build(code<<3|uint32(i), cx, cy, cz, half, occupied) {
		case subtreeFull:
			mask |= 1 << i
			fullCount++
		case subtreeMixed:
			mask |= 1 << i
		}
	}

	if mask == 0 {
		return subtreeEmpty
	}
	if fullCount == 8 {
		return subtreeFull
	}
	o.nodes[code] = mask
	return subtreeMixed
}

// Edge returns the chunk edge the octree was built over.
func (o *Octree) Edge() int { return o.edge }

// Empty reports whether the chunk contains no non-empty voxel at all.
func (o *Octree) Empty() bool { return !o.full && len(o.nodes) == 0 }

// Visit walks occupied sub-regions in chunk-local coordinates. fn receives
// each region's lower corner, edge length, and whether the region is fully
// occupied; returning true descends into a partially occupied region.
// Fully occupied regions are reported once and never descended into.
func (o *Octree) Visit(fn func(min volume.Point, edge int, full bool) bool) {
	if o.Empty() {
		return
	}
	if o.full {
		fn(volume.Point{}, o.edge, true)
		return
	}
	o.visit(rootCode, volume.Point{}, o.edge, fn)
}

func (o *Octree) visit(code uint32, min volume.Point, edge int, fn func(min volume.Point, edge int, full bool) bool) {
	mask := o.nodes[code]
	half := edge / 2
	for mask != 0 {
		i := bits.TrailingZeros8(mask)
		mask &^= 1 << i
		childMin := volume.Point{
			X: min.X + (i&1)*half,
			Y: min.Y + (i>>1&1)*half,
			Z: min.Z + (i>>2&1)*half,
		}
		childCode := code<<3 | uint32(i)
		if _, mixed := o.nodes[childCode]; mixed {
			if fn(childMin, half, false) {
				o.visit(childCode, childMin, half, fn)
			}
		} else {
			fn(childMin, half, true)
		}
	}
}

// Occupied reports whether the voxel at local coordinates is non-empty.
func (o *Octree) Occupied(x, y, z int) bool {
	if o.Empty() {
		return false
	}
	if o.full {
		return true
	}
	code := rootCode
	edge := o.edge
	for edge > 1 {
		half := edge / 2
		i := 0
		if x >= half {
			i |= 1
			x -= half
		}
		if y >= half {
			i |= 2
			y -= half
		}
		if z >= half {
			i |= 4
			z -= half
		}
		mask, mixed := o.nodes[code]
		if !mixed {
			// Reached inside a fully occupied subtree.
			return true
		}
		if mask&(1<<i) == 0 {
			return false
		}
		code = code<<3 | uint32(i)
		edge = half
	}
	return true
}
