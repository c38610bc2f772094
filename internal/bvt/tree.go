package bvt

import (
	"sort"

	"voxelgrid.dev/internal/volume"
)

// Aabb is an axis-aligned box with exclusive Max, in world voxel coordinates.
type Aabb struct {
	Min, Max volume.Point
}

func aabbOf(e volume.Extent) Aabb {
	return Aabb{Min: e.Min, Max: e.Max()}
}

func (a Aabb) overlaps(b Aabb) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y &&
		a.Min.Z < b.Max.Z && b.Min.Z < a.Max.Z
}

func (a Aabb) union(b Aabb) Aabb {
	return Aabb{
		Min: volume.Point{X: minInt(a.Min.X, b.Min.X), Y: minInt(a.Min.Y, b.Min.Y), Z: minInt(a.Min.Z, b.Min.Z)},
		Max: volume.Point{X: maxInt(a.Max.X, b.Max.X), Y: maxInt(a.Max.Y, b.Max.Y), Z: maxInt(a.Max.Z, b.Max.Z)},
	}
}

// halfArea is the insertion cost heuristic: half the surface area.
func (a Aabb) halfArea() int {
	d := a.Max.Sub(a.Min)
	return d.X*d.Y + d.Y*d.Z + d.Z*d.X
}

type node struct {
	box    Aabb
	parent *node
	left   *node
	right  *node

	// Leaf payload; nil children mark a leaf.
	key volume.ChunkKey
	oct *Octree
}

func (n *node) leaf() bool { return n.left == nil }

// Tree is a dynamic bounding-volume tree whose leaves are per-chunk occupancy
// octrees. Entries exist only for chunks with at least one non-empty voxel.
// The tree is mutated by the coordinator only; concurrent readers must hold
// no reference across a cycle boundary.
type Tree struct {
	edge   int
	root   *node
	leaves map[volume.ChunkKey]*node
}

// NewTree returns an empty spatial index for chunks with the given edge.
func NewTree(edge int) *Tree {
	return &Tree{edge: edge, leaves: make(map[volume.ChunkKey]*node)}
}

// Len returns the number of indexed chunks.
func (t *Tree) Len() int { return len(t.leaves) }

// Octree returns the occupancy octree for a chunk key, or nil.
func (t *Tree) Octree(key volume.ChunkKey) *Octree {
	if n, ok := t.leaves[key]; ok {
		return n.oct
	}
	return nil
}

// Insert adds or replaces the entry for key. Since all leaves of one volume
// share a box shape, replacing an existing entry swaps the octree in place
// without touching tree structure.
func (t *Tree) Insert(key volume.ChunkKey, oct *Octree) {
	if existing, ok := t.leaves[key]; ok {
		existing.oct = oct
		return
	}

	leaf := &node{
		box: aabbOf(volume.KeyExtent(key, t.edge)),
		key: key,
		oct: oct,
	}
	t.leaves[key] = leaf

	if t.root == nil {
		t.root = leaf
		return
	}

	// Descend toward the branch whose box grows least.
	cur := t.root
	for !cur.leaf() {
		leftGrowth := cur.left.box.union(leaf.box).halfArea() - cur.left.box.halfArea()
		rightGrowth := cur.right.box.union(leaf.box).halfArea() - cur.right.box.halfArea()
		if leftGrowth <= rightGrowth {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	parent := &node{
		box:    cur.box.union(leaf.box),
		parent: cur.parent,
		left:   cur,
		right:  leaf,
	}
	if cur.parent == nil {
		t.root = parent
	} else if cur.parent.left == cur {
		cur.parent.left = parent
	} else {
		cur.parent.right = parent
	}
	cur.parent = parent
	leaf.parent = parent

	t.refit(parent.parent)
}

// Remove deletes the entry for key, if present.
func (t *Tree) Remove(key volume.ChunkKey) bool {
	leaf, ok := t.leaves[key]
	if !ok {
		return false
	}
	delete(t.leaves, key)

	if leaf == t.root {
		t.root = nil
		return true
	}

	parent := leaf.parent
	sibling := parent.left
	if sibling == leaf {
		sibling = parent.right
	}
	sibling.parent = parent.parent
	if parent.parent == nil {
		t.root = sibling
	} else if parent.parent.left == parent {
		parent.parent.left = sibling
	} else {
		parent.parent.right = sibling
	}

	t.refit(sibling.parent)
	return true
}

func (t *Tree) refit(n *node) {
	for ; n != nil; n = n.parent {
		n.box = n.left.box.union(n.right.box)
	}
}

// Query returns the keys of indexed chunks whose bounds overlap the extent,
// in deterministic order. This is the broad phase; callers refine candidates
// through each chunk's octree.
func (t *Tree) Query(ext volume.Extent) []volume.ChunkKey {
	if t.root == nil || ext.Empty() {
		return nil
	}
	box := aabbOf(ext)

	var out []volume.ChunkKey
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !n.box.overlaps(box) {
			continue
		}
		if n.leaf() {
			out = append(out, n.key)
			continue
		}
		stack = append(stack, n.left, n.right)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
