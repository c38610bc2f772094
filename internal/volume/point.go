package volume

import "fmt"

// Point is an integer 3D coordinate.
type Point struct {
	X, Y, Z int
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// ChunkKey identifies one chunk of the volume. Keys are chunk coordinates,
// i.e. the world position divided by the chunk edge with floor semantics.
type ChunkKey struct {
	X, Y, Z int
}

func (k ChunkKey) String() string { return fmt.Sprintf("(%d,%d,%d)", k.X, k.Y, k.Z) }

// KeyAt returns the key of the chunk containing the world position p.
func KeyAt(p Point, edge int) ChunkKey {
	return ChunkKey{floorDiv(p.X, edge), floorDiv(p.Y, edge), floorDiv(p.Z, edge)}
}

// KeyExtent returns the world-space extent covered by the chunk at key.
func KeyExtent(k ChunkKey, edge int) Extent {
	return Extent{
		Min:   Point{k.X * edge, k.Y * edge, k.Z * edge},
		Shape: Point{edge, edge, edge},
	}
}

// Extent is an axis-aligned box of voxels: Min is the lowest corner, Shape
// the side lengths. An extent with any non-positive side is empty.
type Extent struct {
	Min   Point
	Shape Point
}

// Max returns the exclusive upper corner.
func (e Extent) Max() Point { return e.Min.Add(e.Shape) }

func (e Extent) Empty() bool { return e.Shape.X <= 0 || e.Shape.Y <= 0 || e.Shape.Z <= 0 }

// Size returns the number of voxels in the extent.
func (e Extent) Size() int {
	if e.Empty() {
		return 0
	}
	return e.Shape.X * e.Shape.Y * e.Shape.Z
}

func (e Extent) Contains(p Point) bool {
	max := e.Max()
	return p.X >= e.Min.X && p.X < max.X &&
		p.Y >= e.Min.Y && p.Y < max.Y &&
		p.Z >= e.Min.Z && p.Z < max.Z
}

// Intersect returns the overlap of two extents (possibly empty).
func (e Extent) Intersect(o Extent) Extent {
	min := Point{maxInt(e.Min.X, o.Min.X), maxInt(e.Min.Y, o.Min.Y), maxInt(e.Min.Z, o.Min.Z)}
	emax, omax := e.Max(), o.Max()
	max := Point{minInt(emax.X, omax.X), minInt(emax.Y, omax.Y), minInt(emax.Z, omax.Z)}
	return Extent{Min: min, Shape: max.Sub(min)}
}

// ForEach visits every position in the extent, x fastest, then y, then z.
// This is the canonical value ordering for edits and codecs.
func (e Extent) ForEach(fn func(p Point)) {
	max := e.Max()
	for z := e.Min.Z; z < max.Z; z++ {
		for y := e.Min.Y; y < max.Y; y++ {
			for x := e.Min.X; x < max.X; x++ {
				fn(Point{x, y, z})
			}
		}
	}
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
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
