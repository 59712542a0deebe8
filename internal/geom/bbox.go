package geom

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is an axis-aligned bounding box in the dataset's projected coordinates
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBBox builds a box from two corners in any order
func NewBBox(x1, y1, x2, y2 float64) BBox {
	return BBox{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}.Normalize()
}

// Normalize swaps corners so that min <= max on both axes.
// Tile footprints derived from raster offsets have y growing downward and
// arrive with MinY > MaxY.
func (b BBox) Normalize() BBox {
	if b.MinX > b.MaxX {
		b.MinX, b.MaxX = b.MaxX, b.MinX
	}
	if b.MinY > b.MaxY {
		b.MinY, b.MaxY = b.MaxY, b.MinY
	}
	return b
}

// Valid reports whether min <= max on both axes
func (b BBox) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Overlaps reports whether the two boxes share at least one point.
// Touching edges count as overlap.
func (b BBox) Overlaps(o BBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether o lies entirely inside b
func (b BBox) Contains(o BBox) bool {
	return o.MinX >= b.MinX && o.MaxX <= b.MaxX &&
		o.MinY >= b.MinY && o.MaxY <= b.MaxY
}

// Expand grows the box to include another box
func (b *BBox) Expand(o BBox) {
	if o.MinX < b.MinX {
		b.MinX = o.MinX
	}
	if o.MaxX > b.MaxX {
		b.MaxX = o.MaxX
	}
	if o.MinY < b.MinY {
		b.MinY = o.MinY
	}
	if o.MaxY > b.MaxY {
		b.MaxY = o.MaxY
	}
}

// ExpandPoint grows the box to include a point
func (b *BBox) ExpandPoint(x, y float64) {
	b.Expand(BBox{MinX: x, MinY: y, MaxX: x, MaxY: y})
}

// String formats the box as "minx,miny,maxx,maxy"
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Min returns the lower-left corner in rtree form
func (b BBox) Min() [2]float64 { return [2]float64{b.MinX, b.MinY} }

// Max returns the upper-right corner in rtree form
func (b BBox) Max() [2]float64 { return [2]float64{b.MaxX, b.MaxY} }

// ParseBBox parses a bbox string in format "minx,miny,maxx,maxy".
// Swapped corners are normalized rather than rejected.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 values: minx,miny,maxx,maxy")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	return NewBBox(coords[0], coords[1], coords[2], coords[3]), nil
}
