package rover

import "github.com/paulmach/orb"

// GridSize is the side length of the square arena, in cells
const GridSize = 20

// Rect is an inclusive block of cells in the bottom-up grid frame
type Rect struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
}

// RectFromRanges builds a Rect from inclusive x and y ranges given in any order
func RectFromRanges(x0, x1, y0, y1 int) Rect {
	return Rect{
		MinX: min(x0, x1),
		MaxX: max(x0, x1),
		MinY: min(y0, y1),
		MaxY: max(y0, y1),
	}
}

// Width returns the number of columns covered
func (r Rect) Width() int {
	return r.MaxX - r.MinX + 1
}

// Height returns the number of rows covered
func (r Rect) Height() int {
	return r.MaxY - r.MinY + 1
}

// Translate shifts the rectangle by (dx, dy)
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}

// Contains reports whether cell (x, y) lies inside the rectangle
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// InGrid reports whether every covered cell is inside the arena
func (r Rect) InGrid() bool {
	return r.MinX >= 0 && r.MinY >= 0 && r.MaxX < GridSize && r.MaxY < GridSize
}

// Edge returns the one-cell-thick strip on the side of r facing d
func (r Rect) Edge(d Direction) Rect {
	edge := r
	switch d {
	case North:
		edge.MinY = r.MaxY
	case South:
		edge.MaxY = r.MinY
	case East:
		edge.MinX = r.MaxX
	case West:
		edge.MaxX = r.MinX
	}
	return edge
}

// Bound converts the cell block to a continuous bound where cell (x, y)
// spans [x, x+1) × [y, y+1).
func (r Rect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.MinX), float64(r.MinY)},
		Max: orb.Point{float64(r.MaxX + 1), float64(r.MaxY + 1)},
	}
}

// ScreenRow converts a bottom-up logical Y into a top-down presentation row.
// Only presentation code (renderers, exporters) should call this.
func ScreenRow(y int) int {
	return GridSize - 1 - y
}

// LogicalY converts a top-down presentation row back into a logical Y
func LogicalY(row int) int {
	return GridSize - 1 - row
}
