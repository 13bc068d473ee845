package rover

import "fmt"

// Default vehicle footprint and pivot offsets, in cells
const (
	DefaultVehicleWidth  = 2
	DefaultVehicleHeight = 2
	DefaultPivotOffset   = 1
)

// Vehicle is the robot's pose and body geometry.
//
// (X, Y) anchors the bottom-left cell of the footprint. Width is measured
// across the heading and Height along it, so an East/West heading swaps the
// two on the grid axes.
type Vehicle struct {
	X       int       `json:"x" yaml:"x"`
	Y       int       `json:"y" yaml:"y"`
	Heading Direction `json:"heading" yaml:"heading"`

	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	PivotHead     int `json:"pivotHead" yaml:"pivotHead"`         // forward travel of a forward turn
	PivotSide     int `json:"pivotSide" yaml:"pivotSide"`         // lateral travel of a forward turn
	PivotBack     int `json:"pivotBack" yaml:"pivotBack"`         // reverse travel of a backward turn
	PivotBackSide int `json:"pivotBackSide" yaml:"pivotBackSide"` // lateral travel of a backward turn
}

// NewVehicle creates a vehicle with the default 2×2 body and unit pivots
func NewVehicle(x, y int, heading Direction) Vehicle {
	return Vehicle{
		X:             x,
		Y:             y,
		Heading:       heading,
		Width:         DefaultVehicleWidth,
		Height:        DefaultVehicleHeight,
		PivotHead:     DefaultPivotOffset,
		PivotSide:     DefaultPivotOffset,
		PivotBack:     DefaultPivotOffset,
		PivotBackSide: DefaultPivotOffset,
	}
}

// extent returns the footprint size on the grid axes for a heading
func (v Vehicle) extent(h Direction) (w, ht int) {
	if h == East || h == West {
		return v.Height, v.Width
	}
	return v.Width, v.Height
}

// FootprintAt returns the cells the body would cover anchored at (x, y)
// facing h.
func (v Vehicle) FootprintAt(x, y int, h Direction) Rect {
	w, ht := v.extent(h)
	return Rect{MinX: x, MinY: y, MaxX: x + w - 1, MaxY: y + ht - 1}
}

// Footprint returns the cells currently covered by the body
func (v Vehicle) Footprint() Rect {
	return v.FootprintAt(v.X, v.Y, v.Heading)
}

// ClampToGrid moves the anchor so the whole footprint lies inside the arena.
// The lower bound for both axes is 0.
func (v *Vehicle) ClampToGrid() {
	w, ht := v.extent(v.Heading)
	v.X = clamp(v.X, 0, GridSize-w)
	v.Y = clamp(v.Y, 0, GridSize-ht)
}

func (v Vehicle) String() string {
	return fmt.Sprintf("(%d,%d) %s", v.X, v.Y, v.Heading)
}

func clamp(n, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(n, hi))
}
