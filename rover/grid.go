package rover

import (
	"fmt"
	"strings"
)

// Cell is the state of one grid square
type Cell struct {
	Occupied   bool      `json:"occupied"`
	ObstacleID int       `json:"obstacleId,omitempty"`
	Direction  Direction `json:"direction"`
	TargetID   int       `json:"targetId,omitempty"`
	HasTarget  bool      `json:"hasTarget,omitempty"`
}

// Obstacle is an occupied cell together with its coordinates
type Obstacle struct {
	ID        int       `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Direction Direction `json:"direction"`
	TargetID  int       `json:"targetId,omitempty"`
	HasTarget bool      `json:"hasTarget,omitempty"`
}

// Grid is a fixed GridSize×GridSize occupancy table in the bottom-up frame:
// (0,0) is the bottom-left cell. Grid is not safe for concurrent use; Store
// owns the lock.
//
// Coordinates outside the arena are never an error. Mutators ignore them
// and report false.
type Grid struct {
	cells [GridSize][GridSize]Cell // [y][x]
}

// NewGrid returns an empty grid
func NewGrid() *Grid {
	return &Grid{}
}

// InBounds reports whether (x, y) names a cell of the arena
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < GridSize && y >= 0 && y < GridSize
}

// CellAt returns the cell at (x, y); ok is false for out-of-bounds coordinates
func (g *Grid) CellAt(x, y int) (Cell, bool) {
	if !g.InBounds(x, y) {
		return Cell{}, false
	}
	return g.cells[y][x], true
}

// Occupied reports whether (x, y) holds an obstacle
func (g *Grid) Occupied(x, y int) bool {
	c, ok := g.CellAt(x, y)
	return ok && c.Occupied
}

// Place puts obstacle id at (x, y), overwriting whatever the cell held. Any
// other cell already carrying the same id is vacated so ids stay unique.
// target is optional; pass nil for an obstacle without an assignment. Ids
// must be positive.
func (g *Grid) Place(x, y, id int, dir Direction, target *int) bool {
	if !g.InBounds(x, y) || id <= 0 {
		return false
	}
	if ox, oy, found := g.locate(id); found && (ox != x || oy != y) {
		g.cells[oy][ox] = Cell{}
	}
	cell := Cell{Occupied: true, ObstacleID: id, Direction: dir}
	if target != nil {
		cell.TargetID = *target
		cell.HasTarget = true
	}
	g.cells[y][x] = cell
	return true
}

// Remove empties (x, y); it reports whether an obstacle was removed
func (g *Grid) Remove(x, y int) bool {
	if !g.Occupied(x, y) {
		return false
	}
	g.cells[y][x] = Cell{}
	return true
}

// Relocate moves the obstacle at (fromX, fromY) to (toX, toY). It never
// overwrites: an empty source or occupied destination leaves the grid as is.
func (g *Grid) Relocate(fromX, fromY, toX, toY int) bool {
	if !g.InBounds(fromX, fromY) || !g.InBounds(toX, toY) {
		return false
	}
	src := g.cells[fromY][fromX]
	if !src.Occupied || g.cells[toY][toX].Occupied {
		return false
	}
	g.cells[toY][toX] = src
	g.cells[fromY][fromX] = Cell{}
	return true
}

// SetDirection changes the facing of the obstacle at (x, y)
func (g *Grid) SetDirection(x, y int, dir Direction) bool {
	if !g.Occupied(x, y) {
		return false
	}
	g.cells[y][x].Direction = dir
	return true
}

// SetTarget attaches targetID to whichever cell holds obstacleID
func (g *Grid) SetTarget(obstacleID, targetID int) bool {
	x, y, found := g.locate(obstacleID)
	if !found {
		return false
	}
	g.cells[y][x].TargetID = targetID
	g.cells[y][x].HasTarget = true
	return true
}

// ClearTarget drops the assignment from whichever cell holds obstacleID
func (g *Grid) ClearTarget(obstacleID int) bool {
	x, y, found := g.locate(obstacleID)
	if !found {
		return false
	}
	g.cells[y][x].TargetID = 0
	g.cells[y][x].HasTarget = false
	return true
}

// IsRectClear reports whether every cell in r exists and is unoccupied.
// A rectangle touching anything outside the arena is never clear.
func (g *Grid) IsRectClear(r Rect) bool {
	if r.MinX > r.MaxX || r.MinY > r.MaxY || !r.InGrid() {
		return false
	}
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			if g.cells[y][x].Occupied {
				return false
			}
		}
	}
	return true
}

// IsAreaClear is IsRectClear over inclusive x and y ranges
func (g *Grid) IsAreaClear(x0, x1, y0, y1 int) bool {
	return g.IsRectClear(RectFromRanges(x0, x1, y0, y1))
}

// Obstacles lists every obstacle, scanning rows bottom-up then columns
func (g *Grid) Obstacles() []Obstacle {
	var out []Obstacle
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if c := g.cells[y][x]; c.Occupied {
				out = append(out, obstacleFromCell(x, y, c))
			}
		}
	}
	return out
}

// FindByID returns the obstacle carrying id
func (g *Grid) FindByID(id int) (Obstacle, bool) {
	x, y, found := g.locate(id)
	if !found {
		return Obstacle{}, false
	}
	return obstacleFromCell(x, y, g.cells[y][x]), true
}

// NextID returns the smallest positive id not currently in use
func (g *Grid) NextID() int {
	used := make(map[int]bool)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if c := g.cells[y][x]; c.Occupied {
				used[c.ObstacleID] = true
			}
		}
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// Clear removes every obstacle
func (g *Grid) Clear() {
	g.cells = [GridSize][GridSize]Cell{}
}

// Clone returns an independent copy
func (g *Grid) Clone() *Grid {
	c := *g
	return &c
}

// String renders the grid top row first, for debug logs
func (g *Grid) String() string {
	var sb strings.Builder
	for row := 0; row < GridSize; row++ {
		y := LogicalY(row)
		for x := 0; x < GridSize; x++ {
			if c := g.cells[y][x]; c.Occupied {
				fmt.Fprintf(&sb, "%2d%s", c.ObstacleID, c.Direction.Letter())
			} else {
				sb.WriteString(" --")
			}
			if x < GridSize-1 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *Grid) locate(id int) (x, y int, found bool) {
	if id <= 0 {
		return 0, 0, false
	}
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if c := g.cells[y][x]; c.Occupied && c.ObstacleID == id {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

func obstacleFromCell(x, y int, c Cell) Obstacle {
	return Obstacle{
		ID:        c.ObstacleID,
		X:         x,
		Y:         y,
		Direction: c.Direction,
		TargetID:  c.TargetID,
		HasTarget: c.HasTarget,
	}
}
