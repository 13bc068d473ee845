package rover

import (
	"fmt"
	"strings"
)

// Maneuver is one atomic, collision-checked vehicle movement
type Maneuver int

const (
	Forward Maneuver = iota
	Backward
	ForwardLeft
	ForwardRight
	BackwardLeft
	BackwardRight
)

var maneuverCodes = [...]string{"f", "b", "fl", "fr", "bl", "br"}

var maneuverNames = [...]string{
	"forward", "backward", "forwardLeft", "forwardRight", "backwardLeft", "backwardRight",
}

// Maneuvers lists every maneuver
func Maneuvers() []Maneuver {
	return []Maneuver{Forward, Backward, ForwardLeft, ForwardRight, BackwardLeft, BackwardRight}
}

// Valid reports whether m is a known maneuver
func (m Maneuver) Valid() bool {
	return m >= Forward && m <= BackwardRight
}

// Code returns the short action code sent to the robot
func (m Maneuver) Code() string {
	if !m.Valid() {
		return ""
	}
	return maneuverCodes[m]
}

func (m Maneuver) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Maneuver(%d)", int(m))
	}
	return maneuverNames[m]
}

// ParseManeuver parses an action code (f, b, fl, fr, bl, br)
func ParseManeuver(code string) (Maneuver, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	for i, known := range maneuverCodes {
		if c == known {
			return Maneuver(i), nil
		}
	}
	return Forward, fmt.Errorf("%w: %q", ErrUnknownManeuver, code)
}

// Apply performs m on v against the obstacles in g. The move is committed
// only if it passes every check; a rejected move leaves v untouched and
// returns false, like a vehicle that will not drive into a wall.
func Apply(g *Grid, v *Vehicle, m Maneuver) bool {
	next, ok := Plan(g, *v, m)
	if !ok {
		return false
	}
	*v = next
	return true
}

// Plan computes the pose m would produce without committing it
func Plan(g *Grid, v Vehicle, m Maneuver) (Vehicle, bool) {
	switch m {
	case Forward:
		return planStraight(g, v, v.Heading)
	case Backward:
		return planStraight(g, v, v.Heading.Opposite())
	case ForwardLeft, ForwardRight, BackwardLeft, BackwardRight:
		return planPivot(g, v, m)
	}
	return v, false
}

// planStraight translates one cell toward travel. Only the leading strip of
// the new footprint is newly exposed, so only it is checked for obstacles.
func planStraight(g *Grid, v Vehicle, travel Direction) (Vehicle, bool) {
	dx, dy := travel.Delta()
	dest := v.Footprint().Translate(dx, dy)
	if !dest.InGrid() || !g.IsRectClear(dest.Edge(travel)) {
		return v, false
	}
	v.X += dx
	v.Y += dy
	return v, true
}

// planPivot handles the four turning maneuvers.
//
// A forward turn advances PivotHead along the heading and PivotSide toward
// the turn side, ending up facing that side. A backward turn reverses
// PivotBack and shifts PivotBackSide toward the named side, but the nose
// swings the other way, so BackwardLeft ends up facing right of the old
// heading. The whole destination footprint must be clear.
func planPivot(g *Grid, v Vehicle, m Maneuver) (Vehicle, bool) {
	fx, fy := v.Heading.Delta()

	var side, heading Direction
	var along, across int
	switch m {
	case ForwardLeft:
		side, heading = v.Heading.Left(), v.Heading.Left()
		along, across = v.PivotHead, v.PivotSide
	case ForwardRight:
		side, heading = v.Heading.Right(), v.Heading.Right()
		along, across = v.PivotHead, v.PivotSide
	case BackwardLeft:
		side, heading = v.Heading.Left(), v.Heading.Right()
		along, across = -v.PivotBack, v.PivotBackSide
	case BackwardRight:
		side, heading = v.Heading.Right(), v.Heading.Left()
		along, across = -v.PivotBack, v.PivotBackSide
	default:
		return v, false
	}

	sx, sy := side.Delta()
	x := v.X + along*fx + across*sx
	y := v.Y + along*fy + across*sy

	if !g.IsRectClear(v.FootprintAt(x, y, heading)) {
		return v, false
	}
	v.X, v.Y, v.Heading = x, y, heading
	return v, true
}
