package rover

import (
	"fmt"
	"strings"
)

// Direction is one of the four cardinal headings. The declaration order is
// clockwise so that rotation is modular arithmetic.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

var directionNames = [...]string{"NORTH", "EAST", "SOUTH", "WEST"}

// Directions lists all headings in clockwise order starting at North
func Directions() []Direction {
	return []Direction{North, East, South, West}
}

// Valid reports whether d is one of the four headings
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Letter returns the single-letter wire code (N, E, S, W)
func (d Direction) Letter() string {
	return d.String()[:1]
}

// Right rotates 90° clockwise
func (d Direction) Right() Direction {
	return (d + 1) % 4
}

// Left rotates 90° counter-clockwise
func (d Direction) Left() Direction {
	return (d + 3) % 4
}

// Opposite rotates 180°
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Delta returns the unit step for this heading in the bottom-up grid frame
// (North increases Y, East increases X).
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	}
	return 0, 0
}

// ParseDirectionLetter parses a single-letter heading code, case-insensitive
func ParseDirectionLetter(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N":
		return North, nil
	case "E":
		return East, nil
	case "S":
		return South, nil
	case "W":
		return West, nil
	}
	return North, fmt.Errorf("%w: %q", ErrInvalidDirectionCode, s)
}

// ParseDirection accepts either a full heading name (NORTH) or a letter (N)
func ParseDirection(s string) (Direction, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return ParseDirectionLetter(name)
}

// MustParseDirectionLetter is ParseDirectionLetter for codes the caller
// controls. An invalid code is a programming error and panics.
func MustParseDirectionLetter(s string) Direction {
	d, err := ParseDirectionLetter(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalText encodes the heading by name for JSON and YAML
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirectionCode, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts names or letters
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
