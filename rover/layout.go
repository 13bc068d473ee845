package rover

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout is an arena description stored as YAML: a vehicle pose plus a list
// of obstacles. It seeds the store for offline rendering and for demos.
type Layout struct {
	Vehicle   *LayoutPose      `yaml:"vehicle,omitempty"`
	Obstacles []LayoutObstacle `yaml:"obstacles"`
}

// LayoutPose places the vehicle
type LayoutPose struct {
	X       int       `yaml:"x"`
	Y       int       `yaml:"y"`
	Heading Direction `yaml:"heading"`
}

// LayoutObstacle is one obstacle entry. Target is optional.
type LayoutObstacle struct {
	ID        int       `yaml:"id"`
	X         int       `yaml:"x"`
	Y         int       `yaml:"y"`
	Direction Direction `yaml:"direction"`
	Target    *int      `yaml:"target,omitempty"`
}

// LoadLayout reads a layout file
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("layout file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}

	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	return &layout, nil
}

// SaveLayout writes a layout file
func SaveLayout(path string, layout *Layout) error {
	data, err := yaml.Marshal(layout)
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write layout file: %w", err)
	}
	return nil
}

// LayoutFromSnapshot captures the obstacles, targets and vehicle pose of a snapshot
func LayoutFromSnapshot(snap Snapshot) *Layout {
	layout := &Layout{Obstacles: make([]LayoutObstacle, 0, len(snap.Obstacles))}
	if snap.Vehicle != nil {
		layout.Vehicle = &LayoutPose{X: snap.Vehicle.X, Y: snap.Vehicle.Y, Heading: snap.Vehicle.Heading}
	}
	for _, o := range snap.Obstacles {
		entry := LayoutObstacle{ID: o.ID, X: o.X, Y: o.Y, Direction: o.Direction}
		if o.HasTarget {
			t := o.TargetID
			entry.Target = &t
		}
		layout.Obstacles = append(layout.Obstacles, entry)
	}
	return layout
}

// Apply loads the layout into a store. Obstacles that fall outside the arena
// or on an occupied cell are returned; the vehicle is placed last so it never
// blocks an obstacle. The whole layout is checked against a copy of the grid
// first, so an error leaves the store untouched.
func (l *Layout) Apply(s *Store) (skipped []LayoutObstacle, err error) {
	plan := s.Snapshot().Grid
	var placed []LayoutObstacle
	for _, o := range l.Obstacles {
		if o.ID <= 0 {
			return nil, fmt.Errorf("obstacle at (%d,%d): id must be positive", o.X, o.Y)
		}
		if _, ok := plan.FindByID(o.ID); ok {
			return nil, fmt.Errorf("duplicate obstacle id %d", o.ID)
		}
		if !plan.InBounds(o.X, o.Y) || plan.Occupied(o.X, o.Y) {
			skipped = append(skipped, o)
			continue
		}
		plan.Place(o.X, o.Y, o.ID, o.Direction, nil)
		placed = append(placed, o)
	}

	if l.Vehicle != nil {
		v := s.VehicleTemplate()
		v.X, v.Y, v.Heading = l.Vehicle.X, l.Vehicle.Y, l.Vehicle.Heading
		if !plan.IsRectClear(v.Footprint()) {
			return nil, fmt.Errorf("vehicle at (%d,%d) overlaps an obstacle or the arena edge", l.Vehicle.X, l.Vehicle.Y)
		}
	}

	for _, o := range placed {
		s.PlaceObstacle(o.X, o.Y, o.ID, o.Direction)
		if o.Target != nil {
			s.AssignTarget(o.ID, *o.Target)
		}
	}
	if l.Vehicle != nil {
		s.PlaceVehicle(l.Vehicle.X, l.Vehicle.Y, l.Vehicle.Heading)
	}
	return skipped, nil
}
