package rover

import (
	"sync"
	"time"
)

// Store owns the shared world model: the occupancy grid, the vehicle (if
// placed) and the target assignments. Every mutation runs under one lock so
// inbound dispatch and user maneuvers are atomic with respect to each other.
type Store struct {
	mu       sync.RWMutex
	grid     *Grid
	vehicle  *Vehicle
	targets  *TargetAssignments
	template Vehicle // body geometry used when a pose arrives with no vehicle placed
	updated  time.Time
}

// NewStore creates an empty world whose vehicles use the default body
func NewStore() *Store {
	return NewStoreWithVehicle(NewVehicle(0, 0, North))
}

// NewStoreWithVehicle creates an empty world whose vehicles take their body
// geometry (size, pivot offsets) from template.
func NewStoreWithVehicle(template Vehicle) *Store {
	return &Store{
		grid:     NewGrid(),
		targets:  NewTargetAssignments(),
		template: template,
	}
}

// Snapshot is an immutable copy of the world for presentation and export
type Snapshot struct {
	Grid      *Grid       `json:"-"`
	Obstacles []Obstacle  `json:"obstacles"`
	Vehicle   *Vehicle    `json:"vehicle,omitempty"`
	Targets   map[int]int `json:"targets"`
	Updated   time.Time   `json:"updated"`
}

// Snapshot copies the current world
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Grid:      s.grid.Clone(),
		Obstacles: s.grid.Obstacles(),
		Targets:   s.targets.Snapshot(),
		Updated:   s.updated,
	}
	if snap.Obstacles == nil {
		snap.Obstacles = make([]Obstacle, 0)
	}
	if s.vehicle != nil {
		v := *s.vehicle
		snap.Vehicle = &v
	}
	return snap
}

// Vehicle returns a copy of the vehicle; ok is false when none is placed
func (s *Store) Vehicle() (Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vehicle == nil {
		return Vehicle{}, false
	}
	return *s.vehicle, true
}

// PlaceVehicle puts a vehicle with the store's body geometry at (x, y).
// Placement is refused if the footprint leaves the arena or covers an
// obstacle.
func (s *Store) PlaceVehicle(x, y int, heading Direction) (Vehicle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.template
	v.X, v.Y, v.Heading = x, y, heading
	if !s.grid.IsRectClear(v.Footprint()) {
		return Vehicle{}, false
	}
	s.vehicle = &v
	s.touch()
	return v, true
}

// VehicleTemplate returns the body geometry new vehicles are built from
func (s *Store) VehicleTemplate() Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// ClearVehicle removes the vehicle
func (s *Store) ClearVehicle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicle = nil
	s.touch()
}

// SetPose overwrites the vehicle pose with ground truth from the robot. No
// collision check is made; the pose is only clamped into the arena. A vehicle
// is created if none was placed.
func (s *Store) SetPose(x, y int, heading Direction) Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.template
	if s.vehicle != nil {
		v = *s.vehicle
	}
	v.X, v.Y, v.Heading = x, y, heading
	v.ClampToGrid()
	s.vehicle = &v
	s.touch()
	return v
}

// ApplyManeuver runs m through the kinematics engine. It returns the
// resulting vehicle and whether the move was accepted.
func (s *Store) ApplyManeuver(m Maneuver) (Vehicle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vehicle == nil {
		return Vehicle{}, false, ErrNoVehicle
	}
	if !m.Valid() {
		return *s.vehicle, false, ErrUnknownManeuver
	}
	ok := Apply(s.grid, s.vehicle, m)
	if ok {
		s.touch()
	}
	return *s.vehicle, ok, nil
}

// AddObstacle places a new obstacle at (x, y) under the smallest free id.
// Any retained target assignment for that id is applied.
func (s *Store) AddObstacle(x, y int, dir Direction) (Obstacle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grid.InBounds(x, y) || s.grid.Occupied(x, y) {
		return Obstacle{}, false
	}
	id := s.grid.NextID()
	s.grid.Place(x, y, id, dir, s.retainedTarget(id))
	s.touch()
	o, _ := s.grid.FindByID(id)
	return o, true
}

// PlaceObstacle places obstacle id at (x, y), overwriting the cell
func (s *Store) PlaceObstacle(x, y, id int, dir Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grid.Place(x, y, id, dir, s.retainedTarget(id)) {
		return false
	}
	s.touch()
	return true
}

// RemoveObstacle empties (x, y) and returns what was removed
func (s *Store) RemoveObstacle(x, y int) (Obstacle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.grid.CellAt(x, y)
	if !ok || !c.Occupied {
		return Obstacle{}, false
	}
	s.grid.Remove(x, y)
	s.touch()
	return obstacleFromCell(x, y, c), true
}

// RemoveObstacleByID removes the obstacle carrying id
func (s *Store) RemoveObstacleByID(id int) (Obstacle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.grid.FindByID(id)
	if !ok {
		return Obstacle{}, false
	}
	s.grid.Remove(o.X, o.Y)
	s.touch()
	return o, true
}

// RelocateObstacle moves the obstacle at (fromX, fromY) to an empty cell
func (s *Store) RelocateObstacle(fromX, fromY, toX, toY int) (Obstacle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grid.Relocate(fromX, fromY, toX, toY) {
		return Obstacle{}, false
	}
	s.touch()
	c, _ := s.grid.CellAt(toX, toY)
	return obstacleFromCell(toX, toY, c), true
}

// SetObstacleDirection changes the facing of the obstacle at (x, y)
func (s *Store) SetObstacleDirection(x, y int, dir Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grid.SetDirection(x, y, dir) {
		return false
	}
	s.touch()
	return true
}

// UpsertObstacle applies the upsert-by-id policy. A newly created obstacle
// picks up any retained target assignment.
func (s *Store) UpsertObstacle(id, x, y int, dir Direction) (Obstacle, UpsertResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, res := UpsertObstacle(s.grid, id, x, y, dir)
	if res == UpsertRejected {
		return o, res
	}
	if res == UpsertCreated {
		if target, ok := s.targets.Get(id); ok {
			s.grid.SetTarget(id, target)
			o, _ = s.grid.FindByID(id)
		}
	}
	s.touch()
	return o, res
}

// AssignTarget records targetID for obstacleID and applies it to the
// obstacle currently carrying that id, if any. It reports whether an
// obstacle was updated.
func (s *Store) AssignTarget(obstacleID, targetID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets.Set(obstacleID, targetID)
	s.touch()
	return s.grid.SetTarget(obstacleID, targetID)
}

// TargetFor returns the retained assignment for obstacleID
func (s *Store) TargetFor(obstacleID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targets.Get(obstacleID)
}

// ClearTargets forgets every assignment and strips them from the grid
func (s *Store) ClearTargets() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.targets.Snapshot() {
		s.grid.ClearTarget(id)
	}
	s.targets.Clear()
	s.touch()
}

// CellAt returns a copy of the cell at (x, y)
func (s *Store) CellAt(x, y int) (Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.CellAt(x, y)
}

// Obstacle returns the obstacle carrying id
func (s *Store) Obstacle(id int) (Obstacle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.FindByID(id)
}

// Obstacles lists every obstacle
func (s *Store) Obstacles() []Obstacle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Obstacles()
}

// ClearObstacles removes every obstacle; target assignments are retained
func (s *Store) ClearObstacles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid.Clear()
	s.touch()
}

// retainedTarget returns the stored assignment for id as an optional value
func (s *Store) retainedTarget(id int) *int {
	if target, ok := s.targets.Get(id); ok {
		return &target
	}
	return nil
}

// touch records a mutation; callers hold the write lock
func (s *Store) touch() {
	s.updated = time.Now()
}
