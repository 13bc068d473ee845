package rover

// UpsertResult describes what UpsertObstacle did
type UpsertResult int

const (
	// UpsertRejected: the id was unknown and the destination unusable
	UpsertRejected UpsertResult = iota
	// UpsertCreated: the id was unknown and a new obstacle was placed
	UpsertCreated
	// UpsertReoriented: the obstacle stayed put and took the new direction
	UpsertReoriented
	// UpsertMoved: the obstacle relocated and took the new direction
	UpsertMoved
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertCreated:
		return "created"
	case UpsertReoriented:
		return "reoriented"
	case UpsertMoved:
		return "moved"
	}
	return "rejected"
}

// UpsertObstacle applies a desired end state (position + direction) for
// obstacle id without knowing whether the position changed.
//
//   - same coordinates: direction only
//   - destination out of bounds or occupied: direction only, at the old cell
//   - destination valid and empty: relocate, then set direction
//   - unknown id: place it if the destination is valid and empty
//
// The zero Obstacle is returned with UpsertRejected.
func UpsertObstacle(g *Grid, id, x, y int, dir Direction) (Obstacle, UpsertResult) {
	current, found := g.FindByID(id)
	if !found {
		if id <= 0 || !g.InBounds(x, y) || g.Occupied(x, y) {
			return Obstacle{}, UpsertRejected
		}
		g.Place(x, y, id, dir, nil)
		o, _ := g.FindByID(id)
		return o, UpsertCreated
	}

	if current.X == x && current.Y == y {
		g.SetDirection(x, y, dir)
		o, _ := g.FindByID(id)
		return o, UpsertReoriented
	}

	if !g.Relocate(current.X, current.Y, x, y) {
		g.SetDirection(current.X, current.Y, dir)
		o, _ := g.FindByID(id)
		return o, UpsertReoriented
	}

	g.SetDirection(x, y, dir)
	o, _ := g.FindByID(id)
	return o, UpsertMoved
}
