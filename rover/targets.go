package rover

import "maps"

// NullTarget is the reserved target id meaning "explicitly no target",
// sent on the wire as NULL. It is distinct from an obstacle with no
// assignment at all.
const NullTarget = -1

// TargetAssignments maps obstacle ids to target ids. Assignments outlive the
// obstacles they describe: one may arrive before its obstacle is placed and is
// applied to whichever obstacle holds the id later.
type TargetAssignments struct {
	byObstacle map[int]int
}

// NewTargetAssignments returns an empty assignment table
func NewTargetAssignments() *TargetAssignments {
	return &TargetAssignments{byObstacle: make(map[int]int)}
}

// Set records targetID for obstacleID
func (t *TargetAssignments) Set(obstacleID, targetID int) {
	t.byObstacle[obstacleID] = targetID
}

// Get returns the assignment for obstacleID, if any
func (t *TargetAssignments) Get(obstacleID int) (int, bool) {
	id, ok := t.byObstacle[obstacleID]
	return id, ok
}

// Delete forgets the assignment for obstacleID
func (t *TargetAssignments) Delete(obstacleID int) {
	delete(t.byObstacle, obstacleID)
}

// Clear forgets every assignment
func (t *TargetAssignments) Clear() {
	clear(t.byObstacle)
}

// Snapshot returns a copy of the table
func (t *TargetAssignments) Snapshot() map[int]int {
	return maps.Clone(t.byObstacle)
}

// IsNullTarget reports whether targetID is the NULL sentinel
func IsNullTarget(targetID int) bool {
	return targetID == NullTarget
}
