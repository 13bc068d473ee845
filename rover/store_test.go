package rover

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Vehicle
// ---------------------------------------------------------------------------

func TestStore_PlaceVehicle(t *testing.T) {
	s := NewStore()
	_, ok := s.Vehicle()
	assert.False(t, ok)

	s.PlaceObstacle(6, 6, 1, North)

	_, ok = s.PlaceVehicle(5, 5, North)
	assert.False(t, ok, "footprint overlaps obstacle")
	_, ok = s.PlaceVehicle(GridSize-1, 0, North)
	assert.False(t, ok, "footprint leaves the arena")

	v, ok := s.PlaceVehicle(2, 3, East)
	require.True(t, ok)
	assert.Equal(t, NewVehicle(2, 3, East), v)

	got, ok := s.Vehicle()
	require.True(t, ok)
	assert.Equal(t, v, got)

	s.ClearVehicle()
	_, ok = s.Vehicle()
	assert.False(t, ok)
}

func TestStore_TemplateGeometry(t *testing.T) {
	tmpl := NewVehicle(0, 0, North)
	tmpl.Width, tmpl.Height, tmpl.PivotHead = 3, 2, 2
	s := NewStoreWithVehicle(tmpl)

	v, ok := s.PlaceVehicle(1, 1, North)
	require.True(t, ok)
	assert.Equal(t, 3, v.Width)
	assert.Equal(t, 2, v.PivotHead)

	s.ClearVehicle()
	v = s.SetPose(4, 4, South)
	assert.Equal(t, 3, v.Width, "a pose with no vehicle placed uses the template body")
}

func TestStore_SetPose(t *testing.T) {
	tests := []struct {
		name         string
		x, y         int
		heading      Direction
		wantX, wantY int
	}{
		{"in range", 4, 5, West, 4, 5},
		{"clamped high", 30, 30, North, GridSize - 2, GridSize - 2},
		{"clamped low", -4, -2, South, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			v := s.SetPose(tt.x, tt.y, tt.heading)
			assert.Equal(t, tt.wantX, v.X)
			assert.Equal(t, tt.wantY, v.Y)
			assert.Equal(t, tt.heading, v.Heading)

			got, ok := s.Vehicle()
			require.True(t, ok)
			assert.Equal(t, v, got)
		})
	}
}

func TestStore_SetPoseIgnoresObstacles(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(4, 4, 1, North)

	v := s.SetPose(4, 4, North)
	assert.Equal(t, 4, v.X, "robot pose is ground truth")
	assert.True(t, s.Snapshot().Grid.Occupied(4, 4))
}

func TestStore_ApplyManeuver(t *testing.T) {
	s := NewStore()

	_, _, err := s.ApplyManeuver(Forward)
	assert.ErrorIs(t, err, ErrNoVehicle)

	s.PlaceVehicle(0, 0, North)
	v, ok, err := s.ApplyManeuver(Forward)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Y)

	v, ok, err = s.ApplyManeuver(ForwardLeft)
	require.NoError(t, err)
	assert.False(t, ok, "turning left off the arena")
	assert.Equal(t, 1, v.Y)
	assert.Equal(t, North, v.Heading)

	_, _, err = s.ApplyManeuver(Maneuver(12))
	assert.ErrorIs(t, err, ErrUnknownManeuver)
}

// ---------------------------------------------------------------------------
// Obstacles
// ---------------------------------------------------------------------------

func TestStore_AddObstacle(t *testing.T) {
	s := NewStore()

	o, ok := s.AddObstacle(1, 1, North)
	require.True(t, ok)
	assert.Equal(t, 1, o.ID)

	o, ok = s.AddObstacle(2, 1, East)
	require.True(t, ok)
	assert.Equal(t, 2, o.ID)

	_, ok = s.AddObstacle(2, 1, East)
	assert.False(t, ok, "occupied")
	_, ok = s.AddObstacle(-1, 1, East)
	assert.False(t, ok, "out of bounds")

	s.RemoveObstacle(1, 1)
	s.AssignTarget(1, 21)
	o, ok = s.AddObstacle(9, 9, South)
	require.True(t, ok)
	assert.Equal(t, 1, o.ID, "smallest free id is reused")
	assert.True(t, o.HasTarget)
	assert.Equal(t, 21, o.TargetID, "retained target applies to the reused id")
}

func TestStore_RemoveObstacle(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(3, 3, 5, West)

	_, ok := s.RemoveObstacle(4, 4)
	assert.False(t, ok)

	o, ok := s.RemoveObstacle(3, 3)
	require.True(t, ok)
	assert.Equal(t, Obstacle{ID: 5, X: 3, Y: 3, Direction: West}, o)

	s.PlaceObstacle(3, 3, 5, West)
	o, ok = s.RemoveObstacleByID(5)
	require.True(t, ok)
	assert.Equal(t, 3, o.X)
	_, ok = s.RemoveObstacleByID(5)
	assert.False(t, ok)
}

func TestStore_RelocateAndReorient(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(3, 3, 5, West)
	s.PlaceObstacle(4, 4, 6, West)

	_, ok := s.RelocateObstacle(3, 3, 4, 4)
	assert.False(t, ok)

	o, ok := s.RelocateObstacle(3, 3, 10, 1)
	require.True(t, ok)
	assert.Equal(t, Obstacle{ID: 5, X: 10, Y: 1, Direction: West}, o)

	assert.True(t, s.SetObstacleDirection(10, 1, North))
	assert.False(t, s.SetObstacleDirection(3, 3, North))
	c, _ := s.CellAt(10, 1)
	assert.Equal(t, North, c.Direction)
}

func TestStore_UpsertObstacleAppliesRetainedTarget(t *testing.T) {
	s := NewStore()
	assert.False(t, s.AssignTarget(7, 14), "no obstacle carries id 7 yet")

	o, res := s.UpsertObstacle(7, 2, 2, East)
	require.Equal(t, UpsertCreated, res)
	assert.True(t, o.HasTarget)
	assert.Equal(t, 14, o.TargetID)

	o, res = s.UpsertObstacle(7, 3, 2, South)
	require.Equal(t, UpsertMoved, res)
	assert.Equal(t, 14, o.TargetID)

	_, res = s.UpsertObstacle(8, 3, 2, South)
	assert.Equal(t, UpsertRejected, res)
}

func TestStore_Targets(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(1, 1, 4, North)

	assert.True(t, s.AssignTarget(4, NullTarget))
	target, ok := s.TargetFor(4)
	require.True(t, ok)
	assert.Equal(t, NullTarget, target)

	s.AssignTarget(4, 11)
	o, _ := s.Obstacle(4)
	assert.Equal(t, 11, o.TargetID)

	s.ClearTargets()
	_, ok = s.TargetFor(4)
	assert.False(t, ok)
	o, _ = s.Obstacle(4)
	assert.False(t, o.HasTarget)
}

func TestStore_ClearObstaclesRetainsTargets(t *testing.T) {
	s := NewStore()
	s.PlaceObstacle(1, 1, 1, North)
	s.PlaceObstacle(2, 2, 2, North)
	s.AssignTarget(2, 30)

	s.ClearObstacles()
	assert.Empty(t, s.Obstacles())

	target, ok := s.TargetFor(2)
	require.True(t, ok)
	assert.Equal(t, 30, target)
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	empty := s.Snapshot()
	assert.NotNil(t, empty.Obstacles)
	assert.Nil(t, empty.Vehicle)
	assert.True(t, empty.Updated.IsZero())

	s.PlaceObstacle(1, 1, 1, North)
	s.AssignTarget(1, 3)
	s.PlaceVehicle(5, 5, East)

	snap := s.Snapshot()
	require.Len(t, snap.Obstacles, 1)
	require.NotNil(t, snap.Vehicle)
	assert.Equal(t, map[int]int{1: 3}, snap.Targets)
	assert.False(t, snap.Updated.IsZero())

	// the snapshot is isolated from later mutations
	s.RemoveObstacle(1, 1)
	s.ApplyManeuver(Forward)
	snap.Targets[1] = 99

	assert.True(t, snap.Grid.Occupied(1, 1))
	assert.Equal(t, 5, snap.Vehicle.X)
	target, _ := s.TargetFor(1)
	assert.Equal(t, 3, target)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	s.PlaceVehicle(0, 0, North)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.UpsertObstacle(i+1, (i*2+j)%GridSize, 10+j%5, North)
				s.AssignTarget(i+1, j)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.ApplyManeuver(Forward)
				s.ApplyManeuver(Backward)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	ids := map[int]bool{}
	for _, o := range s.Obstacles() {
		assert.False(t, ids[o.ID], "duplicate id %d", o.ID)
		ids[o.ID] = true
	}
}
