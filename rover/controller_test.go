package rover

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSender) Send(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, string(b))
	return nil
}

func (r *recordingSender) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func newTestController(t *testing.T) (*Controller, *recordingSender, *mockNotifier) {
	t.Helper()
	link := &recordingSender{}
	n := &mockNotifier{}
	return NewController(NewStore(), link, n, zerolog.Nop()), link, n
}

// ---------------------------------------------------------------------------
// Maneuvers
// ---------------------------------------------------------------------------

func TestController_MoveWithoutVehicle(t *testing.T) {
	c, link, n := newTestController(t)

	_, err := c.Move(Forward)
	assert.ErrorIs(t, err, ErrNoVehicle)
	assert.Empty(t, link.Sent())
	n.AssertExpectations(t)
}

func TestController_Move(t *testing.T) {
	tests := []struct {
		name         string
		m            Maneuver
		wantAccepted bool
		wantSent     []string
	}{
		{"forward", Forward, true, []string{"f"}},
		{"forward right", ForwardRight, true, []string{"fr"}},
		{"backward into wall", Backward, false, nil},
		{"backward left into wall", BackwardLeft, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, link, n := newTestController(t)
			n.On("PoseUpdated", mock.Anything)
			_, ok := c.PlaceVehicle(5, 0, North)
			require.True(t, ok)

			res, err := c.Move(tt.m)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccepted, res.Accepted)
			assert.Equal(t, tt.wantAccepted, res.Sent)
			assert.Equal(t, tt.wantSent, link.Sent())

			calls := 1
			if tt.wantAccepted {
				calls = 2
			}
			n.AssertNumberOfCalls(t, "PoseUpdated", calls)
			if !tt.wantAccepted {
				assert.Equal(t, NewVehicle(5, 0, North), res.Vehicle, "rejected move leaves the pose")
			}
		})
	}
}

func TestController_MoveNotConnected(t *testing.T) {
	c, link, n := newTestController(t)
	n.On("PoseUpdated", mock.Anything)
	link.err = ErrNotConnected
	c.PlaceVehicle(5, 5, East)

	res, err := c.Move(Forward)
	require.NoError(t, err)
	assert.True(t, res.Accepted, "the model moves even when the link is down")
	assert.False(t, res.Sent)
	assert.Equal(t, 6, res.Vehicle.X)
}

func TestController_NilLink(t *testing.T) {
	c := NewController(NewStore(), nil, nil, zerolog.Nop())
	c.PlaceVehicle(1, 1, North)

	res, err := c.Move(Forward)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Sent)
	assert.ErrorIs(t, c.SendPose(), ErrNotConnected)
	assert.NotNil(t, c.Store())
}

// ---------------------------------------------------------------------------
// Obstacles
// ---------------------------------------------------------------------------

func TestController_AddObstacle(t *testing.T) {
	c, link, n := newTestController(t)
	n.On("ObstacleUpserted", Obstacle{ID: 1, X: 3, Y: 3, Direction: North}).Once()

	o, ok := c.AddObstacle(3, 3, North)
	require.True(t, ok)
	assert.Equal(t, 1, o.ID)
	assert.Equal(t, []string{"OBSTACLE,1,3,3,NORTH"}, link.Sent())

	_, ok = c.AddObstacle(3, 3, South)
	assert.False(t, ok)
	assert.Len(t, link.Sent(), 1, "rejected additions are not sent")
	n.AssertExpectations(t)
}

func TestController_EditObstacle(t *testing.T) {
	c, link, n := newTestController(t)
	c.Store().PlaceObstacle(3, 3, 1, North)
	c.Store().PlaceObstacle(8, 8, 2, North)
	n.On("ObstacleUpserted", mock.Anything)

	o, res := c.EditObstacle(1, 4, 4, West)
	assert.Equal(t, UpsertMoved, res)
	assert.Equal(t, 4, o.X)

	o, res = c.EditObstacle(1, 8, 8, South)
	assert.Equal(t, UpsertReoriented, res)
	assert.Equal(t, 4, o.X)

	_, res = c.EditObstacle(7, 8, 8, South)
	assert.Equal(t, UpsertRejected, res)

	assert.Equal(t, []string{"OBSTACLE,1,4,4,WEST", "OBSTACLE,1,4,4,SOUTH"}, link.Sent())
	n.AssertNumberOfCalls(t, "ObstacleUpserted", 2)
}

func TestController_MoveObstacle(t *testing.T) {
	c, link, n := newTestController(t)
	c.Store().PlaceObstacle(3, 3, 4, East)
	n.On("ObstacleUpserted", mock.Anything).Once()

	o, ok := c.MoveObstacle(3, 3, 0, 19)
	require.True(t, ok)
	assert.Equal(t, 19, o.Y)

	_, ok = c.MoveObstacle(3, 3, 1, 1)
	assert.False(t, ok)
	assert.Equal(t, []string{"OBSTACLE,4,0,19,EAST"}, link.Sent())
	n.AssertExpectations(t)
}

func TestController_RemoveIsLocal(t *testing.T) {
	c, link, _ := newTestController(t)
	c.Store().PlaceObstacle(3, 3, 4, East)
	c.Store().PlaceObstacle(5, 3, 5, East)

	_, ok := c.RemoveObstacle(4)
	assert.True(t, ok)
	_, ok = c.RemoveObstacle(4)
	assert.False(t, ok)

	c.ClearObstacles()
	assert.Empty(t, c.Store().Obstacles())
	assert.Empty(t, link.Sent())
}

// ---------------------------------------------------------------------------
// Bulk sends
// ---------------------------------------------------------------------------

func TestController_SendObstacles(t *testing.T) {
	c, link, _ := newTestController(t)

	n, err := c.SendObstacles()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, link.Sent(), "nothing to send")

	c.Store().PlaceObstacle(9, 2, 1, North)
	c.Store().PlaceObstacle(1, 2, 2, West)
	n, err = c.SendObstacles()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"OBSTACLE,2,1,2,WEST\nOBSTACLE,1,9,2,NORTH"}, link.Sent())

	link.err = errTest
	_, err = c.SendObstacles()
	assert.ErrorIs(t, err, errTest)
}

func TestController_SendPose(t *testing.T) {
	c, link, n := newTestController(t)
	assert.ErrorIs(t, c.SendPose(), ErrNoVehicle)

	n.On("PoseUpdated", mock.Anything).Once()
	c.PlaceVehicle(2, 3, West)
	require.NoError(t, c.SendPose())
	assert.Equal(t, []string{"ROBOT,2,3,W"}, link.Sent())
	n.AssertExpectations(t)
}
