package rover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockNotifier records Notifier calls through testify/mock
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PoseUpdated(v Vehicle) {
	m.Called(v)
}

func (m *mockNotifier) TargetAssigned(obstacleID, targetID int) {
	m.Called(obstacleID, targetID)
}

func (m *mockNotifier) ObstacleUpserted(o Obstacle) {
	m.Called(o)
}

func (m *mockNotifier) LinkStatusChanged(status LinkStatus) {
	m.Called(status)
}

func TestNotifiers_FanOut(t *testing.T) {
	a, b := &mockNotifier{}, &mockNotifier{}
	v := NewVehicle(1, 2, North)
	o := Obstacle{ID: 3, X: 4, Y: 5, Direction: East}

	for _, m := range []*mockNotifier{a, b} {
		m.On("PoseUpdated", v).Once()
		m.On("TargetAssigned", 3, 12).Once()
		m.On("ObstacleUpserted", o).Once()
		m.On("LinkStatusChanged", LinkConnected).Once()
	}

	ns := Notifiers{a, NopNotifier{}, b}
	ns.PoseUpdated(v)
	ns.TargetAssigned(3, 12)
	ns.ObstacleUpserted(o)
	ns.LinkStatusChanged(LinkConnected)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

// ---------------------------------------------------------------------------
// EventBus
// ---------------------------------------------------------------------------

func TestEventBus_Delivers(t *testing.T) {
	bus := NewEventBus()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	ch, cancel := bus.Subscribe(8)
	defer cancel()

	bus.PoseUpdated(NewVehicle(3, 3, West))
	bus.TargetAssigned(2, NullTarget)
	bus.ObstacleUpserted(Obstacle{ID: 2, X: 1, Y: 1, Direction: South})
	bus.LinkStatusChanged(LinkAwaitingReconnect)

	e := <-ch
	assert.Equal(t, EventPose, e.Type)
	assert.Equal(t, fixed, e.Timestamp)
	require.NotNil(t, e.Pose)
	assert.Equal(t, West, e.Pose.Heading)

	e = <-ch
	assert.Equal(t, EventTarget, e.Type)
	assert.Equal(t, &TargetMsg{ObstacleID: 2, TargetID: NullTarget}, e.Target)

	e = <-ch
	assert.Equal(t, EventObstacle, e.Type)
	assert.Equal(t, 2, e.Obstacle.ID)

	e = <-ch
	assert.Equal(t, EventLink, e.Type)
	assert.Equal(t, LinkAwaitingReconnect, e.Link)
}

func TestEventBus_KeepsTimestamp(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: EventLink, Link: LinkConnected, Timestamp: at})
	assert.Equal(t, at, (<-ch).Timestamp)
}

func TestEventBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := NewEventBus()
	slow, cancelSlow := bus.Subscribe(1)
	defer cancelSlow()
	fast, cancelFast := bus.Subscribe(4)
	defer cancelFast()

	for i := 1; i <= 3; i++ {
		bus.TargetAssigned(i, i)
	}

	assert.Len(t, slow, 1, "slow subscriber keeps only what fits")
	assert.Len(t, fast, 3)
	assert.Equal(t, 1, (<-slow).Target.ObstacleID)
}

func TestEventBus_Cancel(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(0)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, bus.Subscribers())

	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	assert.NotPanics(t, func() { bus.LinkStatusChanged(LinkDisconnected) })
}
