package rover

import (
	"sync"
	"time"
)

// LinkStatus is the link state as reported to presentation
type LinkStatus string

const (
	LinkConnected         LinkStatus = "Connected"
	LinkAwaitingReconnect LinkStatus = "AwaitingReconnect"
	LinkDisconnected      LinkStatus = "Disconnected"
)

// Notifier receives core events. Implementations must not block for long;
// they are called from the dispatch and session goroutines.
type Notifier interface {
	PoseUpdated(v Vehicle)
	TargetAssigned(obstacleID, targetID int)
	ObstacleUpserted(o Obstacle)
	LinkStatusChanged(status LinkStatus)
}

// NopNotifier discards every event
type NopNotifier struct{}

func (NopNotifier) PoseUpdated(Vehicle)          {}
func (NopNotifier) TargetAssigned(int, int)      {}
func (NopNotifier) ObstacleUpserted(Obstacle)    {}
func (NopNotifier) LinkStatusChanged(LinkStatus) {}

// Notifiers fans every event out to each member in order
type Notifiers []Notifier

func (ns Notifiers) PoseUpdated(v Vehicle) {
	for _, n := range ns {
		n.PoseUpdated(v)
	}
}

func (ns Notifiers) TargetAssigned(obstacleID, targetID int) {
	for _, n := range ns {
		n.TargetAssigned(obstacleID, targetID)
	}
}

func (ns Notifiers) ObstacleUpserted(o Obstacle) {
	for _, n := range ns {
		n.ObstacleUpserted(o)
	}
}

func (ns Notifiers) LinkStatusChanged(status LinkStatus) {
	for _, n := range ns {
		n.LinkStatusChanged(status)
	}
}

// EventType names an Event's payload
type EventType string

const (
	EventPose     EventType = "pose"
	EventTarget   EventType = "target"
	EventObstacle EventType = "obstacle"
	EventLink     EventType = "link"
)

// Event is the serialisable form of a Notifier call
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Pose      *Vehicle   `json:"pose,omitempty"`
	Obstacle  *Obstacle  `json:"obstacle,omitempty"`
	Target    *TargetMsg `json:"target,omitempty"`
	Link      LinkStatus `json:"link,omitempty"`
}

// TargetMsg carries a target assignment
type TargetMsg struct {
	ObstacleID int `json:"obstacleId"`
	TargetID   int `json:"targetId"`
}

// EventBus is a Notifier that turns calls into Events and hands them to
// channel subscribers. A subscriber whose buffer is full misses the event;
// publishers never wait.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
}

// NewEventBus creates a bus with no subscribers
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the current subscriber count
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber with room in its buffer
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *EventBus) PoseUpdated(v Vehicle) {
	b.Publish(Event{Type: EventPose, Pose: &v})
}

func (b *EventBus) TargetAssigned(obstacleID, targetID int) {
	b.Publish(Event{Type: EventTarget, Target: &TargetMsg{ObstacleID: obstacleID, TargetID: targetID}})
}

func (b *EventBus) ObstacleUpserted(o Obstacle) {
	b.Publish(Event{Type: EventObstacle, Obstacle: &o})
}

func (b *EventBus) LinkStatusChanged(status LinkStatus) {
	b.Publish(Event{Type: EventLink, Link: status})
}
