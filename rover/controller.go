package rover

import (
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Sender transmits raw bytes over the link. *Session implements it.
type Sender interface {
	Send(b []byte) error
}

// MoveResult reports the outcome of Controller.Move
type MoveResult struct {
	Vehicle  Vehicle `json:"vehicle"`
	Accepted bool    `json:"accepted"`
	Sent     bool    `json:"sent"`
}

// Controller carries user actions through the model and out over the link:
// validate and commit against the Store, notify, then transmit.
type Controller struct {
	store    *Store
	link     Sender
	notifier Notifier
	logger   zerolog.Logger
	metrics  *instruments
}

// NewController creates a controller. link may be nil, in which case nothing
// is transmitted.
func NewController(store *Store, link Sender, notifier Notifier, logger zerolog.Logger) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		store:    store,
		link:     link,
		notifier: notifier,
		logger:   logger.With().Str("component", "controller").Logger(),
		metrics:  newInstruments(),
	}
}

// Store returns the world store the controller mutates
func (c *Controller) Store() *Store {
	return c.store
}

// PlaceVehicle puts the vehicle on the grid
func (c *Controller) PlaceVehicle(x, y int, heading Direction) (Vehicle, bool) {
	v, ok := c.store.PlaceVehicle(x, y, heading)
	if ok {
		c.notifier.PoseUpdated(v)
	}
	return v, ok
}

// Move applies a maneuver. The action code goes out only when the move is
// accepted; a rejected move changes nothing and sends nothing.
func (c *Controller) Move(m Maneuver) (MoveResult, error) {
	v, accepted, err := c.store.ApplyManeuver(m)
	if err != nil {
		return MoveResult{}, err
	}
	c.metrics.add(c.metrics.maneuvers, attribute.String("code", m.Code()), attribute.Bool("accepted", accepted))

	res := MoveResult{Vehicle: v, Accepted: accepted}
	if !accepted {
		c.logger.Debug().Stringer("maneuver", m).Str("vehicle", v.String()).Msg("Maneuver rejected")
		return res, nil
	}

	c.notifier.PoseUpdated(v)
	res.Sent = c.transmit(m.Code())
	return res, nil
}

// AddObstacle places a new obstacle under the next free id and transmits it
func (c *Controller) AddObstacle(x, y int, dir Direction) (Obstacle, bool) {
	o, ok := c.store.AddObstacle(x, y, dir)
	if !ok {
		return Obstacle{}, false
	}
	c.notifier.ObstacleUpserted(o)
	c.transmit(FormatObstacle(o))
	return o, true
}

// EditObstacle applies the desired end state for obstacle id and transmits
// the result
func (c *Controller) EditObstacle(id, x, y int, dir Direction) (Obstacle, UpsertResult) {
	o, res := c.store.UpsertObstacle(id, x, y, dir)
	if res == UpsertRejected {
		return o, res
	}
	c.notifier.ObstacleUpserted(o)
	c.transmit(FormatObstacle(o))
	return o, res
}

// MoveObstacle relocates the obstacle at (fromX, fromY) onto an empty cell
func (c *Controller) MoveObstacle(fromX, fromY, toX, toY int) (Obstacle, bool) {
	o, ok := c.store.RelocateObstacle(fromX, fromY, toX, toY)
	if !ok {
		return Obstacle{}, false
	}
	c.notifier.ObstacleUpserted(o)
	c.transmit(FormatObstacle(o))
	return o, true
}

// RemoveObstacle deletes obstacle id. Removal has no wire form and is local.
func (c *Controller) RemoveObstacle(id int) (Obstacle, bool) {
	return c.store.RemoveObstacleByID(id)
}

// ClearObstacles deletes every obstacle locally
func (c *Controller) ClearObstacles() {
	c.store.ClearObstacles()
}

// SendObstacles transmits every obstacle, one line each, and returns how
// many were sent
func (c *Controller) SendObstacles() (int, error) {
	obstacles := c.store.Obstacles()
	if len(obstacles) == 0 {
		return 0, nil
	}
	if err := c.send(FormatObstacles(obstacles)); err != nil {
		return 0, err
	}
	return len(obstacles), nil
}

// SendPose transmits the current vehicle pose
func (c *Controller) SendPose() error {
	v, ok := c.store.Vehicle()
	if !ok {
		return ErrNoVehicle
	}
	return c.send(FormatPose(v))
}

func (c *Controller) send(msg string) error {
	if c.link == nil {
		return ErrNotConnected
	}
	return c.link.Send([]byte(msg))
}

// transmit is fire-and-forget: failures are logged and reported as false
func (c *Controller) transmit(msg string) bool {
	err := c.send(msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotConnected):
		c.logger.Debug().Str("msg", msg).Msg("Not connected, message not sent")
	default:
		c.logger.Warn().Err(err).Str("msg", msg).Msg("Send failed")
	}
	return false
}
