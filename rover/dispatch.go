package rover

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher applies inbound protocol lines to the Store and reports the
// resulting changes to a Notifier. Bad lines are logged and dropped.
type Dispatcher struct {
	store    *Store
	notifier Notifier
	logger   zerolog.Logger
	metrics  *instruments

	mu     sync.Mutex
	framer LineFramer
}

// NewDispatcher creates a dispatcher. A nil notifier discards events.
func NewDispatcher(store *Store, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		metrics:  newInstruments(),
	}
}

// HandleChunk frames a raw read and applies each complete line. It is the
// receive callback handed to the Session.
func (d *Dispatcher) HandleChunk(chunk []byte) {
	d.mu.Lock()
	lines := d.framer.Feed(chunk)
	d.mu.Unlock()

	for _, line := range lines {
		_ = d.HandleLine(line)
	}
}

// Reset drops any partially received line, e.g. when a new link is adopted
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pending := d.framer.Flush(); len(pending) > 0 {
		d.logger.Debug().Strs("dropped", pending).Msg("Discarding partial line")
	}
}

// HandleLine applies a single line. The returned error is informational;
// the line has already been logged and discarded when it is non-nil.
func (d *Dispatcher) HandleLine(line string) error {
	cmd, err := ParseLine(line)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			d.logger.Debug().Str("line", line).Msg("Ignoring unrecognized command")
			d.metrics.add(d.metrics.discarded, attribute.String("reason", "unknown"))
		} else {
			d.logger.Warn().Err(err).Str("line", line).Msg("Discarding malformed command")
			d.metrics.add(d.metrics.discarded, attribute.String("reason", "malformed"))
		}
		return err
	}

	d.metrics.add(d.metrics.lines, attribute.String("kind", cmd.Kind.String()))

	switch cmd.Kind {
	case CommandRobot:
		p := cmd.Pose
		v := d.store.SetPose(p.X, p.Y, p.Heading)
		if v.X != p.X || v.Y != p.Y {
			d.logger.Debug().Int("x", p.X).Int("y", p.Y).Str("clamped", v.String()).Msg("Clamped inbound pose")
		}
		d.notifier.PoseUpdated(v)

	case CommandTarget:
		t := cmd.Target
		applied := d.store.AssignTarget(t.ObstacleID, t.TargetID)
		d.logger.Debug().Int("obstacle", t.ObstacleID).Int("target", t.TargetID).Bool("applied", applied).Msg("Target assigned")
		d.notifier.TargetAssigned(t.ObstacleID, t.TargetID)

	case CommandObstacle:
		o := cmd.Obstacle
		result, res := d.store.UpsertObstacle(o.ID, o.X, o.Y, o.Direction)
		if res == UpsertRejected {
			d.logger.Warn().Str("line", line).Msg("Obstacle upsert rejected")
			return nil
		}
		d.logger.Debug().Int("id", result.ID).Stringer("result", res).Msg("Obstacle upserted")
		d.notifier.ObstacleUpserted(result)
	}
	return nil
}
