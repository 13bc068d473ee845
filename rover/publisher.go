package rover

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Publisher mirrors core events to MQTT as retained JSON state:
//
//	{prefix}/state/pose
//	{prefix}/state/targets
//	{prefix}/state/obstacles/{id}
//	{prefix}/state/link
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
	logger zerolog.Logger

	mu      sync.RWMutex
	targets map[int]int
}

// PosePayload is the JSON body of the pose topic
type PosePayload struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Heading   Direction `json:"heading"`
	Timestamp int64     `json:"timestamp"`
}

// NewPublisher creates a state publisher. If client is nil, publishing is
// disabled.
func NewPublisher(client mqtt.Client, prefix string, logger zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = "gridlink"
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     0,
		retain:  true,
		logger:  logger.With().Str("component", "publisher").Logger(),
		targets: make(map[int]int),
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

func (p *Publisher) PoseUpdated(v Vehicle) {
	p.logErr(p.PublishPose(v))
}

func (p *Publisher) TargetAssigned(obstacleID, targetID int) {
	p.mu.Lock()
	p.targets[obstacleID] = targetID
	p.mu.Unlock()
	p.logErr(p.publishTargets())
}

func (p *Publisher) ObstacleUpserted(o Obstacle) {
	p.logErr(p.PublishObstacle(o))
}

func (p *Publisher) LinkStatusChanged(status LinkStatus) {
	p.logErr(p.publish("link", map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
	}))
}

// PublishPose publishes the vehicle pose
func (p *Publisher) PublishPose(v Vehicle) error {
	return p.publish("pose", PosePayload{X: v.X, Y: v.Y, Heading: v.Heading, Timestamp: time.Now().Unix()})
}

// PublishObstacle publishes one obstacle to its own topic
func (p *Publisher) PublishObstacle(o Obstacle) error {
	return p.publish("obstacles/"+strconv.Itoa(o.ID), o)
}

// Targets returns a copy of the assignments seen so far
func (p *Publisher) Targets() map[int]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int]int, len(p.targets))
	for k, v := range p.targets {
		out[k] = v
	}
	return out
}

func (p *Publisher) publishTargets() error {
	targets := p.Targets()
	body := make(map[string]int, len(targets))
	for k, v := range targets {
		body[strconv.Itoa(k)] = v
	}
	return p.publish("targets", body)
}

func (p *Publisher) publish(suffix string, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/state/%s", p.prefix, suffix)
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	p.logger.Trace().Str("topic", topic).Int("bytes", len(payload)).Msg("Published state")
	return nil
}

func (p *Publisher) logErr(err error) {
	if err != nil {
		p.logger.Debug().Err(err).Msg("State publish skipped")
	}
}
