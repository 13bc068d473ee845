package rover

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status payloads on {prefix}/{peer}/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const mqttTokenTimeout = 5 * time.Second

// MQTTTransport carries the link through an MQTT broker to a radio bridge.
//
// For peer P and strategy S (svc-<id> or ch-<n>) the bridge subscribes to
// {prefix}/P/S/down and publishes what the robot sends to {prefix}/P/S/up.
// The bridge publishes "offline" to {prefix}/P/status when the radio link
// drops. Peers that want to be accepted publish their service id to
// {prefix}/P/hello.
type MQTTTransport struct {
	client mqtt.Client
	prefix string
	logger zerolog.Logger

	mu        sync.Mutex
	conns     map[*mqttConn]struct{}
	holders   map[string]map[*mqttConn]struct{} // filter -> conns reading it
	onLost    func(Peer)
	connected bool
}

// NewMQTTClientOptions builds paho client options from config. Handlers are
// attached by NewMQTTTransport.
func NewMQTTClientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gridlink-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true) // chunks of one stream must arrive in order
	return opts
}

// NewMQTTTransport creates a transport on a new paho client for cfg
func NewMQTTTransport(cfg MQTTConfig, logger zerolog.Logger) *MQTTTransport {
	t := newMQTTTransport(nil, cfg.Prefix, logger)
	opts := NewMQTTClientOptions(cfg)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetReconnectingHandler(t.onReconnecting)
	t.client = mqtt.NewClient(opts)
	return t
}

// newMQTTTransportWithClient wraps an existing client, used with MockClient
func newMQTTTransportWithClient(client mqtt.Client, prefix string, logger zerolog.Logger) *MQTTTransport {
	return newMQTTTransport(client, prefix, logger)
}

func newMQTTTransport(client mqtt.Client, prefix string, logger zerolog.Logger) *MQTTTransport {
	if prefix == "" {
		prefix = "gridlink"
	}
	return &MQTTTransport{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		logger:  logger.With().Str("component", "mqtt").Logger(),
		conns:   make(map[*mqttConn]struct{}),
		holders: make(map[string]map[*mqttConn]struct{}),
	}
}

// Connect connects to the broker, retrying with exponential backoff until
// ctx is done
func (t *MQTTTransport) Connect(ctx context.Context) error {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		t.logger.Info().Msg("Connecting to MQTT broker")
		token := t.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				t.setConnected(true)
				t.logger.Info().Msg("Connected to MQTT broker")
				return nil
			}
			t.logger.Warn().Err(token.Error()).Msg("MQTT connection failed")
		} else {
			t.logger.Warn().Msg("MQTT connection timeout")
		}

		t.logger.Info().Dur("retry", retryDelay).Msg("Retrying MQTT connection")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

// Client returns the underlying client for publishing
func (t *MQTTTransport) Client() mqtt.Client {
	return t.client
}

// IsConnected returns true if the broker connection is up
func (t *MQTTTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *MQTTTransport) setConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// Disconnect closes every open link and the broker connection
func (t *MQTTTransport) Disconnect() {
	t.mu.Lock()
	conns := make([]*mqttConn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if t.client != nil && t.client.IsConnected() {
		t.logger.Info().Msg("Disconnecting from MQTT broker")
		t.client.Disconnect(250)
	}
	t.setConnected(false)
}

// OnLinkLost registers fn to be told about links lost with the broker
func (t *MQTTTransport) OnLinkLost(fn func(Peer)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = fn
}

func (t *MQTTTransport) onConnect(mqtt.Client) {
	t.setConnected(true)
	t.logger.Info().Msg("MQTT connected")
}

// onConnectionLost reports every open link as lost. With a clean session
// the subscriptions are gone, so the holder table is emptied and the session
// has to rebuild each link.
func (t *MQTTTransport) onConnectionLost(_ mqtt.Client, err error) {
	t.logger.Warn().Err(err).Msg("MQTT connection interrupted")

	t.mu.Lock()
	t.connected = false
	t.holders = make(map[string]map[*mqttConn]struct{})
	fn := t.onLost
	peers := make([]Peer, 0, len(t.conns))
	for c := range t.conns {
		peers = append(peers, c.peer)
	}
	t.mu.Unlock()

	if fn == nil {
		return
	}
	for _, p := range peers {
		fn(p)
	}
}

func (t *MQTTTransport) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	t.logger.Info().Msg("MQTT reconnecting")
}

func (t *MQTTTransport) topic(parts ...string) string {
	return t.prefix + "/" + strings.Join(parts, "/")
}

func strategySegment(s Strategy) string {
	if s.IsChannel() {
		return fmt.Sprintf("ch-%d", s.Channel)
	}
	return "svc-" + s.ServiceID
}

// Dial opens a link to peer through the bridge. It succeeds once the topics
// are subscribed; whether the bridge or the robot is listening only shows
// later as data or an "offline" status. A dial therefore fails only on a
// bad peer, a lost broker or a refused subscription.
func (t *MQTTTransport) Dial(ctx context.Context, peer Peer, strategy Strategy) (Conn, error) {
	if peer.Address == "" || strings.ContainsAny(peer.Address, "/+#") {
		return nil, fmt.Errorf("invalid peer %q", peer.Address)
	}
	if !t.client.IsConnected() {
		return nil, fmt.Errorf("dial %s: %w", peer, mqtt.ErrNotConnected)
	}
	return t.open(ctx, peer, strategy)
}

// open attaches a conn to the peer's up and status topics. A peer can hold
// several conns at once while a replacement link is adopted, so filters are
// shared: the broker subscription is made by the first holder and dropped
// with the last, and messages go to every holder.
func (t *MQTTTransport) open(ctx context.Context, peer Peer, strategy Strategy) (*mqttConn, error) {
	seg := strategySegment(strategy)
	c := newMQTTConn(t, peer, t.topic(peer.Address, seg, "down"))
	c.subscriptions = []string{t.topic(peer.Address, seg, "up"), t.topic(peer.Address, "status")}

	fresh := t.hold(c)
	if len(fresh) > 0 {
		subs := make(map[string]byte, len(fresh))
		for _, f := range fresh {
			subs[f] = 1
		}
		token := t.client.SubscribeMultiple(subs, t.route)
		if err := waitToken(ctx, token); err != nil {
			t.release(c)
			return nil, fmt.Errorf("subscribe %s/%s: %w", peer, seg, err)
		}
	}

	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()

	t.logger.Debug().Str("peer", peer.Address).Str("strategy", seg).Int("new_filters", len(fresh)).Msg("MQTT link opened")
	return c, nil
}

// hold registers c on its filters and returns those nobody held before
func (t *MQTTTransport) hold(c *mqttConn) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []string
	for _, f := range c.subscriptions {
		set, ok := t.holders[f]
		if !ok {
			set = make(map[*mqttConn]struct{})
			t.holders[f] = set
			fresh = append(fresh, f)
		}
		set[c] = struct{}{}
	}
	return fresh
}

// release removes c from its filters and returns those left without holders
func (t *MQTTTransport) release(c *mqttConn) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []string
	for _, f := range c.subscriptions {
		set := t.holders[f]
		delete(set, c)
		if len(set) == 0 {
			delete(t.holders, f)
			idle = append(idle, f)
		}
	}
	return idle
}

// route hands a message to every conn holding its topic. Link filters carry
// no wildcards, so the topic is the filter.
func (t *MQTTTransport) route(client mqtt.Client, msg mqtt.Message) {
	t.mu.Lock()
	targets := make([]*mqttConn, 0, len(t.holders[msg.Topic()]))
	for c := range t.holders[msg.Topic()] {
		targets = append(targets, c)
	}
	t.mu.Unlock()

	for _, c := range targets {
		c.handleMessage(client, msg)
	}
}

func (t *MQTTTransport) forget(c *mqttConn) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()

	idle := t.release(c)
	if len(idle) > 0 && t.client.IsConnected() {
		token := t.client.Unsubscribe(idle...)
		token.WaitTimeout(mqttTokenTimeout)
	}
}

// Listen subscribes to {prefix}/+/hello. Each hello opens a link to the
// announcing peer on the service id in the payload.
func (t *MQTTTransport) Listen(ctx context.Context) (Listener, error) {
	if !t.client.IsConnected() {
		return nil, fmt.Errorf("listen: %w", mqtt.ErrNotConnected)
	}
	l := &mqttListener{
		t:      t,
		filter: t.topic("+", "hello"),
		hellos: make(chan Peer, 8),
		svc:    make(map[string]string),
		done:   make(chan struct{}),
	}
	token := t.client.Subscribe(l.filter, 1, l.handleHello)
	if err := waitToken(ctx, token); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", l.filter, err)
	}
	return l, nil
}

type mqttListener struct {
	t      *MQTTTransport
	filter string
	hellos chan Peer

	mu   sync.Mutex
	svc  map[string]string
	done chan struct{}
	once sync.Once
}

func (l *mqttListener) handleHello(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(strings.TrimPrefix(msg.Topic(), l.t.prefix+"/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return
	}
	peer := Peer{Address: parts[0]}

	l.mu.Lock()
	l.svc[peer.Address] = strings.TrimSpace(string(msg.Payload()))
	l.mu.Unlock()

	select {
	case l.hellos <- peer:
	case <-l.done:
	default:
		l.t.logger.Warn().Str("peer", peer.Address).Msg("Dropping hello, accept queue full")
	}
}

func (l *mqttListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrTransportClosed
	case peer := <-l.hellos:
		l.mu.Lock()
		svc := l.svc[peer.Address]
		l.mu.Unlock()

		strategy := ServiceStrategy(svc)
		if svc == "" {
			strategy = ChannelStrategy(0)
		}
		return l.t.open(ctx, peer, strategy)
	}
}

func (l *mqttListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		if l.t.client.IsConnected() {
			l.t.client.Unsubscribe(l.filter).WaitTimeout(mqttTokenTimeout)
		}
	})
	return nil
}

// mqttConn turns topic traffic into a byte stream
type mqttConn struct {
	t             *MQTTTransport
	peer          Peer
	downTopic     string
	subscriptions []string

	inbox  chan []byte
	closed chan struct{}
	eof    chan struct{}
	once   sync.Once
	eofOne sync.Once

	// mu serialises publishes
	mu sync.Mutex
}

func newMQTTConn(t *MQTTTransport, peer Peer, downTopic string) *mqttConn {
	return &mqttConn{
		t:         t,
		peer:      peer,
		downTopic: downTopic,
		inbox:     make(chan []byte, 64),
		closed:    make(chan struct{}),
		eof:       make(chan struct{}),
	}
}

func (c *mqttConn) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if strings.HasSuffix(msg.Topic(), "/status") {
		if strings.EqualFold(strings.TrimSpace(string(msg.Payload())), StatusOffline) {
			c.eofOne.Do(func() { close(c.eof) })
		}
		return
	}

	payload := append([]byte(nil), msg.Payload()...)
	select {
	case c.inbox <- payload:
	case <-c.closed:
	case <-c.eof:
	}
}

func (c *mqttConn) Peer() Peer {
	return c.peer
}

// Receive drains queued data before reporting end of stream
func (c *mqttConn) Receive() ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	default:
	}
	select {
	case b := <-c.inbox:
		return b, nil
	case <-c.eof:
		return nil, io.EOF
	case <-c.closed:
		return nil, ErrTransportClosed
	}
}

func (c *mqttConn) Send(b []byte) error {
	select {
	case <-c.closed:
		return ErrTransportClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	token := c.t.client.Publish(c.downTopic, 1, false, b)
	if !token.WaitTimeout(mqttTokenTimeout) {
		return fmt.Errorf("publish %s: timeout", c.downTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", c.downTopic, err)
	}
	return nil
}

func (c *mqttConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.t.forget(c)
	})
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
