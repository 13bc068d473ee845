package rover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// SessionState is the state of the outbound link
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateAwaitingRemoteReconnect
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAwaitingRemoteReconnect:
		return "AwaitingRemoteReconnect"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// MarshalText encodes the state by name
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// linkStatus maps a state to what presentation sees. Connecting has no
// status of its own.
func (s SessionState) linkStatus() (LinkStatus, bool) {
	switch s {
	case StateConnected:
		return LinkConnected, true
	case StateAwaitingRemoteReconnect:
		return LinkAwaitingReconnect, true
	case StateDisconnected:
		return LinkDisconnected, true
	}
	return "", false
}

// ListenState is the state of the server side
type ListenState int

const (
	ListenIdle ListenState = iota
	ListenListening
)

func (s ListenState) String() string {
	if s == ListenListening {
		return "Listening"
	}
	return "Idle"
}

// MarshalText encodes the state by name
func (s ListenState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session defaults
const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultFallbackChannel   = 1
)

// SessionOption configures a Session
type SessionOption func(*Session)

// WithNotifier sets the receiver of link status changes
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithReconnectInterval sets the delay between client-role reconnect attempts
func WithReconnectInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.reconnectInterval = d
		}
	}
}

// WithConnectTimeout bounds each individual dial
func WithConnectTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithFallbackChannel sets the fixed channel tried when the primary
// strategy fails
func WithFallbackChannel(channel int) SessionOption {
	return func(s *Session) {
		s.fallbackChannel = channel
	}
}

// WithAlternateChannelPeers lists peers whose primary strategy is the fixed
// channel instead of the service id
func WithAlternateChannelPeers(peers ...string) SessionOption {
	return func(s *Session) {
		for _, p := range peers {
			s.alternate[p] = true
		}
	}
}

// WithOnLinkUp sets a hook run for every adopted link, inbound or
// outbound, before its first chunk reaches the handler
func WithOnLinkUp(fn func(Peer)) SessionOption {
	return func(s *Session) {
		s.onLinkUp = fn
	}
}

// SessionStatus is a point-in-time view of a Session
type SessionStatus struct {
	State      SessionState `json:"state"`
	Listen     ListenState  `json:"listen"`
	Generation uint64       `json:"generation"`
	LinkID     string       `json:"linkId,omitempty"`
	Peer       string       `json:"peer,omitempty"`
	LastPeer   string       `json:"lastPeer,omitempty"`
	LastSvc    string       `json:"lastServiceId,omitempty"`
}

// Session owns the single logical link to the peer. It dials with a primary
// and a fallback strategy, accepts inbound links when started, tells manual
// from remote disconnects, and rebuilds a lost outbound link on a fixed
// interval.
//
// Each adopted connection, Connect call and Disconnect starts a new
// generation. Loops belonging to an older generation exit as soon as they
// wake.
type Session struct {
	transport Transport
	handler   func([]byte)
	onLinkUp  func(Peer)
	notifier  Notifier
	logger    zerolog.Logger
	metrics   *instruments

	reconnectInterval time.Duration
	connectTimeout    time.Duration
	fallbackChannel   int
	alternate         map[string]bool

	root       context.Context
	rootCancel context.CancelFunc

	mu          sync.Mutex
	state       SessionState
	listenState ListenState
	status      LinkStatus
	generation  uint64
	linkID      string
	genCtx      context.Context
	genCancel   context.CancelFunc
	conn        Conn
	outbound    bool
	manual      bool
	lastPeer    Peer
	lastService string
	hasLast     bool
	listener    Listener
	closed      bool

	// emitMu keeps status notifications in transition order
	emitMu sync.Mutex
	// writeMu allows a single writer on the link
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// NewSession creates a disconnected session. handler receives every chunk
// read from the link, in order, from the read loop goroutine.
func NewSession(transport Transport, handler func([]byte), opts ...SessionOption) *Session {
	if handler == nil {
		handler = func([]byte) {}
	}
	s := &Session{
		transport:         transport,
		handler:           handler,
		notifier:          NopNotifier{},
		logger:            zerolog.Nop(),
		metrics:           newInstruments(),
		reconnectInterval: DefaultReconnectInterval,
		connectTimeout:    DefaultConnectTimeout,
		fallbackChannel:   DefaultFallbackChannel,
		alternate:         make(map[string]bool),
		status:            LinkDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Logger()
	s.root, s.rootCancel = context.WithCancel(context.Background())

	if lm, ok := transport.(LinkMonitor); ok {
		lm.OnLinkLost(s.NotifyLinkLost)
	}
	return s
}

// State returns the link state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ListenState returns the server state
func (s *Session) ListenState() ListenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenState
}

// Generation returns the current generation number
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LastKnown returns the peer and service id of the last successful dial
func (s *Session) LastKnown() (Peer, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPeer, s.lastService, s.hasLast
}

// Status returns a snapshot of the session
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionStatus{
		State:      s.state,
		Listen:     s.listenState,
		Generation: s.generation,
		LinkID:     s.linkID,
	}
	if s.conn != nil {
		st.Peer = s.conn.Peer().Address
	}
	if s.hasLast {
		st.LastPeer, st.LastSvc = s.lastPeer.Address, s.lastService
	}
	return st
}

// Start opens the server side and accepts links until ctx is done or the
// session is closed. Every accepted link replaces the current one.
func (s *Session) Start(ctx context.Context) error {
	l, err := s.transport.Listen(ctx)
	if err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrTransportClosed
	}
	s.listener = l
	s.listenState = ListenListening
	s.mu.Unlock()
	s.logger.Info().Msg("Listening for inbound links")

	s.wg.Add(1)
	go s.acceptLoop(ctx, l)
	return nil
}

func (s *Session) acceptLoop(ctx context.Context, l Listener) {
	defer s.wg.Done()
	defer func() {
		_ = l.Close()
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
			s.listenState = ListenIdle
		}
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(s.root, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.root.Err() != nil || errors.Is(err, ErrTransportClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("Accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		s.logger.Info().Str("peer", conn.Peer().Address).Msg("Accepted inbound link")
		if !s.adopt(conn, 0, false) {
			_ = conn.Close()
			return
		}
	}
}

// Connect replaces any current link with a new outbound one. The primary
// strategy addresses serviceID (or the fixed channel for alternate-channel
// peers); one attempt on the fixed fallback channel follows a failure. It
// returns ErrConnectFailed when both fail and ErrSuperseded when a later
// Connect or Disconnect overtook this one.
func (s *Session) Connect(ctx context.Context, peer Peer, serviceID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrTransportClosed
	}
	gen, genCtx, old := s.advanceLocked()
	status, changed := s.setStateLocked(StateConnecting)
	s.unlockAndNotify(status, changed)
	closeConn(old)

	s.logger.Info().Str("peer", peer.Address).Str("service", serviceID).Uint64("gen", gen).Msg("Connecting")

	dialCtx, cancel := context.WithCancel(genCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	conn, err := s.dial(dialCtx, peer, serviceID)
	if err != nil {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return ErrSuperseded
		}
		status, changed := s.setStateLocked(StateDisconnected)
		s.unlockAndNotify(status, changed)
		s.logger.Warn().Err(err).Str("peer", peer.Address).Msg("Connect failed")
		return err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.lastPeer, s.lastService, s.hasLast = peer, serviceID, true
	}
	s.mu.Unlock()

	if !s.adopt(conn, gen, true) {
		_ = conn.Close()
		return ErrSuperseded
	}
	return nil
}

// dial tries the primary strategy, then the fallback channel
func (s *Session) dial(ctx context.Context, peer Peer, serviceID string) (Conn, error) {
	primary := ServiceStrategy(serviceID)
	if serviceID == "" || s.alternate[peer.Address] {
		primary = ChannelStrategy(s.fallbackChannel)
	}
	fallback := ChannelStrategy(s.fallbackChannel)

	conn, errPrimary := s.attempt(ctx, peer, primary)
	if errPrimary == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, errPrimary)
	}
	s.logger.Debug().Err(errPrimary).Stringer("strategy", primary).Msg("Primary strategy failed, trying fallback")

	conn, errFallback := s.attempt(ctx, peer, fallback)
	if errFallback == nil {
		return conn, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrConnectFailed, errors.Join(
		fmt.Errorf("%s: %w", primary, errPrimary),
		fmt.Errorf("%s: %w", fallback, errFallback),
	))
}

func (s *Session) attempt(ctx context.Context, peer Peer, strategy Strategy) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.transport.Dial(ctx, peer, strategy)
	kind := "service"
	if strategy.IsChannel() {
		kind = "channel"
	}
	s.metrics.add(s.metrics.attempts, attribute.String("strategy", kind), attribute.Bool("ok", err == nil))
	return conn, err
}

// adopt makes conn the current link under a new generation and starts its
// read loop. A non-zero expect makes adoption conditional on the generation
// still being expect. It reports false if the session is closed or the
// generation moved on.
func (s *Session) adopt(conn Conn, expect uint64, outbound bool) bool {
	s.mu.Lock()
	if s.closed || (expect != 0 && expect != s.generation) {
		s.mu.Unlock()
		return false
	}
	gen, genCtx, old := s.advanceLocked()
	s.conn = conn
	s.outbound = outbound
	s.manual = false
	linkID := s.linkID
	status, changed := s.setStateLocked(StateConnected)
	s.wg.Add(1)
	s.unlockAndNotify(status, changed)
	closeConn(old)
	if s.onLinkUp != nil {
		s.onLinkUp(conn.Peer())
	}

	s.logger.Info().Str("peer", conn.Peer().Address).Str("link", linkID).Uint64("gen", gen).Bool("outbound", outbound).Msg("Link connected")
	go s.readLoop(genCtx, gen, conn)
	return true
}

func (s *Session) readLoop(ctx context.Context, gen uint64, conn Conn) {
	defer s.wg.Done()
	for {
		b, err := conn.Receive()
		if err != nil {
			s.linkDown(gen, conn, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if len(b) > 0 {
			s.handler(b)
		}
	}
}

// linkDown handles the end of conn's stream
func (s *Session) linkDown(gen uint64, conn Conn, cause error) {
	_ = conn.Close()

	s.mu.Lock()
	if gen != s.generation || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil

	if s.manual {
		status, changed := s.setStateLocked(StateDisconnected)
		s.unlockAndNotify(status, changed)
		return
	}

	retry := s.outbound && s.hasLast
	genCtx := s.genCtx
	if retry {
		s.wg.Add(1)
	}
	status, changed := s.setStateLocked(StateAwaitingRemoteReconnect)
	s.unlockAndNotify(status, changed)

	s.logger.Warn().Err(cause).Str("peer", conn.Peer().Address).Bool("retry", retry).Msg("Link lost, awaiting reconnect")
	if retry {
		go s.retryLoop(genCtx, gen)
	}
}

// retryLoop re-dials the last known peer on a fixed interval. It runs within
// the generation of the lost link and stops when that generation ends.
func (s *Session) retryLoop(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reconnectInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if gen != s.generation || s.manual || s.closed {
			s.mu.Unlock()
			return
		}
		peer, serviceID := s.lastPeer, s.lastService
		status, changed := s.setStateLocked(StateConnecting)
		s.unlockAndNotify(status, changed)

		s.logger.Info().Str("peer", peer.Address).Int("attempt", attempt).Msg("Reconnecting")
		conn, err := s.dial(ctx, peer, serviceID)
		if err != nil {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			status, changed := s.setStateLocked(StateAwaitingRemoteReconnect)
			s.unlockAndNotify(status, changed)
			s.logger.Info().Err(err).Dur("retry", s.reconnectInterval).Msg("Reconnect failed")
			continue
		}

		if !s.adopt(conn, gen, true) {
			_ = conn.Close()
		}
		return
	}
}

// Disconnect closes the link at the user's request. No reconnect follows
// until the next Connect or accepted link.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manual = true
	_, _, old := s.advanceLocked()
	status, changed := s.setStateLocked(StateDisconnected)
	s.unlockAndNotify(status, changed)
	closeConn(old)
	s.logger.Info().Msg("Disconnected by user")
}

// NotifyLinkLost reports a link-layer disconnect for peer. The current link
// is closed if it belongs to peer; the read loop then takes the remote
// disconnect path.
func (s *Session) NotifyLinkLost(peer Peer) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && conn.Peer() == peer {
		s.logger.Info().Str("peer", peer.Address).Msg("Link-layer disconnect")
		_ = conn.Close()
	}
}

// Send writes b to the link. Writes are serialised. A write error closes the
// link, which the read loop handles as a remote disconnect.
func (s *Session) Send(b []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	err := conn.Send(b)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("Write failed, closing link")
		_ = conn.Close()
		return fmt.Errorf("sending %d bytes: %w", len(b), err)
	}
	return nil
}

// SendString writes s to the link
func (s *Session) SendString(msg string) error {
	return s.Send([]byte(msg))
}

// Close stops every loop and closes the link and listener. The session
// cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.manual = true
	_, _, old := s.advanceLocked()
	l := s.listener
	status, changed := s.setStateLocked(StateDisconnected)
	s.unlockAndNotify(status, changed)

	s.rootCancel()
	closeConn(old)
	if l != nil {
		_ = l.Close()
	}
	s.wg.Wait()
	return nil
}

// advanceLocked ends the current generation and starts the next. It returns
// the previous connection for the caller to close outside the lock.
func (s *Session) advanceLocked() (uint64, context.Context, Conn) {
	if s.genCancel != nil {
		s.genCancel()
	}
	s.generation++
	s.linkID = uuid.NewString()
	ctx, cancel := context.WithCancel(s.root)
	s.genCtx, s.genCancel = ctx, cancel

	old := s.conn
	s.conn = nil
	return s.generation, ctx, old
}

// setStateLocked records a transition and returns the link status to report
func (s *Session) setStateLocked(st SessionState) (LinkStatus, bool) {
	if s.state != st {
		s.metrics.add(s.metrics.transitions, attribute.String("state", st.String()))
		s.logger.Debug().Stringer("from", s.state).Stringer("to", st).Msg("Session transition")
	}
	s.state = st

	status, ok := st.linkStatus()
	if !ok || status == s.status {
		return "", false
	}
	s.status = status
	return status, true
}

// unlockAndNotify releases s.mu and reports status if changed is set.
// Notifications leave in the order the transitions were made.
func (s *Session) unlockAndNotify(status LinkStatus, changed bool) {
	if !changed {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	s.notifier.LinkStatusChanged(status)
}

func closeConn(c Conn) {
	if c != nil {
		_ = c.Close()
	}
}
