package rover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const tcpReadBufferSize = 1024

// TCPTransport carries the link over plain TCP, e.g. to a serial-to-TCP radio
// bridge. A service id is a port number or service name on the peer host; a
// fixed channel N is port ChannelBasePort+N.
type TCPTransport struct {
	ListenAddr      string
	ChannelBasePort int
	Dialer          net.Dialer
}

// NewTCPTransport creates a TCP transport. An empty listenAddr disables Listen.
func NewTCPTransport(listenAddr string, channelBasePort int) *TCPTransport {
	return &TCPTransport{ListenAddr: listenAddr, ChannelBasePort: channelBasePort}
}

// Dial connects to peer using the given strategy
func (t *TCPTransport) Dial(ctx context.Context, peer Peer, strategy Strategy) (Conn, error) {
	addr, err := t.address(peer, strategy)
	if err != nil {
		return nil, err
	}
	c, err := t.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newTCPConn(c, peer), nil
}

func (t *TCPTransport) address(peer Peer, strategy Strategy) (string, error) {
	host := peer.Address
	if h, _, err := net.SplitHostPort(peer.Address); err == nil {
		host = h
	}
	if host == "" {
		return "", fmt.Errorf("peer address is empty")
	}
	if !strategy.IsChannel() {
		return net.JoinHostPort(host, strategy.ServiceID), nil
	}
	if t.ChannelBasePort <= 0 {
		return "", fmt.Errorf("channel %d: no channel base port configured", strategy.Channel)
	}
	return net.JoinHostPort(host, strconv.Itoa(t.ChannelBasePort+strategy.Channel)), nil
}

// Listen opens the server socket
func (t *TCPTransport) Listen(ctx context.Context) (Listener, error) {
	if t.ListenAddr == "" {
		return nil, ErrListenUnsupported
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", t.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", t.ListenAddr, err)
	}
	return &tcpListener{l: l.(*net.TCPListener)}, nil
}

type tcpListener struct {
	l *net.TCPListener
}

// Addr returns the bound address, useful when listening on port 0
func (l *tcpListener) Addr() net.Addr {
	return l.l.Addr()
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.l.SetDeadline(time.Now())
	})
	defer stop()

	c, err := l.l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrTransportClosed
		}
		return nil, err
	}
	_ = l.l.SetDeadline(time.Time{})

	host := c.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return newTCPConn(c, Peer{Address: host}), nil
}

func (l *tcpListener) Close() error {
	return l.l.Close()
}

type tcpConn struct {
	conn net.Conn
	peer Peer

	// mu serialises writes
	mu  sync.Mutex
	buf []byte
}

func newTCPConn(c net.Conn, peer Peer) *tcpConn {
	return &tcpConn{conn: c, peer: peer, buf: make([]byte, tcpReadBufferSize)}
}

func (c *tcpConn) Peer() Peer {
	return c.peer
}

// Receive returns the bytes of one read. Only the session read loop calls it.
func (c *tcpConn) Receive() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *tcpConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
