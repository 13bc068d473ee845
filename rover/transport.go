package rover

import (
	"context"
	"fmt"
)

// Peer identifies the remote end of a link
type Peer struct {
	Address string `json:"address" yaml:"address"`
}

func (p Peer) String() string {
	return p.Address
}

// Strategy selects how a Transport addresses the peer. Exactly one of
// ServiceID or Channel is used: a non-empty ServiceID addresses the peer's
// advertised service, otherwise Channel names a fixed numbered channel.
type Strategy struct {
	ServiceID string
	Channel   int
}

// ServiceStrategy addresses the peer by service id
func ServiceStrategy(serviceID string) Strategy {
	return Strategy{ServiceID: serviceID}
}

// ChannelStrategy addresses the peer on a fixed channel number
func ChannelStrategy(channel int) Strategy {
	return Strategy{Channel: channel}
}

// IsChannel reports whether the strategy uses a fixed channel
func (s Strategy) IsChannel() bool {
	return s.ServiceID == ""
}

func (s Strategy) String() string {
	if s.IsChannel() {
		return fmt.Sprintf("channel:%d", s.Channel)
	}
	return "service:" + s.ServiceID
}

// Conn is one open stream to a peer. Receive blocks until data arrives and
// returns io.EOF once the stream ends. Send and Close may be called
// concurrently with Receive.
type Conn interface {
	Peer() Peer
	Receive() ([]byte, error)
	Send(b []byte) error
	Close() error
}

// Listener accepts inbound links from peers
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Transport opens links. Listen returns ErrListenUnsupported when the
// transport cannot accept inbound links.
type Transport interface {
	Listen(ctx context.Context) (Listener, error)
	Dial(ctx context.Context, peer Peer, strategy Strategy) (Conn, error)
}

// LinkMonitor is implemented by transports that learn about link loss out of
// band, before the stream itself reports an error
type LinkMonitor interface {
	OnLinkLost(fn func(Peer))
}
