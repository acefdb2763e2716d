package discovery

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/telemetry"
)

type EventType int

const (
	EventDiscovered EventType = iota
	EventExpired
)

func (t EventType) String() string {
	switch t {
	case EventDiscovered:
		return "discovered"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event reports a peer appearing on or disappearing from the local link.
// Addrs is empty for expirations.
type Event struct {
	Type  EventType
	Peer  peer.ID
	Addrs []ma.Multiaddr
}

// DialAddrs returns the TCP addresses carried by the event.
func (e Event) DialAddrs() []netx.Addr {
	out := make([]netx.Addr, 0, len(e.Addrs))
	for _, m := range e.Addrs {
		if _, addr, err := SplitPeerAddr(m); err == nil {
			out = append(out, addr)
		}
	}
	return out
}

// Config controls mDNS discovery.
type Config struct {
	Port          int
	Group         string
	ServiceName   string
	QueryInterval time.Duration
	TTL           time.Duration // 0 means 3 x QueryInterval
	Logger        telemetry.Logger
}

const (
	DefaultPort        = 5353
	DefaultGroup       = "224.0.0.251"
	DefaultServiceName = "_p2p._udp.local."
	DefaultInterval    = 10 * time.Second
)

func DefaultConfig() Config {
	return Config{
		Port:          DefaultPort,
		Group:         DefaultGroup,
		ServiceName:   DefaultServiceName,
		QueryInterval: DefaultInterval,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.Group == "" {
		c.Group = def.Group
	}
	if c.ServiceName == "" {
		c.ServiceName = def.ServiceName
	}
	if c.QueryInterval <= 0 {
		c.QueryInterval = def.QueryInterval
	}
	if c.TTL <= 0 {
		c.TTL = 3 * c.QueryInterval
	}
	if c.Logger == nil {
		c.Logger = telemetry.NewNopLogger()
	}
	return c
}
