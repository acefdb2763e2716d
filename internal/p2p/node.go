package p2p

import (
	"context"
	"errors"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	yamux "github.com/libp2p/go-yamux/v3"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/telemetry"
)

var (
	ErrNotConnected = errors.New("peer not connected")
	ErrNoAddrs      = errors.New("no addresses to dial")
	errSelfDial     = errors.New("dialed self")
	errPeerMismatch = errors.New("remote peer id does not match expected id")
)

type NodeConfig struct {
	Network  netx.Network     // transport implementation
	BindAddr string           // e.g. "0.0.0.0:0" to choose random port
	Identity *Identity        // generated when nil
	Logger   telemetry.Logger // system logger
}

// StreamHandler serves one inbound protocol stream. The handler owns
// the stream and must close it.
type StreamHandler func(s *Stream)

// Stream is a negotiated yamux stream to a known peer.
type Stream struct {
	*yamux.Stream
	Peer     peer.ID
	Protocol string
}

type peerConn struct {
	id        peer.ID
	addr      netx.Addr
	inbound   bool
	session   *yamux.Session
	closeOnce sync.Once
}

type Node struct {
	cfg    NodeConfig
	id     *Identity
	addr   netx.Addr
	logger telemetry.Logger

	mu    sync.RWMutex
	peers map[peer.ID]*peerConn

	hmu      sync.RWMutex
	handlers map[string]StreamHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event

	nmu       sync.RWMutex
	notifiees []func(Event)
}

func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.Network == nil {
		cfg.Network = netx.NewTCPNetwork()
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = "0.0.0.0:0"
	}
	id := cfg.Identity
	if id == nil {
		var err error
		if id, err = NewIdentity(); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:      cfg,
		id:       id,
		logger:   nodeLogger(cfg.Logger, id.ID.String()),
		peers:    make(map[peer.ID]*peerConn),
		handlers: make(map[string]StreamHandler),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, 128),
	}, nil
}

// ID returns this node's peer ID.
func (n *Node) ID() peer.ID { return n.id.ID }

// Identity returns the node's key material.
func (n *Node) Identity() *Identity { return n.id }

// ListenAddr returns where this node is listening.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Events returns connection lifecycle events.
func (n *Node) Events() <-chan Event { return n.events }

// SetStreamHandler registers h for inbound streams negotiating protocol.
func (n *Node) SetStreamHandler(protocol string, h StreamHandler) {
	n.hmu.Lock()
	defer n.hmu.Unlock()
	n.handlers[protocol] = h
}

func (n *Node) handler(protocol string) (StreamHandler, bool) {
	n.hmu.RLock()
	defer n.hmu.RUnlock()
	h, ok := n.handlers[protocol]
	return h, ok
}

func (n *Node) protocols() []string {
	n.hmu.RLock()
	defer n.hmu.RUnlock()
	out := make([]string, 0, len(n.handlers))
	for p := range n.handlers {
		out = append(out, p)
	}
	return out
}

// Start binds the listener and begins accepting sessions.
func (n *Node) Start() error {
	addr, err := n.cfg.Network.Listen(n.cfg.BindAddr)
	if err != nil {
		return err
	}
	n.addr = addr
	n.logger.Info("listening", "addr", n.addr, "peer", n.id.ID)

	n.wg.Add(1)
	go n.acceptLoop()
	return nil
}

// Stop closes the listener and every session.
func (n *Node) Stop() error {
	n.cancel()
	err := n.cfg.Network.Close()

	n.mu.RLock()
	conns := make([]*peerConn, 0, len(n.peers))
	for _, pc := range n.peers {
		conns = append(conns, pc)
	}
	n.mu.RUnlock()
	for _, pc := range conns {
		n.removePeer(pc)
	}

	n.wg.Wait()
	return err
}

// Notify registers f to be called on every connection event. f runs
// while node locks are held and must not block or call back into the node.
func (n *Node) Notify(f func(Event)) {
	n.nmu.Lock()
	defer n.nmu.Unlock()
	n.notifiees = append(n.notifiees, f)
}

func (n *Node) emit(e Event) {
	n.nmu.RLock()
	for _, f := range n.notifiees {
		f(e)
	}
	n.nmu.RUnlock()

	select {
	case n.events <- e:
	default:
		// drop to avoid deadlock
	}
}
