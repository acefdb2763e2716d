package p2p

import (
	"context"
	"testing"
	"time"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/telemetry"
)

type nodeTestOpt func(*NodeConfig)

// WithIdentity pins the node identity.
func WithIdentity(id *Identity) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Identity = id }
}

// newTestNode spins up a node bound to an ephemeral localhost port and auto-stops it.
func newTestNode(t *testing.T, opts ...nodeTestOpt) *Node {
	t.Helper()

	cfg := NodeConfig{
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Logger:   telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := NewNode(cfg)
	if err != nil {
		t.Fatalf("NewNode error: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func waitPeers(t *testing.T, n *Node, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n.PeerCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for peers: node=%s have=%d want=%d", n.ID(), n.PeerCount(), want)
}

func connect(t *testing.T, from, to *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := from.Connect(ctx, to.ListenAddr(), to.ID()); err != nil {
		t.Fatalf("%s.Connect(%s) error: %v", from.ID(), to.ID(), err)
	}
}

func waitEvent(t *testing.T, n *Node, typ EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-n.Events():
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}
