package gossip

import (
	"context"
	"testing"
	"time"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/telemetry"
)

type testPeer struct {
	node *p2p.Node
	fs   *FloodSub
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()

	n, err := p2p.NewNode(p2p.NodeConfig{
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Logger:   telemetry.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("NewNode error: %v", err)
	}
	cfg := DefaultConfig()
	cfg.RedialPeriod = 100 * time.Millisecond
	fs := New(n, cfg)
	if err := n.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	t.Cleanup(func() {
		fs.Close()
		_ = n.Stop()
	})
	return &testPeer{node: n, fs: fs}
}

// connect opens a session from -> to and puts each side in the other's
// partial view, as mutual discovery would.
func connect(t *testing.T, from, to *testPeer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := from.node.Connect(ctx, to.node.ListenAddr(), to.node.ID()); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	from.fs.AddToPartialView(to.node.ID(), []netx.Addr{to.node.ListenAddr()})
	to.fs.AddToPartialView(from.node.ID(), []netx.Addr{from.node.ListenAddr()})
}

// waitSubscribed blocks until p sees want peers on topic.
func waitSubscribed(t *testing.T, p *testPeer, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.fs.ListPeers(topic)) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscribers on %q, have %d", want, topic, len(p.fs.ListPeers(topic)))
}

// collect drains p's messages for d.
func collect(p *testPeer, d time.Duration) []Message {
	var out []Message
	timeout := time.After(d)
	for {
		select {
		case m := <-p.fs.Messages():
			out = append(out, m)
		case <-timeout:
			return out
		}
	}
}

func idsToStrings[T interface{ String() string }](ids []T) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
