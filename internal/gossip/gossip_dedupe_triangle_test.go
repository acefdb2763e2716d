package gossip

import (
	"testing"
	"time"
)

func TestGossipDedupe_NoLoopTriangle(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	c := newTestPeer(t)

	for _, p := range []*testPeer{a, b, c} {
		p.fs.Subscribe("recipes")
	}

	connect(t, b, a)
	connect(t, c, b)
	connect(t, a, c)

	waitSubscribed(t, a, "recipes", 2)
	waitSubscribed(t, b, "recipes", 2)
	waitSubscribed(t, c, "recipes", 2)

	if err := a.fs.Publish("recipes", []byte(`{"mode":"ALL"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	gotA := collect(a, 300*time.Millisecond)
	gotB := collect(b, 300*time.Millisecond)
	gotC := collect(c, 300*time.Millisecond)

	if len(gotB) != 1 || len(gotC) != 1 {
		t.Fatalf("dedupe failed (loop/dup detected): B=%d C=%d (expected 1 each)", len(gotB), len(gotC))
	}
	if len(gotA) != 0 {
		t.Fatalf("publisher received its own message %d times", len(gotA))
	}
	if gotB[0].Source != a.node.ID() || gotC[0].Source != a.node.ID() {
		t.Fatalf("source should be the publisher, got %s and %s", gotB[0].Source, gotC[0].Source)
	}
}
