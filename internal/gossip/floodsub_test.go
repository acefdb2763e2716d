package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-swap/internal/netx"
)

func TestPublishWithoutPeersSucceeds(t *testing.T) {
	a := newTestPeer(t)
	a.fs.Subscribe("recipes")
	require.NoError(t, a.fs.Publish("recipes", []byte("x")))
}

func TestPublishAfterCloseFails(t *testing.T) {
	a := newTestPeer(t)
	a.fs.Close()
	assert.ErrorIs(t, a.fs.Publish("recipes", []byte("x")), ErrClosed)
}

func TestRelayThroughMiddlePeer(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	c := newTestPeer(t)
	for _, p := range []*testPeer{a, b, c} {
		p.fs.Subscribe("recipes")
	}

	// a - b - c, no direct a-c session.
	connect(t, a, b)
	connect(t, c, b)
	waitSubscribed(t, b, "recipes", 2)
	waitSubscribed(t, a, "recipes", 1)
	waitSubscribed(t, c, "recipes", 1)

	require.NoError(t, a.fs.Publish("recipes", []byte("hello")))

	got := collect(c, 500*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, a.node.ID(), got[0].Source)
	assert.Equal(t, b.node.ID(), got[0].ReceivedFrom)
	assert.Equal(t, []byte("hello"), got[0].Data)
}

func TestUnsubscribedPeerReceivesNothing(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	a.fs.Subscribe("recipes")
	b.fs.Subscribe("other")

	connect(t, a, b)
	waitSubscribed(t, a, "other", 1)

	require.NoError(t, a.fs.Publish("recipes", []byte("hello")))
	assert.Empty(t, collect(b, 300*time.Millisecond))

	b.fs.Subscribe("recipes")
	waitSubscribed(t, a, "recipes", 1)
	require.NoError(t, a.fs.Publish("recipes", []byte("again")))
	got := collect(b, 500*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, "recipes", got[0].Topic)
}

func TestPartialViewDials(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	a.fs.Subscribe("recipes")
	b.fs.Subscribe("recipes")

	a.fs.AddToPartialView(b.node.ID(), []netx.Addr{b.node.ListenAddr()})
	assert.Equal(t, []string{b.node.ID().String()}, idsToStrings(a.fs.PartialView()))

	waitSubscribed(t, a, "recipes", 1)
	waitSubscribed(t, b, "recipes", 1)

	a.fs.RemoveFromPartialView(b.node.ID())
	assert.Empty(t, a.fs.PartialView())
}

func TestPeerOutsidePartialViewReceivesNothing(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	a.fs.Subscribe("recipes")
	b.fs.Subscribe("recipes")

	a.fs.AddToPartialView(b.node.ID(), []netx.Addr{b.node.ListenAddr()})
	waitSubscribed(t, a, "recipes", 1)

	require.NoError(t, a.fs.Publish("recipes", []byte("before")))
	got := collect(b, 500*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("before"), got[0].Data)

	a.fs.RemoveFromPartialView(b.node.ID())
	require.True(t, a.node.IsConnected(b.node.ID()), "session stays up")

	require.NoError(t, a.fs.Publish("recipes", []byte("after")))
	assert.Empty(t, collect(b, 300*time.Millisecond))
}

func TestRelaySkipsPeersOutsidePartialView(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	c := newTestPeer(t)
	for _, p := range []*testPeer{a, b, c} {
		p.fs.Subscribe("recipes")
	}

	// a - b - c, then b stops treating c as a target.
	connect(t, a, b)
	connect(t, c, b)
	waitSubscribed(t, b, "recipes", 2)
	waitSubscribed(t, a, "recipes", 1)
	b.fs.RemoveFromPartialView(c.node.ID())

	require.NoError(t, a.fs.Publish("recipes", []byte("hello")))
	require.Len(t, collect(b, 500*time.Millisecond), 1)
	assert.Empty(t, collect(c, 300*time.Millisecond))
}

func TestPeerLeavesClearsSubscriptions(t *testing.T) {
	a := newTestPeer(t)
	b := newTestPeer(t)
	a.fs.Subscribe("recipes")
	b.fs.Subscribe("recipes")

	connect(t, a, b)
	waitSubscribed(t, a, "recipes", 1)

	b.fs.Close()
	require.NoError(t, b.node.Stop())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(a.fs.ListPeers("recipes")) > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Empty(t, a.fs.ListPeers("recipes"))
}
