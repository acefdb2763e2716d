package p2p

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-swap/internal/netx"
)

func TestIdentityPeerIDRoundTrip(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	decoded, err := peer.Decode(id.ID.String())
	require.NoError(t, err)
	assert.Equal(t, id.ID, decoded)

	payload, err := id.handshakePayload()
	require.NoError(t, err)

	got, err := peerFromHandshake(id.NoisePub[:], payload)
	require.NoError(t, err)
	assert.Equal(t, id.ID, got)

	// The signature must not verify against a different static key.
	other, err := NewIdentity()
	require.NoError(t, err)
	_, err = peerFromHandshake(other.NoisePub[:], payload)
	assert.ErrorIs(t, err, errBadIdentitySig)
}

func TestStreamEcho(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	a := newTestNode(t)
	b := newTestNode(t)

	const proto = "/test/echo/1.0.0"
	b.SetStreamHandler(proto, func(s *Stream) {
		defer s.Close()
		_, _ = io.Copy(s, s)
	})

	connect(t, a, b)
	waitPeers(t, a, 1, 3*time.Second)
	waitPeers(t, b, 1, 3*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := a.NewStream(ctx, b.ID(), proto)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), s.Peer)

	_, err = s.Write([]byte("toast\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(s).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "toast\n", line)
	require.NoError(t, s.Close())

	_, err = a.NewStream(ctx, b.ID(), "/test/unknown/1.0.0")
	assert.Error(t, err)

	require.NoError(t, a.Stop())
	require.NoError(t, b.Stop())
}

func TestConnectRejectsWrongPeer(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := a.Connect(ctx, b.ListenAddr(), c.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, errPeerMismatch)
	assert.Equal(t, 0, a.PeerCount())
}

func TestConnectRejectsSelf(t *testing.T) {
	a := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := a.Connect(ctx, a.ListenAddr(), "")
	require.Error(t, err)
	assert.Equal(t, 0, a.PeerCount())
}

func TestConnectPeerAddresses(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	assert.ErrorIs(t, a.ConnectPeer(ctx, b.ID(), nil), ErrNoAddrs)

	// A dead address first, then the real one.
	dead := netx.Addr("127.0.0.1:1")
	require.NoError(t, a.ConnectPeer(ctx, b.ID(), []netx.Addr{dead, b.ListenAddr()}))
	assert.True(t, a.IsConnected(b.ID()))
}

func TestDisconnectEvent(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	connect(t, a, b)
	ev := waitEvent(t, a, EventPeerConnected, 3*time.Second)
	assert.Equal(t, b.ID().String(), ev.PeerID)

	require.NoError(t, b.Stop())
	ev = waitEvent(t, a, EventPeerDisconnected, 5*time.Second)
	assert.Equal(t, b.ID().String(), ev.PeerID)
	assert.False(t, a.IsConnected(b.ID()))
}
