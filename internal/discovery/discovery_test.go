package discovery

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-swap/internal/netx"
)

func newPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestPeerAddrRoundTrip(t *testing.T) {
	id := newPeerID(t)

	m, err := PeerMultiaddr("192.168.1.7:4001", id)
	require.NoError(t, err)
	assert.Equal(t, "/ip4/192.168.1.7/tcp/4001/p2p/"+id.String(), m.String())

	gotID, gotAddr, err := ParsePeerAddr(m.String())
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, netx.Addr("192.168.1.7:4001"), gotAddr)
}

func TestPeerAddrRejects(t *testing.T) {
	id := newPeerID(t)

	_, err := PeerMultiaddr("[::1]:4001", id)
	assert.ErrorIs(t, err, ErrUnsupportedAddr)

	_, _, err = ParsePeerAddr("/ip4/10.0.0.1/tcp/4001")
	assert.ErrorIs(t, err, ErrUnsupportedAddr)

	_, _, err = ParsePeerAddr("/ip4/10.0.0.1/udp/4001/p2p/" + id.String())
	assert.ErrorIs(t, err, ErrUnsupportedAddr)

	_, _, err = ParsePeerAddr("not a multiaddr")
	assert.Error(t, err)
}

func TestQueryDetection(t *testing.T) {
	q := buildQuery(DefaultServiceName)
	pkt, err := q.Pack()
	require.NoError(t, err)

	var got dns.Msg
	require.NoError(t, got.Unpack(pkt))
	assert.True(t, isServiceQuery(&got, DefaultServiceName))
	assert.False(t, isServiceQuery(&got, "_other._udp.local."))
	assert.Empty(t, parseResponse(&got))
}

func TestResponseCarriesAddrs(t *testing.T) {
	a := newPeerID(t)
	b := newPeerID(t)

	ma1, err := PeerMultiaddr("10.0.0.1:4001", a)
	require.NoError(t, err)
	ma2, err := PeerMultiaddr("127.0.0.1:4001", a)
	require.NoError(t, err)

	resp := buildResponse(DefaultServiceName, "abc", []ma.Multiaddr{ma1, ma2}, 30)
	// Garbage and foreign entries mixed into one response.
	resp.Extra = append(resp.Extra,
		&dns.TXT{
			Hdr: dns.RR_Header{Name: "abc." + DefaultServiceName, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 30},
			Txt: []string{"dnsaddr=/ip4/10.0.0.2/tcp/1/p2p/" + b.String(), "dnsaddr=junk", "other=1"},
		})

	pkt, err := resp.Pack()
	require.NoError(t, err)
	var got dns.Msg
	require.NoError(t, got.Unpack(pkt))

	assert.False(t, isServiceQuery(&got, DefaultServiceName))
	peers := parseResponse(&got)
	require.Len(t, peers, 2)
	require.Len(t, peers[a], 2)
	assert.True(t, peers[a][0].Equal(ma1))
	assert.True(t, peers[a][1].Equal(ma2))
	require.Len(t, peers[b], 1)

	ev := Event{Type: EventDiscovered, Peer: a, Addrs: peers[a]}
	assert.Equal(t, []netx.Addr{"10.0.0.1:4001", "127.0.0.1:4001"}, ev.DialAddrs())
}

func TestTrackerDiscoverThenExpire(t *testing.T) {
	tr := newTracker(30 * time.Second)
	a := newPeerID(t)
	b := newPeerID(t)
	t0 := time.Unix(1000, 0)

	assert.True(t, tr.observe(a, t0))
	assert.False(t, tr.observe(a, t0.Add(10*time.Second)), "second sighting only refreshes")
	assert.True(t, tr.observe(b, t0.Add(20*time.Second)))

	assert.Empty(t, tr.sweep(t0.Add(35*time.Second)))

	gone := tr.sweep(t0.Add(41 * time.Second))
	assert.Equal(t, []peer.ID{a}, gone)
	assert.Equal(t, 1, tr.len())

	assert.Equal(t, []peer.ID{b}, tr.sweep(t0.Add(time.Hour)))
	assert.Equal(t, 0, tr.len())

	// Rediscovery after expiry is reported as new.
	assert.True(t, tr.observe(a, t0.Add(2*time.Hour)))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{QueryInterval: time.Second}.withDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultGroup, cfg.Group)
	assert.Equal(t, 3*time.Second, cfg.TTL)
	assert.NotNil(t, cfg.Logger)
}

func TestNewServiceRejectsUnicastGroup(t *testing.T) {
	_, err := NewService(Config{Group: "10.0.0.1"}, newPeerID(t), "127.0.0.1:4001")
	assert.Error(t, err)
}
