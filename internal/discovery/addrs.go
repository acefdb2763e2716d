package discovery

import (
	"errors"
	"fmt"
	"net"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"recipe-swap/internal/netx"
)

var ErrUnsupportedAddr = errors.New("unsupported multiaddr")

// PeerMultiaddr renders a host:port listen address as
// /ip4/<ip>/tcp/<port>/p2p/<id>.
func PeerMultiaddr(addr netx.Addr, id peer.ID) (ma.Multiaddr, error) {
	host, port, err := net.SplitHostPort(string(addr))
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, addr)
	}
	return ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%s/p2p/%s", ip.To4(), port, id))
}

// SplitPeerAddr extracts the peer id and dialable TCP address from m.
func SplitPeerAddr(m ma.Multiaddr) (peer.ID, netx.Addr, error) {
	ip, err := m.ValueForProtocol(ma.P_IP4)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedAddr, m)
	}
	port, err := m.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedAddr, m)
	}
	raw, err := m.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return "", "", fmt.Errorf("%w: missing /p2p in %s", ErrUnsupportedAddr, m)
	}
	id, err := peer.Decode(raw)
	if err != nil {
		return "", "", fmt.Errorf("decode peer id: %w", err)
	}
	return id, netx.Addr(net.JoinHostPort(ip, port)), nil
}

// ParsePeerAddr parses the textual form accepted on the command line.
func ParsePeerAddr(s string) (peer.ID, netx.Addr, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return "", "", err
	}
	return SplitPeerAddr(m)
}
