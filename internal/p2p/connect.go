package p2p

import (
	"context"
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/netx"
)

// Connect dials addr and brings up a session. expect may be empty when
// the remote id is unknown. It returns the verified remote id.
func (n *Node) Connect(ctx context.Context, addr netx.Addr, expect peer.ID) (peer.ID, error) {
	if expect != "" && n.IsConnected(expect) {
		return expect, nil
	}
	conn, err := n.cfg.Network.Dial(ctx, addr)
	if err != nil {
		n.logger.Debug("dial failed", "addr", addr, "err", err)
		return "", err
	}
	pc, err := n.setupConn(conn, false, expect)
	if err != nil {
		return "", err
	}
	return pc.id, nil
}

// ConnectPeer tries addrs in order until a session to id is up.
func (n *Node) ConnectPeer(ctx context.Context, id peer.ID, addrs []netx.Addr) error {
	if n.IsConnected(id) {
		return nil
	}
	if len(addrs) == 0 {
		return ErrNoAddrs
	}
	var errs []error
	for _, a := range addrs {
		if _, err := n.Connect(ctx, a, id); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (n *Node) handleConn(rawConn netx.Conn, inbound bool, expect peer.ID) {
	if _, err := n.setupConn(rawConn, inbound, expect); err != nil {
		n.logger.Warn("session setup failed", "inbound", inbound, "remote", rawConn.Remote(), "err", err)
	}
}

// setupConn upgrades rawConn, registers the session, and starts serving
// its streams. When a session to the same peer already exists the
// surviving one is returned.
func (n *Node) setupConn(rawConn netx.Conn, inbound bool, expect peer.ID) (*peerConn, error) {
	pc, err := n.upgrade(rawConn, inbound, expect)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}

	if !n.addPeer(pc) {
		pc.close()
		if cur := n.peer(pc.id); cur != nil {
			return cur, nil
		}
		if n.ctx.Err() != nil {
			return nil, n.ctx.Err()
		}
		return pc, nil
	}

	n.logger.Debug("session up", "peer", pc.id, "addr", pc.addr, "inbound", inbound)

	n.wg.Add(1)
	go n.serveSession(pc)
	return pc, nil
}
