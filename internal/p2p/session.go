package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	yamux "github.com/libp2p/go-yamux/v3"
	"github.com/multiformats/go-multistream"
)

func (n *Node) serveSession(pc *peerConn) {
	defer n.wg.Done()
	defer n.removePeer(pc)

	for {
		s, err := pc.session.AcceptStream()
		if err != nil {
			return
		}
		go n.handleStream(pc, s)
	}
}

func (n *Node) handleStream(pc *peerConn, s *yamux.Stream) {
	mux := multistream.NewMultistreamMuxer[string]()
	for _, p := range n.protocols() {
		mux.AddHandler(p, nil)
	}

	_ = s.SetDeadline(time.Now().Add(negotiateTimeout))
	protocol, _, err := mux.Negotiate(s)
	_ = s.SetDeadline(time.Time{})
	if err != nil {
		n.logger.Debug("stream negotiation failed", "peer", pc.id, "err", err)
		_ = s.Reset()
		return
	}

	h, ok := n.handler(protocol)
	if !ok {
		_ = s.Reset()
		return
	}
	h(&Stream{Stream: s, Peer: pc.id, Protocol: protocol})
}

// NewStream opens a stream to a connected peer and negotiates protocol.
func (n *Node) NewStream(ctx context.Context, id peer.ID, protocol string) (*Stream, error) {
	pc := n.peer(id)
	if pc == nil {
		return nil, ErrNotConnected
	}

	s, err := pc.session.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(negotiateTimeout)
	}
	_ = s.SetDeadline(deadline)
	if err := multistream.SelectProtoOrFail(protocol, s); err != nil {
		_ = s.Reset()
		return nil, err
	}
	_ = s.SetDeadline(time.Time{})

	return &Stream{Stream: s, Peer: id, Protocol: protocol}, nil
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() {
		_ = pc.session.Close()
	})
}
