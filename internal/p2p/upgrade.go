package p2p

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	yamux "github.com/libp2p/go-yamux/v3"
	"github.com/multiformats/go-multistream"

	"recipe-swap/internal/crypto/noiseconn"
	"recipe-swap/internal/netx"
)

const (
	ProtocolNoise = "/noise"
	ProtocolYamux = "/yamux/1.0.0"

	upgradeTimeout   = 15 * time.Second
	negotiateTimeout = 10 * time.Second
)

// upgrade turns a raw connection into a muxed session:
// multistream(/noise) -> Noise XX -> multistream(/yamux/1.0.0) -> yamux.
func (n *Node) upgrade(raw netx.Conn, inbound bool, expect peer.ID) (*peerConn, error) {
	stop := context.AfterFunc(n.ctx, func() { _ = raw.Close() })
	defer stop()

	_ = raw.SetDeadline(time.Now().Add(upgradeTimeout))
	if err := negotiate(raw, inbound, ProtocolNoise); err != nil {
		return nil, fmt.Errorf("negotiate security: %w", err)
	}

	payload, err := n.id.handshakePayload()
	if err != nil {
		return nil, err
	}

	var remote peer.ID
	cfg := noiseconn.Config{
		StaticPriv: n.id.NoisePriv[:],
		StaticPub:  n.id.NoisePub[:],
		Payload:    payload,
		Verify: func(remoteStatic, p []byte) error {
			id, err := peerFromHandshake(remoteStatic, p)
			if err != nil {
				return err
			}
			if id == n.id.ID {
				return errSelfDial
			}
			if expect != "" && id != expect {
				return errPeerMismatch
			}
			remote = id
			return nil
		},
	}

	var hs *noiseconn.HandshakeResult
	if inbound {
		hs, err = noiseconn.NewSecureServer(raw, cfg)
	} else {
		hs, err = noiseconn.NewSecureClient(raw, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("noise handshake: %w", err)
	}
	secure := hs.Conn

	_ = raw.SetDeadline(time.Now().Add(upgradeTimeout))
	if err := negotiate(secure, inbound, ProtocolYamux); err != nil {
		return nil, fmt.Errorf("negotiate muxer: %w", err)
	}
	_ = raw.SetDeadline(time.Time{})

	ycfg := yamux.DefaultConfig()
	ycfg.LogOutput = io.Discard

	var sess *yamux.Session
	if inbound {
		sess, err = yamux.Server(secure, ycfg, nil)
	} else {
		sess, err = yamux.Client(secure, ycfg, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("start muxer: %w", err)
	}

	return &peerConn{
		id:      remote,
		addr:    raw.Remote(),
		inbound: inbound,
		session: sess,
	}, nil
}

// negotiate agrees on a single protocol. The dialer proposes, the
// listener accepts.
func negotiate(rwc io.ReadWriteCloser, inbound bool, protocol string) error {
	if !inbound {
		return multistream.SelectProtoOrFail(protocol, rwc)
	}
	mux := multistream.NewMultistreamMuxer[string]()
	mux.AddHandler(protocol, nil)
	_, _, err := mux.Negotiate(rwc)
	return err
}
