package noiseconn

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-swap/internal/netx"
)

type pipeConn struct {
	net.Conn
}

func (p pipeConn) Remote() netx.Addr { return "pipe" }

func newKey(t *testing.T) noise.DHKey {
	t.Helper()
	k, err := noise.DH25519.GenerateKeypair(rand.Reader)
	require.NoError(t, err)
	return k
}

type result struct {
	hs  *HandshakeResult
	err error
}

func handshake(t *testing.T, clientCfg, serverCfg Config) (result, result) {
	t.Helper()
	a, b := net.Pipe()

	srvCh := make(chan result, 1)
	go func() {
		hs, err := NewSecureServer(pipeConn{b}, serverCfg)
		if err != nil {
			_ = b.Close()
		}
		srvCh <- result{hs, err}
	}()

	hs, err := NewSecureClient(pipeConn{a}, clientCfg)
	if err != nil {
		_ = a.Close()
	}
	return result{hs, err}, <-srvCh
}

func TestHandshakeExchangesPayloads(t *testing.T) {
	ck, sk := newKey(t), newKey(t)

	var sawClientStatic []byte
	cli, srv := handshake(t,
		Config{StaticPriv: ck.Private, StaticPub: ck.Public, Payload: []byte("client")},
		Config{StaticPriv: sk.Private, StaticPub: sk.Public, Payload: []byte("server"),
			Verify: func(remoteStatic, payload []byte) error {
				sawClientStatic = remoteStatic
				return nil
			}},
	)
	require.NoError(t, cli.err)
	require.NoError(t, srv.err)

	assert.Equal(t, []byte("server"), cli.hs.RemotePayload)
	assert.Equal(t, []byte("client"), srv.hs.RemotePayload)
	assert.Equal(t, sk.Public, cli.hs.RemoteStatic)
	assert.Equal(t, ck.Public, sawClientStatic)

	// A write larger than one frame must arrive intact.
	msg := bytes.Repeat([]byte("recipe"), 30000)
	go func() {
		_, _ = cli.hs.Conn.Write(msg)
	}()
	got := make([]byte, len(msg))
	_, err := io.ReadFull(srv.hs.Conn, got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// And the reverse direction with a tiny read buffer.
	go func() {
		_, _ = srv.hs.Conn.Write([]byte("hello"))
	}()
	small := make([]byte, 2)
	var out []byte
	for len(out) < 5 {
		n, err := cli.hs.Conn.Read(small)
		require.NoError(t, err)
		out = append(out, small[:n]...)
	}
	assert.Equal(t, "hello", string(out))
}

func TestHandshakeVerifyFailure(t *testing.T) {
	ck, sk := newKey(t), newKey(t)
	bad := errors.New("untrusted")

	cli, srv := handshake(t,
		Config{StaticPriv: ck.Private, StaticPub: ck.Public,
			Verify: func(_, _ []byte) error { return bad }},
		Config{StaticPriv: sk.Private, StaticPub: sk.Public},
	)
	require.Error(t, cli.err)
	assert.ErrorIs(t, cli.err, bad)
	assert.Error(t, srv.err)
}
