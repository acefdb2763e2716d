package noiseconn

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/flynn/noise"
	pool "github.com/libp2p/go-buffer-pool"

	"recipe-swap/internal/netx"
)

const (
	maxFrameSize     = 0xffff
	tagSize          = 16
	maxPlaintextSize = maxFrameSize - tagSize

	handshakeTimeout = 10 * time.Second
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// ErrInvalidFrame is returned when a transport frame has a zero length.
var ErrInvalidFrame = errors.New("noiseconn: invalid frame length")

// VerifyFunc checks the remote handshake payload against the remote
// static key. A non-nil error aborts the handshake.
type VerifyFunc func(remoteStatic, payload []byte) error

// Config describes the local side of a Noise_XX handshake.
type Config struct {
	StaticPriv []byte
	StaticPub  []byte
	Payload    []byte
	Verify     VerifyFunc
}

type HandshakeResult struct {
	Conn          *SecureConn
	RemoteStatic  []byte
	RemotePayload []byte
}

// SecureConn wraps a raw connection with Noise cipher states. Frames are
// a 2-byte big-endian length followed by ciphertext.
type SecureConn struct {
	netx.Conn

	readMu  sync.Mutex
	readCS  *noise.CipherState
	pending []byte
	backing []byte

	writeMu sync.Mutex
	writeCS *noise.CipherState
}

// Read returns buffered plaintext, reading and decrypting one frame when
// the buffer is empty.
func (c *SecureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		if err := c.readFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	if len(c.pending) == 0 && c.backing != nil {
		pool.Put(c.backing)
		c.backing = nil
	}
	return n, nil
}

func (c *SecureConn) readFrame() error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(lenBuf[:]))
	if n == 0 {
		return ErrInvalidFrame
	}

	ct := pool.Get(n)
	if _, err := io.ReadFull(c.Conn, ct); err != nil {
		pool.Put(ct)
		return err
	}

	pt, err := c.readCS.Decrypt(ct[:0], nil, ct)
	if err != nil {
		pool.Put(ct)
		return err
	}
	c.backing = ct
	c.pending = pt
	return nil
}

// Write encrypts p, split into as many frames as needed.
func (c *SecureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintextSize
		if end > len(p) {
			end = len(p)
		}
		if err := c.writeFrame(p[written:end]); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *SecureConn) writeFrame(chunk []byte) error {
	buf := pool.Get(2 + len(chunk) + tagSize)
	defer pool.Put(buf)

	ct, err := c.writeCS.Encrypt(buf[2:2], nil, chunk)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf[:2], uint16(len(ct)))
	_, err = c.Conn.Write(buf[:2+len(ct)])
	return err
}

func (c *SecureConn) Close() error {
	return c.Conn.Close()
}

func newHandshakeState(cfg Config, initiator bool) (*noise.HandshakeState, error) {
	return noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: noise.DHKey{Private: cfg.StaticPriv, Public: cfg.StaticPub},
	})
}

func verify(cfg Config, hs *noise.HandshakeState, payload []byte) error {
	if cfg.Verify == nil {
		return nil
	}
	if err := cfg.Verify(hs.PeerStatic(), payload); err != nil {
		return fmt.Errorf("verify remote payload: %w", err)
	}
	return nil
}

// NewSecureClient runs a Noise_XX handshake as initiator.
func NewSecureClient(conn netx.Conn, cfg Config) (*HandshakeResult, error) {
	hs, err := newHandshakeState(cfg, true)
	if err != nil {
		return nil, err
	}

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	// -> e
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(conn, msg); err != nil {
		return nil, err
	}

	// <- e, ee, s, es
	in, err := readHandshakeMsg(conn)
	if err != nil {
		return nil, err
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, in)
	if err != nil {
		return nil, err
	}
	if err := verify(cfg, hs, remotePayload); err != nil {
		return nil, err
	}

	// -> s, se
	msg, cs1, cs2, err := hs.WriteMessage(nil, cfg.Payload)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(conn, msg); err != nil {
		return nil, err
	}

	return &HandshakeResult{
		Conn:          &SecureConn{Conn: conn, readCS: cs2, writeCS: cs1},
		RemoteStatic:  hs.PeerStatic(),
		RemotePayload: remotePayload,
	}, nil
}

// NewSecureServer runs a Noise_XX handshake as responder.
func NewSecureServer(conn netx.Conn, cfg Config) (*HandshakeResult, error) {
	hs, err := newHandshakeState(cfg, false)
	if err != nil {
		return nil, err
	}

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	// <- e
	in, err := readHandshakeMsg(conn)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, in); err != nil {
		return nil, err
	}

	// -> e, ee, s, es
	msg, _, _, err := hs.WriteMessage(nil, cfg.Payload)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(conn, msg); err != nil {
		return nil, err
	}

	// <- s, se
	in, err = readHandshakeMsg(conn)
	if err != nil {
		return nil, err
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, in)
	if err != nil {
		return nil, err
	}
	if err := verify(cfg, hs, remotePayload); err != nil {
		return nil, err
	}

	// Responder reads what the initiator writes.
	return &HandshakeResult{
		Conn:          &SecureConn{Conn: conn, readCS: cs1, writeCS: cs2},
		RemoteStatic:  hs.PeerStatic(),
		RemotePayload: remotePayload,
	}, nil
}
