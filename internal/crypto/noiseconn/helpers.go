package noiseconn

import (
	"encoding/binary"
	"errors"
	"io"

	pool "github.com/libp2p/go-buffer-pool"
)

var (
	errHandshakeTooLong = errors.New("noise: handshake message too long")
	errHandshakeEmpty   = errors.New("noise: empty handshake message")
)

// Handshake messages use the same 2-byte big-endian length prefix as
// transport frames.
func writeHandshakeMsg(w io.Writer, msg []byte) error {
	if len(msg) > maxFrameSize {
		return errHandshakeTooLong
	}
	buf := pool.Get(2 + len(msg))
	defer pool.Put(buf)
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	copy(buf[2:], msg)
	_, err := w.Write(buf)
	return err
}

func readHandshakeMsg(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 {
		return nil, errHandshakeEmpty
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
