package netx

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	dialTimeout = 5 * time.Second
	keepAlive   = 15 * time.Second
)

type tcpNetwork struct {
	mu       sync.Mutex
	listener net.Listener
	dialer   net.Dialer
}

func NewTCPNetwork() Network {
	return &tcpNetwork{
		dialer: net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive},
	}
}

func (t *tcpNetwork) Listen(bindAddr string) (Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lc := net.ListenConfig{KeepAlive: keepAlive}
	l, err := lc.Listen(context.Background(), "tcp4", bindAddr)
	if err != nil {
		return "", err
	}
	t.listener = l
	return Addr(l.Addr().String()), nil
}

func (t *tcpNetwork) Accept() (Conn, error) {
	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()

	if l == nil {
		return nil, net.ErrClosed
	}
	c, err := l.Accept()
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

func (t *tcpNetwork) Dial(ctx context.Context, addr Addr) (Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp4", string(addr))
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

func (t *tcpNetwork) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		err := t.listener.Close()
		t.listener = nil
		return err
	}
	return nil
}

type tcpConn struct {
	net.Conn
}

func (c *tcpConn) Remote() Addr {
	return Addr(c.Conn.RemoteAddr().String())
}
