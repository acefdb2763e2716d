package netx

import (
	"context"
	"net"
)

// Addr is a host:port transport address.
type Addr string

func (a Addr) String() string { return string(a) }

// Conn is a raw transport connection. It is a full net.Conn so the
// security and muxer layers can forward deadlines to it.
type Conn interface {
	net.Conn
	Remote() Addr
}

type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(ctx context.Context, addr Addr) (Conn, error)
	Close() error
}
