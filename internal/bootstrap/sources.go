package bootstrap

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/netx"
)

// Candidate is a peer worth dialing and where to reach it.
type Candidate struct {
	ID    peer.ID
	Addrs []netx.Addr
	// Pinned candidates were named by the operator and are kept as
	// gossip targets even when the first dial fails.
	Pinned bool
}

type PeerSource interface {
	// Discover returns candidate peers to connect to.
	Discover(ctx context.Context) ([]Candidate, error)
	Name() string
}
