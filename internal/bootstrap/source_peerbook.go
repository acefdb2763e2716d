package bootstrap

import (
	"context"

	"recipe-swap/internal/discovery"
	"recipe-swap/internal/storage/peerbolt"
)

// PeerBookSource offers the most recently sighted peers from the peer book.
type PeerBookSource struct {
	Book  *peerbolt.Store
	Limit int
}

func (s PeerBookSource) Name() string { return "peerbook" }

func (s PeerBookSource) Discover(ctx context.Context) ([]Candidate, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = 32
	}
	recs, err := s.Book.Recent(limit)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(recs))
	for _, r := range recs {
		c := Candidate{}
		for _, raw := range r.Addrs {
			id, addr, err := discovery.ParsePeerAddr(raw)
			if err != nil || id.String() != r.ID {
				continue
			}
			c.ID = id
			c.Addrs = append(c.Addrs, addr)
		}
		if len(c.Addrs) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

