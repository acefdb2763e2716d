package bootstrap

import (
	"context"
	"fmt"

	"recipe-swap/internal/discovery"
	"recipe-swap/internal/netx"
)

// StaticSource dials fixed /ip4/<ip>/tcp/<port>/p2p/<id> addresses, as
// given with --bootstrap.
type StaticSource struct {
	Addrs []string
	Label string
}

func (s StaticSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s StaticSource) Discover(ctx context.Context) ([]Candidate, error) {
	return parseCandidates(s.Addrs)
}

// ValidateAddrs reports the first address that cannot be dialed.
func ValidateAddrs(addrs []string) error {
	_, err := parseCandidates(addrs)
	return err
}

func parseCandidates(addrs []string) ([]Candidate, error) {
	byID := make(map[string]int, len(addrs))
	out := make([]Candidate, 0, len(addrs))
	for _, s := range addrs {
		id, addr, err := discovery.ParsePeerAddr(s)
		if err != nil {
			return nil, fmt.Errorf("bootstrap addr %q: %w", s, err)
		}
		if i, ok := byID[id.String()]; ok {
			out[i].Addrs = append(out[i].Addrs, addr)
			continue
		}
		byID[id.String()] = len(out)
		out = append(out, Candidate{ID: id, Addrs: []netx.Addr{addr}, Pinned: true})
	}
	return out, nil
}
