package bootstrap

import (
	"context"
	"math/rand"
	"slices"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/telemetry"
)

type Config struct {
	MaxConnectPerRound int
	PerPeerTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnectPerRound: 12,
		PerPeerTimeout:     3 * time.Second,
	}
}

// Dialer is the part of the node bootstrap needs.
type Dialer interface {
	ID() peer.ID
	IsConnected(id peer.ID) bool
	ConnectPeer(ctx context.Context, id peer.ID, addrs []netx.Addr) error
}

// RunOnce gathers candidates from sources and attempts connections. It
// returns the candidates the caller should keep as gossip targets: every
// peer that is connected once the round ends, plus pinned peers that
// could not be reached yet.
func RunOnce(ctx context.Context, d Dialer, cfg Config, logger telemetry.Logger, sources ...PeerSource) []Candidate {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	logger = logger.With("module", "bootstrap")
	def := DefaultConfig()
	if cfg.MaxConnectPerRound <= 0 {
		cfg.MaxConnectPerRound = def.MaxConnectPerRound
	}
	if cfg.PerPeerTimeout <= 0 {
		cfg.PerPeerTimeout = def.PerPeerTimeout
	}

	var found []Candidate
	for _, s := range sources {
		cs, err := s.Discover(ctx)
		if err != nil {
			logger.Warn("source failed", "source", s.Name(), "err", err)
			continue
		}
		found = append(found, cs...)
	}
	cands := merge(found)

	// Shuffle to avoid everyone hitting the same bootstrap in the same order.
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	var keep []Candidate
	attempts, connected := 0, 0
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		if c.ID == d.ID() {
			continue
		}
		if d.IsConnected(c.ID) {
			keep = append(keep, c)
			continue
		}
		if attempts >= cfg.MaxConnectPerRound {
			if c.Pinned {
				keep = append(keep, c)
			}
			continue
		}
		attempts++

		dctx, cancel := context.WithTimeout(ctx, cfg.PerPeerTimeout)
		err := d.ConnectPeer(dctx, c.ID, c.Addrs)
		cancel()
		if err != nil {
			logger.Debug("dial failed", "peer", c.ID, "pinned", c.Pinned, "err", err)
			if c.Pinned {
				keep = append(keep, c)
			}
			continue
		}
		connected++
		keep = append(keep, c)
	}
	if attempts > 0 {
		logger.Info("bootstrap round done", "attempted", attempts, "connected", connected)
	}
	return keep
}

// merge folds candidates for the same peer into one, keeping the first
// occurrence's position. Addresses are unioned and Pinned is sticky.
func merge(cands []Candidate) []Candidate {
	idx := make(map[peer.ID]int, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		i, ok := idx[c.ID]
		if !ok {
			idx[c.ID] = len(out)
			out = append(out, Candidate{ID: c.ID, Addrs: append([]netx.Addr(nil), c.Addrs...), Pinned: c.Pinned})
			continue
		}
		out[i].Pinned = out[i].Pinned || c.Pinned
		for _, a := range c.Addrs {
			if !slices.Contains(out[i].Addrs, a) {
				out[i].Addrs = append(out[i].Addrs, a)
			}
		}
	}
	return out
}
