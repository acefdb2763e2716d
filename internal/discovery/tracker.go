package discovery

import (
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// tracker remembers when each peer was last sighted.
type tracker struct {
	ttl  time.Duration
	seen map[peer.ID]time.Time
}

func newTracker(ttl time.Duration) *tracker {
	return &tracker{ttl: ttl, seen: make(map[peer.ID]time.Time)}
}

// observe records a sighting and reports whether the peer is new.
func (t *tracker) observe(id peer.ID, at time.Time) bool {
	_, known := t.seen[id]
	t.seen[id] = at
	return !known
}

// sweep forgets and returns peers not sighted within ttl of now.
func (t *tracker) sweep(now time.Time) []peer.ID {
	var expired []peer.ID
	for id, last := range t.seen {
		if now.Sub(last) > t.ttl {
			expired = append(expired, id)
			delete(t.seen, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

func (t *tracker) len() int { return len(t.seen) }
