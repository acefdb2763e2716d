package gossip

import (
	"container/list"
	"sync"
	"time"
)

// seenCache remembers message ids for ttl. Entries are kept in arrival
// order so expiry only ever inspects the oldest ones.
type seenCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	order *list.List // of seenEntry, oldest first
	index map[string]*list.Element
}

type seenEntry struct {
	id string
	at time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:   ttl,
		now:   time.Now,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Seen reports whether id arrived within the last ttl. Unseen ids are
// recorded. An empty id counts as seen so unidentifiable messages are
// never relayed.
func (s *seenCache) Seen(id string) bool {
	if id == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)
	if _, ok := s.index[id]; ok {
		return true
	}
	s.index[id] = s.order.PushBack(seenEntry{id: id, at: now})
	return false
}

func (s *seenCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	return len(s.index)
}

func (s *seenCache) expireLocked(now time.Time) {
	for e := s.order.Front(); e != nil; e = s.order.Front() {
		ent := e.Value.(seenEntry)
		if now.Sub(ent.at) <= s.ttl {
			return
		}
		s.order.Remove(e)
		delete(s.index, ent.id)
	}
}
