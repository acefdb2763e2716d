package peerbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	bolt "go.etcd.io/bbolt"
)

const (
	bByID   = "peers_by_id"
	bBySeen = "peers_by_seen"

	defaultTO = 2 * time.Second
)

var ErrEmptyPeer = errors.New("missing peer id")

// Record is what the peer book remembers about one peer.
type Record struct {
	ID          string    `json:"id"`
	Addrs       []string  `json:"addrs"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	LastExpired time.Time `json:"last_expired,omitempty"`
	TimesSeen   int       `json:"times_seen"`
}

// Store is a BoltDB-backed peer book keyed by peer id, with a secondary
// index ordered by last sighting.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bByID)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bBySeen)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordSighting notes that id was seen at addrs. It reports whether the
// peer was unknown before.
func (s *Store) RecordSighting(id peer.ID, addrs []string, at time.Time) (bool, error) {
	if id == "" {
		return false, ErrEmptyPeer
	}

	var inserted bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket([]byte(bByID))
		bySeen := tx.Bucket([]byte(bBySeen))

		rec, ok, err := get(byID, id)
		if err != nil {
			return err
		}
		if ok {
			if err := bySeen.Delete(tsKey(rec.LastSeen.UnixNano(), rec.ID)); err != nil {
				return err
			}
		} else {
			rec = Record{ID: id.String(), FirstSeen: at}
			inserted = true
		}
		rec.LastSeen = at
		rec.TimesSeen++
		if len(addrs) > 0 {
			rec.Addrs = append([]string(nil), addrs...)
		}

		if err := put(byID, rec); err != nil {
			return err
		}
		return bySeen.Put(tsKey(at.UnixNano(), rec.ID), nil)
	})
	return inserted, err
}

// RecordExpiry notes that id stopped answering discovery. Unknown peers
// are ignored.
func (s *Store) RecordExpiry(id peer.ID, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket([]byte(bByID))
		rec, ok, err := get(byID, id)
		if err != nil || !ok {
			return err
		}
		rec.LastExpired = at
		return put(byID, rec)
	})
}

// Get returns the record for id.
func (s *Store) Get(id peer.ID) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, ok, err = get(tx.Bucket([]byte(bByID)), id)
		return err
	})
	return rec, ok, err
}

// Recent returns up to n records, most recently seen first.
func (s *Store) Recent(n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Record, 0, min(n, 64))
	err := s.db.View(func(tx *bolt.Tx) error {
		bySeen := tx.Bucket([]byte(bBySeen))
		byID := tx.Bucket([]byte(bByID))
		c := bySeen.Cursor()
		for k, _ := c.Last(); k != nil && len(out) < n; k, _ = c.Prev() {
			_, id := splitTSKey(k)
			if id == "" {
				continue
			}
			raw := byID.Get([]byte(id))
			if raw == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				// Corrupt entry: skip it, the rest of the book is still useful.
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Count returns the number of known peers.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bByID)).Stats().KeyN
		return nil
	})
	return n, err
}

func get(b *bolt.Bucket, id peer.ID) (Record, bool, error) {
	raw := b.Get([]byte(id.String()))
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func put(b *bolt.Bucket, rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ID), val)
}

func tsKey(ts int64, id string) []byte {
	// big-endian timestamp for correct ordering; append 0x00 + id so Seek works.
	b := make([]byte, 8+1+len(id))
	binary.BigEndian.PutUint64(b[:8], uint64(ts))
	b[8] = 0
	copy(b[9:], id)
	return b
}

func splitTSKey(k []byte) (int64, string) {
	if len(k) < 9 {
		return 0, ""
	}
	return int64(binary.BigEndian.Uint64(k[:8])), string(k[9:])
}
