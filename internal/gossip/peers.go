package gossip

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/proto"
)

type peerWriter struct {
	id     peer.ID
	sendCh chan *proto.RPC
	done   chan struct{}
	once   sync.Once
}

func newPeerWriter(id peer.ID, size int) *peerWriter {
	return &peerWriter{
		id:     id,
		sendCh: make(chan *proto.RPC, size),
		done:   make(chan struct{}),
	}
}

// send queues rpc without blocking. A full queue drops the rpc.
func (w *peerWriter) send(rpc *proto.RPC) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.sendCh <- rpc:
		return true
	default:
		return false
	}
}

func (w *peerWriter) stop() {
	w.once.Do(func() { close(w.done) })
}

// spawnLocked starts f unless the router is closing. fs.mu must be held.
func (fs *FloodSub) spawnLocked(f func()) bool {
	if fs.ctx.Err() != nil {
		return false
	}
	fs.wg.Add(1)
	go func() {
		defer fs.wg.Done()
		f()
	}()
	return true
}

// addPeer opens our outbound stream to id and sends it our subscriptions.
func (fs *FloodSub) addPeer(id peer.ID) {
	ctx, cancel := context.WithTimeout(fs.ctx, fs.cfg.DialTimeout)
	s, err := fs.node.NewStream(ctx, id, ProtocolFloodsub)
	cancel()
	if err != nil {
		fs.logger.Debug("open floodsub stream failed", "peer", id, "err", err)
		return
	}

	w := newPeerWriter(id, fs.cfg.QueueSize)

	fs.mu.Lock()
	if !fs.spawnLocked(func() { fs.writeLoop(w, s) }) {
		fs.mu.Unlock()
		_ = s.Reset()
		return
	}
	if old := fs.writers[id]; old != nil {
		old.stop()
	}
	fs.writers[id] = w

	if len(fs.mySubs) > 0 {
		hello := &proto.RPC{}
		for t := range fs.mySubs {
			hello.Subscriptions = append(hello.Subscriptions, proto.SubOpts{Subscribe: true, Topic: t})
		}
		w.send(hello)
	}
	fs.mu.Unlock()

	fs.logger.Debug("peer joined", "peer", id)

	// The session may have gone away while the stream was opening.
	if !fs.node.IsConnected(id) {
		fs.removePeer(id)
	}
}

func (fs *FloodSub) removePeer(id peer.ID) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if w := fs.writers[id]; w != nil {
		w.stop()
		delete(fs.writers, id)
	}
	delete(fs.peerTopics, id)
}

func (fs *FloodSub) dropWriter(w *peerWriter) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.writers[w.id] == w {
		delete(fs.writers, w.id)
	}
	w.stop()
}

func (fs *FloodSub) writeLoop(w *peerWriter, s *p2p.Stream) {
	defer s.Close()

	enc := json.NewEncoder(s)
	for {
		select {
		case <-fs.ctx.Done():
			return
		case <-w.done:
			return
		case rpc := <-w.sendCh:
			if err := enc.Encode(rpc); err != nil {
				fs.logger.Debug("write to peer failed", "peer", w.id, "err", err)
				_ = s.Reset()
				fs.dropWriter(w)
				return
			}
		}
	}
}

// handleStream reads RPC frames from a peer's outbound stream.
func (fs *FloodSub) handleStream(s *p2p.Stream) {
	defer s.Close()
	stop := context.AfterFunc(fs.ctx, func() { _ = s.Reset() })
	defer stop()

	dec := json.NewDecoder(bufio.NewReader(s))
	for {
		var rpc proto.RPC
		if err := dec.Decode(&rpc); err != nil {
			if !errors.Is(err, io.EOF) && fs.ctx.Err() == nil {
				fs.logger.Debug("read from peer failed", "peer", s.Peer, "err", err)
			}
			return
		}
		fs.handleRPC(s.Peer, &rpc)
	}
}

// AddToPartialView makes id a flooding target and dials it if needed.
func (fs *FloodSub) AddToPartialView(id peer.ID, addrs []netx.Addr) {
	if id == fs.self {
		return
	}
	addrs = append([]netx.Addr(nil), addrs...)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.partialView[id] = addrs
	fs.spawnLocked(func() { fs.dial(id, addrs) })
}

// RemoveFromPartialView stops flooding to id. An open session is left
// alone but carries no more messages from this node.
func (fs *FloodSub) RemoveFromPartialView(id peer.ID) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.partialView, id)
}

// PartialView returns the current flooding targets.
func (fs *FloodSub) PartialView() []peer.ID {
	fs.mu.Lock()
	out := make([]peer.ID, 0, len(fs.partialView))
	for id := range fs.partialView {
		out = append(out, id)
	}
	fs.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (fs *FloodSub) dial(id peer.ID, addrs []netx.Addr) {
	if fs.node.IsConnected(id) {
		return
	}
	ctx, cancel := context.WithTimeout(fs.ctx, fs.cfg.DialTimeout)
	defer cancel()
	if err := fs.node.ConnectPeer(ctx, id, addrs); err != nil {
		fs.logger.Debug("dial partial view peer failed", "peer", id, "err", err)
	}
}

func (fs *FloodSub) redialLoop() {
	defer fs.wg.Done()

	ticker := time.NewTicker(fs.cfg.RedialPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-fs.ctx.Done():
			return
		case <-ticker.C:
			fs.mu.Lock()
			for id, addrs := range fs.partialView {
				if fs.node.IsConnected(id) {
					continue
				}
				id, addrs := id, addrs
				fs.spawnLocked(func() { fs.dial(id, addrs) })
			}
			fs.mu.Unlock()
		}
	}
}
