package p2p

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// addPeer registers pc. When a session to the same peer exists, both ends
// keep the session dialed by the smaller peer id so simultaneous dials
// converge on one session.
func (n *Node) addPeer(pc *peerConn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx.Err() != nil || pc.id == n.id.ID {
		return false
	}
	cur, exists := n.peers[pc.id]
	if exists && !n.preferNew(cur, pc) {
		return false
	}
	n.peers[pc.id] = pc
	if exists {
		go cur.close()
	}
	// Also emitted on replacement so protocols bound to the old session reattach.
	n.emit(Event{Type: EventPeerConnected, PeerID: pc.id.String(), PeerAddr: string(pc.addr), Inbound: pc.inbound})
	return true
}

func (n *Node) initiator(pc *peerConn) peer.ID {
	if pc.inbound {
		return pc.id
	}
	return n.id.ID
}

func (n *Node) preferNew(cur, next *peerConn) bool {
	canonical := n.id.ID
	if next.id < canonical {
		canonical = next.id
	}
	return n.initiator(next) == canonical && n.initiator(cur) != canonical
}

func (n *Node) removePeer(pc *peerConn) {
	n.mu.Lock()
	registered := n.peers[pc.id] == pc
	if registered {
		delete(n.peers, pc.id)
	}
	n.mu.Unlock()

	pc.close()

	if registered {
		n.emit(Event{Type: EventPeerDisconnected, PeerID: pc.id.String(), PeerAddr: string(pc.addr), Inbound: pc.inbound})
	}
}

func (n *Node) peer(id peer.ID) *peerConn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// IsConnected reports whether a session to id is up.
func (n *Node) IsConnected(id peer.ID) bool {
	return n.peer(id) != nil
}

// PeerCount returns the current number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}
