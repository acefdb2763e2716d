package recipesnode

import (
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"
)

// peerView is the set of peers discovery currently reports. Only the
// event loop touches it.
type peerView map[peer.ID]struct{}

func (v peerView) add(id peer.ID)    { v[id] = struct{}{} }
func (v peerView) remove(id peer.ID) { delete(v, id) }

func (v peerView) has(id peer.ID) bool {
	_, ok := v[id]
	return ok
}

func (v peerView) list() []peer.ID {
	out := make([]peer.ID, 0, len(v))
	for id := range v {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
