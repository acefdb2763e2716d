package recipesnode

import (
	"context"
	"time"

	"recipe-swap/internal/bootstrap"
	"recipe-swap/internal/discovery"
	"recipe-swap/internal/gossip"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/proto"
)

func (a *App) handleGossip(ctx context.Context, msg gossip.Message) {
	if msg.Topic != a.cfg.Topic {
		return
	}

	env, err := proto.Decode(msg.Data)
	if err != nil {
		a.metrics.DecodeFailures.Add(1)
		a.logger.Warn("dropping undecodable payload", "source", msg.Source, "bytes", len(msg.Data), "err", err)
		return
	}
	a.metrics.Received.With("kind", env.Kind.String()).Add(1)

	switch env.Kind {
	case proto.KindResponse:
		resp := env.Response
		if resp.Receiver != a.self.String() {
			a.metrics.Dropped.With("reason", "not_receiver").Add(1)
			return
		}
		printRemoteRecipes(a.ui, msg.Source, *resp)

	case proto.KindRequest:
		req := env.Request
		if !req.Mode.Targets(a.self.String()) {
			a.metrics.Dropped.With("reason", "not_targeted").Add(1)
			return
		}
		public, err := a.store.ListPublic(ctx)
		if err != nil {
			a.logger.Error("read public recipes", "err", err)
			return
		}
		a.logger.Debug("answering request", "source", msg.Source, "mode", req.Mode.String(), "recipes", len(public))
		a.enqueueResponse(proto.NewListResponse(req.Mode, public, msg.Source.String()))
	}
}

// enqueueResponse hands resp to the loop without blocking. The loop is
// the only publisher, so a full queue drops the response.
func (a *App) enqueueResponse(resp proto.ListResponse) {
	select {
	case a.responses <- resp:
	default:
		a.metrics.Dropped.With("reason", "response_queue_full").Add(1)
		a.logger.Warn("response queue full, dropping", "receiver", resp.Receiver)
	}
}

func (a *App) publishResponse(resp proto.ListResponse) {
	data, err := resp.Encode()
	if err != nil {
		a.logger.Error("encode response", "err", err)
		return
	}
	if err := a.bus.Publish(a.cfg.Topic, data); err != nil {
		a.logger.Warn("publish response", "receiver", resp.Receiver, "err", err)
		return
	}
	a.metrics.Published.With("kind", "response").Add(1)
	a.logger.Debug("response published", "receiver", resp.Receiver, "recipes", len(resp.Data))
}

// handleDiscovery keeps the peer view and the gossip partial view in step.
func (a *App) handleDiscovery(ev discovery.Event) {
	now := time.Now()
	switch ev.Type {
	case discovery.EventDiscovered:
		a.logger.Info("peer discovered", "peer", ev.Peer, "addrs", len(ev.Addrs))
		a.bus.AddToPartialView(ev.Peer, ev.DialAddrs())
		a.view.add(ev.Peer)
		if a.book != nil {
			addrs := make([]string, 0, len(ev.Addrs))
			for _, m := range ev.Addrs {
				addrs = append(addrs, m.String())
			}
			if _, err := a.book.RecordSighting(ev.Peer, addrs, now); err != nil {
				a.logger.Warn("peer book sighting", "peer", ev.Peer, "err", err)
			}
		}

	case discovery.EventExpired:
		a.logger.Info("peer expired", "peer", ev.Peer)
		a.bus.RemoveFromPartialView(ev.Peer)
		a.view.remove(ev.Peer)
		if a.book != nil {
			if err := a.book.RecordExpiry(ev.Peer, now); err != nil {
				a.logger.Warn("peer book expiry", "peer", ev.Peer, "err", err)
			}
		}
	}
	a.metrics.Peers.Set(float64(len(a.view)))
}

// handleBootstrap makes peers reached (or pinned) by bootstrap gossip
// targets. The peer view is left to discovery.
func (a *App) handleBootstrap(cands []bootstrap.Candidate) {
	for _, c := range cands {
		a.bus.AddToPartialView(c.ID, c.Addrs)
	}
	a.logger.Debug("bootstrap peers added to partial view", "count", len(cands))
}

func (a *App) handleNodeEvent(ev p2p.Event) {
	switch ev.Type {
	case p2p.EventPeerConnected:
		a.logger.Debug("peer connected", "peer", ev.PeerID, "addr", ev.PeerAddr, "inbound", ev.Inbound)
	case p2p.EventPeerDisconnected:
		a.logger.Debug("peer disconnected", "peer", ev.PeerID)
	}
	if a.node != nil {
		a.metrics.Connections.Set(float64(a.node.PeerCount()))
	}
}
