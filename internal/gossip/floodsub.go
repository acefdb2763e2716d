package gossip

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/proto"
	"recipe-swap/internal/telemetry"
)

const ProtocolFloodsub = "/floodsub/1.0.0"

var ErrClosed = errors.New("floodsub closed")

type Config struct {
	Logger       telemetry.Logger
	SeenTTL      time.Duration // how long message ids are remembered
	QueueSize    int           // per-peer outbound and local delivery buffer
	DialTimeout  time.Duration
	RedialPeriod time.Duration // retry interval for unreachable partial view entries
}

func DefaultConfig() Config {
	return Config{
		SeenTTL:      2 * time.Minute,
		QueueSize:    128,
		DialTimeout:  5 * time.Second,
		RedialPeriod: 10 * time.Second,
	}
}

// Message is a payload delivered to a local subscriber.
type Message struct {
	Source       peer.ID // original publisher
	ReceivedFrom peer.ID // peer that relayed it to us
	Topic        string
	Data         []byte
}

// FloodSub floods every published message to all connected peers that
// announced the topic. There are no acknowledgments or retransmissions.
type FloodSub struct {
	cfg    Config
	node   *p2p.Node
	self   peer.ID
	logger telemetry.Logger
	seen   *seenCache

	mu          sync.Mutex
	mySubs      map[string]bool
	peerTopics  map[peer.ID]map[string]bool
	writers     map[peer.ID]*peerWriter
	partialView map[peer.ID][]netx.Addr

	messages chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New attaches a floodsub router to node. It must be called before the
// node accepts sessions so no peer is missed.
func New(node *p2p.Node, cfg Config) *FloodSub {
	def := DefaultConfig()
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = def.SeenTTL
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.RedialPeriod <= 0 {
		cfg.RedialPeriod = def.RedialPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	fs := &FloodSub{
		cfg:         cfg,
		node:        node,
		self:        node.ID(),
		logger:      cfg.Logger.With("module", "floodsub"),
		seen:        newSeenCache(cfg.SeenTTL),
		mySubs:      make(map[string]bool),
		peerTopics:  make(map[peer.ID]map[string]bool),
		writers:     make(map[peer.ID]*peerWriter),
		partialView: make(map[peer.ID][]netx.Addr),
		messages:    make(chan Message, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	node.SetStreamHandler(ProtocolFloodsub, fs.handleStream)
	node.Notify(fs.onNodeEvent)

	fs.wg.Add(1)
	go fs.redialLoop()
	return fs
}

// Messages delivers inbound messages for subscribed topics.
func (fs *FloodSub) Messages() <-chan Message { return fs.messages }

// Close stops the router. The Messages channel is not closed.
func (fs *FloodSub) Close() {
	fs.cancel()

	fs.mu.Lock()
	for id, w := range fs.writers {
		w.stop()
		delete(fs.writers, id)
	}
	fs.mu.Unlock()

	fs.wg.Wait()
}

func (fs *FloodSub) onNodeEvent(ev p2p.Event) {
	id, err := peer.Decode(ev.PeerID)
	if err != nil {
		return
	}
	switch ev.Type {
	case p2p.EventPeerConnected:
		go fs.addPeer(id)
	case p2p.EventPeerDisconnected:
		go fs.removePeer(id)
	}
}

// Subscribe joins topic and announces it to every connected peer.
func (fs *FloodSub) Subscribe(topic string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.mySubs[topic] {
		return
	}
	fs.mySubs[topic] = true

	rpc := &proto.RPC{Subscriptions: []proto.SubOpts{{Subscribe: true, Topic: topic}}}
	for _, w := range fs.writers {
		w.send(rpc)
	}
}

// Publish floods data on topic to the partial view. Having no subscribed
// peers is not an error.
func (fs *FloodSub) Publish(topic string, data []byte) error {
	if fs.ctx.Err() != nil {
		return ErrClosed
	}
	msg := &proto.Message{
		From:   fs.self.String(),
		Data:   data,
		Seqno:  NewMsgID(),
		Topics: []string{topic},
	}
	fs.seen.Seen(msg.ID())

	sent := fs.forward(msg, "")
	fs.logger.Debug("published", "topic", topic, "peers", sent, "bytes", len(data))
	return nil
}

// forward sends msg to every subscribed peer in the partial view except
// the one it came from and its publisher. Connected peers outside the
// partial view get nothing. It returns how many peers it was queued for.
func (fs *FloodSub) forward(msg *proto.Message, receivedFrom peer.ID) int {
	rpc := &proto.RPC{Publish: []*proto.Message{msg}}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	sent := 0
	for id, w := range fs.writers {
		if id == receivedFrom || id.String() == msg.From {
			continue
		}
		if _, ok := fs.partialView[id]; !ok {
			continue
		}
		if !fs.peerWantsLocked(id, msg) {
			continue
		}
		if w.send(rpc) {
			sent++
		}
	}
	return sent
}

func (fs *FloodSub) peerWantsLocked(id peer.ID, msg *proto.Message) bool {
	topics := fs.peerTopics[id]
	for _, t := range msg.Topics {
		if topics[t] {
			return true
		}
	}
	return false
}

// ListPeers returns the connected peers subscribed to topic.
func (fs *FloodSub) ListPeers(topic string) []peer.ID {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := make([]peer.ID, 0, len(fs.peerTopics))
	for id, topics := range fs.peerTopics {
		if topics[topic] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (fs *FloodSub) handleRPC(from peer.ID, rpc *proto.RPC) {
	if len(rpc.Subscriptions) > 0 {
		fs.mu.Lock()
		topics := fs.peerTopics[from]
		if topics == nil {
			topics = make(map[string]bool)
			fs.peerTopics[from] = topics
		}
		for _, sub := range rpc.Subscriptions {
			if sub.Subscribe {
				topics[sub.Topic] = true
			} else {
				delete(topics, sub.Topic)
			}
		}
		fs.mu.Unlock()
	}

	for _, msg := range rpc.Publish {
		if msg == nil || len(msg.Topics) == 0 {
			continue
		}
		fs.handleMessage(from, msg)
	}
}

func (fs *FloodSub) handleMessage(from peer.ID, msg *proto.Message) {
	if msg.From == fs.self.String() {
		return
	}
	if fs.seen.Seen(msg.ID()) {
		return
	}
	source, err := peer.Decode(msg.From)
	if err != nil {
		fs.logger.Warn("dropping message with bad source", "from", from, "err", err)
		return
	}

	fs.mu.Lock()
	var topic string
	for _, t := range msg.Topics {
		if fs.mySubs[t] {
			topic = t
			break
		}
	}
	fs.mu.Unlock()

	if topic != "" {
		fs.deliver(Message{Source: source, ReceivedFrom: from, Topic: topic, Data: msg.Data})
	}
	fs.forward(msg, from)
}

func (fs *FloodSub) deliver(m Message) {
	select {
	case fs.messages <- m:
	default:
		fs.logger.Warn("local delivery queue full, dropping", "source", m.Source, "topic", m.Topic)
	}
}
