package recipesnode

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/catalog"
	"recipe-swap/internal/gossip"
	"recipe-swap/internal/netx"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/proto"
)

// bufPrinter records console output.
type bufPrinter struct {
	mu sync.Mutex
	b  strings.Builder
}

func (p *bufPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(&p.b, format, args...)
}

func (p *bufPrinter) Println(args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(&p.b, args...)
}

func (p *bufPrinter) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b.String()
}

func (p *bufPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.Reset()
}

// memNet delivers a publish to every member in the publisher's partial
// view, like floodsub on a fully connected mesh.
type memNet struct {
	mu      sync.Mutex
	members map[peer.ID]*memBus
}

func newMemNet() *memNet { return &memNet{members: make(map[peer.ID]*memBus)} }

type memBus struct {
	net   *memNet
	self  peer.ID
	inbox chan gossip.Message

	mu        sync.Mutex
	view      map[peer.ID][]netx.Addr
	published []proto.Envelope
}

func (n *memNet) join(self peer.ID) *memBus {
	b := &memBus{
		net:   n,
		self:  self,
		inbox: make(chan gossip.Message, 64),
		view:  make(map[peer.ID][]netx.Addr),
	}
	n.mu.Lock()
	n.members[self] = b
	n.mu.Unlock()
	return b
}

func (n *memNet) leave(id peer.ID) {
	n.mu.Lock()
	delete(n.members, id)
	n.mu.Unlock()
}

func (b *memBus) Publish(topic string, data []byte) error {
	if env, err := proto.Decode(data); err == nil {
		b.mu.Lock()
		b.published = append(b.published, env)
		b.mu.Unlock()
	}

	targets := b.partialView()

	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	for _, id := range targets {
		m, ok := b.net.members[id]
		if !ok || id == b.self {
			continue
		}
		m.inbox <- gossip.Message{Source: b.self, ReceivedFrom: b.self, Topic: topic, Data: data}
	}
	return nil
}

func (b *memBus) AddToPartialView(id peer.ID, addrs []netx.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.view[id] = addrs
}

func (b *memBus) RemoveFromPartialView(id peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.view, id)
}

func (b *memBus) partialView() []peer.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]peer.ID, 0, len(b.view))
	for id := range b.view {
		out = append(out, id)
	}
	return out
}

func (b *memBus) responses() []proto.ListResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []proto.ListResponse
	for _, env := range b.published {
		if env.Kind == proto.KindResponse {
			out = append(out, *env.Response)
		}
	}
	return out
}

type testApp struct {
	*App
	bus   *memBus
	out   *bufPrinter
	lines chan string
}

func newPeerID(t testing.TB) peer.ID {
	t.Helper()
	id, err := p2p.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	return id.ID
}

func newTestApp(t *testing.T, net *memNet, opts ...func(*Config)) *testApp {
	t.Helper()

	cfg := DefaultConfig()
	cfg.StorePath = filepath.Join(t.TempDir(), "recipes.json")
	for _, o := range opts {
		o(&cfg)
	}
	store, err := catalog.Open(cfg.StorePath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}

	self := newPeerID(t)
	bus := net.join(self)
	out := &bufPrinter{}
	a := newApp(cfg, self, store, bus, out, nil, nil)
	a.gossipCh = bus.inbox
	return &testApp{App: a, bus: bus, out: out, lines: make(chan string)}
}

// meet makes every app discover every other one. Call before start.
func meet(apps ...*testApp) {
	for _, a := range apps {
		for _, b := range apps {
			if a != b {
				a.handleDiscovery(discovered(b.self))
			}
		}
	}
}

// start runs the event loop until the test ends.
func (ta *testApp) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ta.Run(ctx, ta.lines)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (ta *testApp) input(t *testing.T, line string) {
	t.Helper()
	select {
	case ta.lines <- line:
	case <-time.After(2 * time.Second):
		t.Fatalf("event loop did not take %q", line)
	}
}

func waitOutput(t *testing.T, p *bufPrinter, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(p.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q; got:\n%s", want, p.String())
}

func request(t *testing.T, mode proto.ListMode) []byte {
	t.Helper()
	data, err := proto.ListRequest{Mode: mode}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}
