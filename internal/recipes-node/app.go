package recipesnode

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"recipe-swap/internal/bootstrap"
	"recipe-swap/internal/catalog"
	"recipe-swap/internal/discovery"
	"recipe-swap/internal/gossip"
	"recipe-swap/internal/metrics"
	"recipe-swap/internal/netx"
	"recipe-swap/internal/p2p"
	"recipe-swap/internal/proto"
	"recipe-swap/internal/storage/peerbolt"
	"recipe-swap/internal/telemetry"
)

const peerBookFile = "peers.db"

// Bus is the gossip surface the event loop drives.
type Bus interface {
	Publish(topic string, data []byte) error
	AddToPartialView(id peer.ID, addrs []netx.Addr)
	RemoveFromPartialView(id peer.ID)
}

// App owns the node and runs the single event loop. Everything the loop
// mutates (peer view, response queue, catalog writes) is touched from
// Run only.
type App struct {
	cfg     Config
	ui      Printer
	logger  telemetry.Logger
	metrics *metrics.Metrics

	self  peer.ID
	store *catalog.Store
	book  *peerbolt.Store
	bus   Bus
	view  peerView

	responses chan proto.ListResponse
	bootCh    chan []bootstrap.Candidate

	node *p2p.Node
	fs   *gossip.FloodSub
	mdns *discovery.Service

	gossipCh <-chan gossip.Message
	discCh   <-chan discovery.Event
	nodeCh   <-chan p2p.Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newApp(cfg Config, self peer.ID, store *catalog.Store, bus Bus, ui Printer, logger telemetry.Logger, m *metrics.Metrics) *App {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &App{
		cfg:       cfg,
		ui:        ui,
		logger:    logger.With("module", "app"),
		metrics:   m,
		self:      self,
		store:     store,
		bus:       bus,
		view:      make(peerView),
		responses: make(chan proto.ListResponse, cfg.ResponseQueue),
		bootCh:    make(chan []bootstrap.Candidate, 1),
	}
}

// New builds the node, gossip router, catalog, and peer book. Nothing
// touches the network until Start.
func New(cfg Config, logger telemetry.Logger, ui Printer) (*App, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	store, err := catalog.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := bootstrap.ValidateAddrs(cfg.Bootstrap); err != nil {
		return nil, err
	}

	id, err := p2p.NewIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	node, err := p2p.NewNode(p2p.NodeConfig{
		Network:  netx.NewTCPNetwork(),
		BindAddr: cfg.Bind,
		Identity: id,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}

	gcfg := gossip.DefaultConfig()
	gcfg.Logger = logger
	fs := gossip.New(node, gcfg)

	m := metrics.NopMetrics()
	if cfg.MetricsAddr != "" {
		m = metrics.PrometheusMetrics("recipeswap")
	}

	a := newApp(cfg, node.ID(), store, fs, ui, logger, m)
	a.node = node
	a.fs = fs

	if cfg.DataDir != "" {
		book, err := peerbolt.Open(filepath.Join(cfg.DataDir, peerBookFile))
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("open peer book: %w", err)
		}
		a.book = book
	}
	return a, nil
}

// Start brings up the listener, the gossip subscription, discovery, and
// the optional metrics endpoint. Any failure here is fatal to the process.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	a.fs.Subscribe(a.cfg.Topic)
	a.gossipCh = a.fs.Messages()
	a.nodeCh = a.node.Events()

	var advertised []string
	if !a.cfg.NoMDNS {
		mcfg := a.cfg.MDNS
		mcfg.Logger = a.logger
		svc, err := discovery.NewService(mcfg, a.self, a.node.ListenAddr())
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		if err := svc.Start(); err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		a.mdns = svc
		a.discCh = svc.Events()
		for _, m := range svc.Addrs() {
			advertised = append(advertised, m.String())
		}
	}
	if len(advertised) == 0 {
		advertised = []string{string(a.node.ListenAddr())}
	}

	if a.cfg.MetricsAddr != "" {
		if _, err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if all, err := a.store.ReadAll(ctx); err == nil {
		a.metrics.CatalogSize.Set(float64(len(all)))
	}

	var sources []bootstrap.PeerSource
	if len(a.cfg.Bootstrap) > 0 {
		sources = append(sources, bootstrap.StaticSource{Addrs: a.cfg.Bootstrap})
	}
	if a.book != nil {
		sources = append(sources, bootstrap.PeerBookSource{Book: a.book})
	}
	if len(sources) > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			keep := bootstrap.RunOnce(ctx, a.node, bootstrap.DefaultConfig(), a.logger, sources...)
			if len(keep) == 0 {
				return
			}
			select {
			case a.bootCh <- keep:
			case <-ctx.Done():
			}
		}()
	}

	PrintBanner(a.ui, a.self, advertised)
	return nil
}

// Run processes events until lines is closed or ctx is done. Each event
// is handled to completion before the next is taken.
func (a *App) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				a.logger.Info("input closed, shutting down")
				return nil
			}
			a.safely("input", func() { a.handleLine(ctx, line) })

		case resp := <-a.responses:
			a.safely("response", func() { a.publishResponse(resp) })

		case msg := <-a.gossipCh:
			a.safely("gossip", func() { a.handleGossip(ctx, msg) })

		case ev := <-a.discCh:
			a.safely("discovery", func() { a.handleDiscovery(ev) })

		case cands := <-a.bootCh:
			a.safely("bootstrap", func() { a.handleBootstrap(cands) })

		case ev := <-a.nodeCh:
			a.safely("node", func() { a.handleNodeEvent(ev) })
		}
	}
}

func (a *App) safely(source string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panicked", "source", source, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	f()
}

// Close stops discovery, gossip, and the node, then closes the peer book.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.mdns != nil {
		_ = a.mdns.Close()
	}
	if a.fs != nil {
		a.fs.Close()
	}
	var err error
	if a.node != nil {
		err = a.node.Stop()
	}
	a.wg.Wait()
	if a.book != nil {
		if cerr := a.book.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
