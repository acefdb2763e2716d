package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/net/ipv4"

	"recipe-swap/internal/netx"
	"recipe-swap/internal/telemetry"
)

const maxPacketSize = 9000

var ErrNoMulticast = errors.New("no multicast-capable interface")

// Service announces this node over mDNS and reports other nodes that
// answer the same service name.
type Service struct {
	cfg      Config
	self     peer.ID
	logger   telemetry.Logger
	instance string
	group    *net.UDPAddr

	mu      sync.Mutex
	addrs   []ma.Multiaddr
	tracker *tracker

	raw    net.PacketConn
	pc     *ipv4.PacketConn
	ifaces []net.Interface
	wmu    sync.Mutex

	events chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService prepares discovery for self advertising listen. Nothing is
// sent until Start.
func NewService(cfg Config, self peer.ID, listen netx.Addr) (*Service, error) {
	cfg = cfg.withDefaults()

	ip := net.ParseIP(cfg.Group)
	if ip == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("mdns group %q is not a multicast address", cfg.Group)
	}

	dialable, err := netx.DialableAddrs(listen)
	if err != nil {
		return nil, fmt.Errorf("mdns advertised addrs: %w", err)
	}
	addrs := make([]ma.Multiaddr, 0, len(dialable))
	for _, a := range dialable {
		m, err := PeerMultiaddr(a, self)
		if err != nil {
			continue
		}
		addrs = append(addrs, m)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("mdns: no IPv4 address to advertise for %s", listen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		self:     self,
		logger:   cfg.Logger.With("module", "mdns"),
		instance: strings.ReplaceAll(uuid.NewString(), "-", ""),
		group:    &net.UDPAddr{IP: ip, Port: cfg.Port},
		addrs:    addrs,
		tracker:  newTracker(cfg.TTL),
		events:   make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Events delivers Discovered and Expired events. It is never closed.
func (s *Service) Events() <-chan Event { return s.events }

// Addrs returns the multiaddrs this node advertises.
func (s *Service) Addrs() []ma.Multiaddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ma.Multiaddr(nil), s.addrs...)
}

// Start binds the mDNS socket, joins the group, and begins querying.
func (s *Service) Start() error {
	lc := net.ListenConfig{Control: reuseControl}
	raw, err := lc.ListenPacket(s.ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("mdns listen: %w", err)
	}

	pc := ipv4.NewPacketConn(raw)
	joined := s.joinGroup(pc)
	if len(joined) == 0 {
		// Let the kernel pick; works on hosts with only a default route.
		if err := pc.JoinGroup(nil, s.group); err != nil {
			raw.Close()
			return fmt.Errorf("%w: %v", ErrNoMulticast, err)
		}
	}
	_ = pc.SetMulticastLoopback(true)
	_ = pc.SetMulticastTTL(255)

	s.raw = raw
	s.pc = pc
	s.ifaces = joined

	s.logger.Info("mdns started", "group", s.group.String(), "service", s.cfg.ServiceName, "ifaces", len(joined))

	s.wg.Add(2)
	go s.readLoop()
	go s.tickLoop()
	return nil
}

func (s *Service) joinGroup(pc *ipv4.PacketConn) []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.Interface
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&ifi, s.group); err != nil {
			s.logger.Debug("join group failed", "iface", ifi.Name, "err", err)
			continue
		}
		out = append(out, ifi)
	}
	return out
}

// Close stops discovery. It is safe to call more than once.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.raw != nil {
			err = s.raw.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *Service) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		n, _, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Warn("mdns read failed", "err", err)
			return
		}
		s.handlePacket(buf[:n], from)
	}
}

func (s *Service) handlePacket(pkt []byte, from net.Addr) {
	var m dns.Msg
	if err := m.Unpack(pkt); err != nil {
		s.logger.Debug("ignoring malformed mdns packet", "from", from, "err", err)
		return
	}

	if isServiceQuery(&m, s.cfg.ServiceName) {
		s.respond()
		return
	}

	for id, addrs := range parseResponse(&m) {
		if id == s.self {
			continue
		}
		s.sighted(id, addrs, time.Now())
	}
}

func (s *Service) sighted(id peer.ID, addrs []ma.Multiaddr, at time.Time) {
	s.mu.Lock()
	fresh := s.tracker.observe(id, at)
	s.mu.Unlock()

	if fresh {
		s.logger.Debug("peer discovered", "peer", id, "addrs", len(addrs))
		s.emit(Event{Type: EventDiscovered, Peer: id, Addrs: addrs})
	}
}

func (s *Service) tickLoop() {
	defer s.wg.Done()

	s.query()

	t := time.NewTicker(s.cfg.QueryInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.expire(now)
			s.query()
		}
	}
}

func (s *Service) expire(now time.Time) {
	s.mu.Lock()
	gone := s.tracker.sweep(now)
	s.mu.Unlock()

	for _, id := range gone {
		s.logger.Debug("peer expired", "peer", id)
		s.emit(Event{Type: EventExpired, Peer: id})
	}
}

func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Service) query() {
	if err := s.send(buildQuery(s.cfg.ServiceName)); err != nil {
		s.logger.Warn("mdns query failed", "err", err)
	}
}

func (s *Service) respond() {
	ttl := uint32(s.cfg.TTL / time.Second)
	if err := s.send(buildResponse(s.cfg.ServiceName, s.instance, s.Addrs(), ttl)); err != nil {
		s.logger.Warn("mdns response failed", "err", err)
	}
}

// send writes m to the group once per joined interface.
func (s *Service) send(m *dns.Msg) error {
	pkt, err := m.Pack()
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if len(s.ifaces) == 0 {
		_, err := s.pc.WriteTo(pkt, nil, s.group)
		return err
	}

	var errs []error
	sent := 0
	for i := range s.ifaces {
		if err := s.pc.SetMulticastInterface(&s.ifaces[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.pc.WriteTo(pkt, nil, s.group); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		return nil
	}
	return errors.Join(errs...)
}
