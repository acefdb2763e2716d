package discovery

import (
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
)

const dnsaddrPrefix = "dnsaddr="

func buildQuery(service string) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(service, dns.TypePTR)
	m.Id = 0
	m.RecursionDesired = false
	return m
}

func isServiceQuery(m *dns.Msg, service string) bool {
	if m.Response {
		return false
	}
	for _, q := range m.Question {
		if q.Qtype == dns.TypePTR && strings.EqualFold(q.Name, service) {
			return true
		}
	}
	return false
}

func buildResponse(service, instance string, addrs []ma.Multiaddr, ttl uint32) *dns.Msg {
	m := new(dns.Msg)
	m.Response = true
	m.Authoritative = true

	target := instance + "." + service
	m.Answer = []dns.RR{&dns.PTR{
		Hdr: dns.RR_Header{Name: service, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: target,
	}}
	for _, a := range addrs {
		m.Extra = append(m.Extra, &dns.TXT{
			Hdr: dns.RR_Header{Name: target, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: ttl},
			Txt: []string{dnsaddrPrefix + a.String()},
		})
	}
	return m
}

// parseResponse groups the dnsaddr TXT entries of m by peer id.
// Malformed entries are skipped.
func parseResponse(m *dns.Msg) map[peer.ID][]ma.Multiaddr {
	out := make(map[peer.ID][]ma.Multiaddr)
	if !m.Response {
		return out
	}
	records := make([]dns.RR, 0, len(m.Answer)+len(m.Extra))
	records = append(records, m.Answer...)
	records = append(records, m.Extra...)

	for _, rr := range records {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, s := range txt.Txt {
			if !strings.HasPrefix(s, dnsaddrPrefix) {
				continue
			}
			addr, err := ma.NewMultiaddr(strings.TrimPrefix(s, dnsaddrPrefix))
			if err != nil {
				continue
			}
			id, _, err := SplitPeerAddr(addr)
			if err != nil {
				continue
			}
			out[id] = append(out[id], addr)
		}
	}
	return out
}
