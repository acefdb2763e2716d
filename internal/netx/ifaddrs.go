package netx

import (
	"net"
	"strconv"
)

// DialableAddrs expands a listen address into the addresses other hosts
// can dial. An unspecified host (0.0.0.0 or empty) becomes one entry per
// up IPv4 interface address, loopback included.
func DialableAddrs(listen Addr) ([]Addr, error) {
	host, port, err := net.SplitHostPort(string(listen))
	if err != nil {
		return nil, err
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); host != "" && ip != nil && !ip.IsUnspecified() {
		return []Addr{listen}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Addr, 0, 4)
	for _, it := range ifaces {
		if it.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := it.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, Addr(net.JoinHostPort(ip4.String(), port)))
		}
	}
	if len(out) == 0 {
		out = append(out, Addr(net.JoinHostPort("127.0.0.1", port)))
	}
	return out, nil
}
