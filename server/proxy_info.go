package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ProxyInformation is the original client/server address pair of a
// connection relayed by a proxy. It is descriptive only.
type ProxyInformation struct {
	source      *net.TCPAddr
	destination *net.TCPAddr
}

// NewProxyInformation copies the given addresses.
func NewProxyInformation(source, destination *net.TCPAddr) *ProxyInformation {
	return &ProxyInformation{
		source:      cloneTCPAddr(source),
		destination: cloneTCPAddr(destination),
	}
}

func cloneTCPAddr(a *net.TCPAddr) *net.TCPAddr {
	if a == nil {
		return nil
	}
	return &net.TCPAddr{IP: append(net.IP(nil), a.IP...), Port: a.Port, Zone: a.Zone}
}

func (p *ProxyInformation) Source() *net.TCPAddr      { return cloneTCPAddr(p.source) }
func (p *ProxyInformation) Destination() *net.TCPAddr { return cloneTCPAddr(p.destination) }

// ParseProxyV1Header parses a PROXY protocol v1 line (without its CRLF), e.g.
// "PROXY TCP4 192.0.2.1 198.51.100.1 56324 25". An UNKNOWN header yields nil
// information and no error.
func ParseProxyV1Header(line string) (*ProxyInformation, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, " ")
	if len(parts) < 2 || parts[0] != "PROXY" {
		return nil, fmt.Errorf("%w: expected PROXY signature", ErrInvalidProxyHeader)
	}

	if parts[1] == "UNKNOWN" {
		return nil, nil
	}
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: expected 6 parts, got %d", ErrInvalidProxyHeader, len(parts))
	}

	var family string
	switch parts[1] {
	case "TCP4":
		family = "tcp4"
	case "TCP6":
		family = "tcp6"
	default:
		return nil, fmt.Errorf("%w: unsupported protocol %s", ErrInvalidProxyHeader, parts[1])
	}

	src, err := parseProxyAddr(family, parts[2], parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: source: %v", ErrInvalidProxyHeader, err)
	}
	dst, err := parseProxyAddr(family, parts[3], parts[5])
	if err != nil {
		return nil, fmt.Errorf("%w: destination: %v", ErrInvalidProxyHeader, err)
	}
	return &ProxyInformation{source: src, destination: dst}, nil
}

func parseProxyAddr(family, host, port string) (*net.TCPAddr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", host)
	}
	if (family == "tcp4") != (ip.To4() != nil) {
		return nil, fmt.Errorf("address %q does not match %s", host, family)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return nil, fmt.Errorf("invalid port %q", port)
	}
	return &net.TCPAddr{IP: ip, Port: p}, nil
}

// ParseTrustedNetworks parses CIDR blocks; plain addresses are treated as
// single-host networks.
func ParseTrustedNetworks(cidrs []string) ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted network '%s': not a valid IP address or CIDR", cidr)
			}
			if ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted network '%s': %w", cidr, err)
		}
		networks = append(networks, network)
	}
	return networks, nil
}

// IsTrustedAddr reports whether addr falls inside one of networks.
func IsTrustedAddr(addr net.Addr, networks []*net.IPNet) bool {
	if addr == nil {
		return false
	}
	var ip net.IP
	if tcp, ok := addr.(*net.TCPAddr); ok {
		ip = tcp.IP
	} else {
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return false
		}
		ip = net.ParseIP(host)
	}
	if ip == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
