package utils

import (
	"fmt"
	"net"
	"strings"
)

// ParseCIDRs parses a list of CIDR blocks. A bare address is taken as a
// single-host block.
func ParseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", cidr)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, netblock, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		nets = append(nets, netblock)
	}
	return nets, nil
}

// IsAllowedIP checks if the address belongs to one of the allowed networks.
// ip may carry a port, as in http.Request.RemoteAddr.
func IsAllowedIP(ip string, allowed []*net.IPNet) bool {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, netblock := range allowed {
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}
