package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the address of the caller. Forwarding headers are only
// honoured when the direct peer is a trusted proxy.
type ClientIP struct {
	trustedProxies []*net.IPNet
}

// NewClientIP trusts loopback and private networks plus any extra CIDRs.
func NewClientIP(extra ...string) (*ClientIP, error) {
	c := &ClientIP{}
	for _, cidr := range append([]string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}, extra...) {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %s: %w", cidr, err)
		}
		c.trustedProxies = append(c.trustedProxies, network)
	}
	return c, nil
}

// Extract returns the client IP for r.
func (c *ClientIP) Extract(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !c.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (c *ClientIP) isTrustedProxy(ip net.IP) bool {
	for _, network := range c.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
