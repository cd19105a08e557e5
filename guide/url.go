package guide

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBlockedURL is returned for guide URLs that could reach internal hosts.
var ErrBlockedURL = errors.New("guide URL not allowed")

var reservedNets = mustCIDRs(
	"100.64.0.0/10", // carrier-grade NAT
	"fc00::/7",      // IPv6 unique local
	"fe80::/10",     // IPv6 link-local
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("invalid CIDR " + c + ": " + err.Error())
		}
		out = append(out, n)
	}
	return out
}

// ValidateURL accepts only HTTPS URLs whose host is not local or private.
// Hostnames are checked again after DNS resolution by the fetcher's dialer.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: only https is allowed", ErrBlockedURL)
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "":
		return fmt.Errorf("%w: missing host", ErrBlockedURL)
	case host == "localhost", strings.HasSuffix(host, ".localhost"):
		return fmt.Errorf("%w: localhost", ErrBlockedURL)
	case strings.HasSuffix(host, ".local"), strings.HasSuffix(host, ".internal"):
		return fmt.Errorf("%w: local domain %s", ErrBlockedURL, host)
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return fmt.Errorf("%w: private address %s", ErrBlockedURL, ip)
	}
	return nil
}

// IsPrivateIP reports whether ip is loopback, private, link-local or in a
// reserved range. IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
