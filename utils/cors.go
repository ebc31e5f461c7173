package utils

import (
	"net/netip"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	// Allowed lists exact origins ("https://app.example.com"); "*" admits any origin.
	Allowed []string
	// Private admits localhost, private and link-local IPs, .local hostnames and
	// single-label LAN names.
	Private bool
}

// Allows reports whether an Origin header value should be trusted.
func (p OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	normalized := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range p.Allowed {
		allowed = strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/"))
		if allowed == "*" || allowed == normalized {
			return true
		}
	}
	if !p.Private {
		return false
	}
	return isPrivateHost(parsed.Hostname())
}

func isPrivateHost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".local") {
		return true
	}
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
	}
	// Single-label names only resolve on the LAN.
	return !strings.Contains(hostname, ".")
}
