// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package webhooks

import (
	"context"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ValidateURL vets a receiver URL before any request is sent: scheme,
// optional domain allowlist, and DNS resolution to a globally
// routable address. Resolution failures are logged but do not block
// delivery; the HTTP attempt will surface them.
func (s *Service) ValidateURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return Error.New("invalid webhook url: %v", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if s.config.Production {
			return Error.New("webhook url must use https in production")
		}
	default:
		return Error.New("webhook url scheme %q is not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Error.New("webhook url has no host")
	}

	if len(s.config.AllowedDomains) > 0 && !domainAllowed(host, s.config.AllowedDomains) {
		return Error.New("webhook host %q is not in the allowed domains", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !globalIP(ip) {
			return Error.New("webhook host %q resolves to a non-global address", host)
		}
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, s.config.DNSTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(resolveCtx, host)
	if err != nil {
		// Unresolvable now may be resolvable at send time.
		s.log.Warn("webhook host did not resolve", zap.String("host", host), zap.Error(err))
		return nil
	}
	for _, addr := range addrs {
		if !globalIP(addr.IP) {
			return Error.New("webhook host %q resolves to a non-global address", host)
		}
	}
	return nil
}

func domainAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func globalIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified())
}
