package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const unknownIP = "unknown"

// clientIP takes the first X-Forwarded-For entry, then X-Real-IP. Private
// and loopback addresses are kept; the geo resolver short-circuits them.
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := normalizeIP(first); ip != "" {
			return ip
		}
	}

	if ip := normalizeIP(c.Get("X-Real-IP")); ip != "" {
		return ip
	}

	return unknownIP
}

// normalizeIP strips quotes, ports, brackets and zones and returns the
// canonical address, or "" when raw is not an IP.
func normalizeIP(raw string) string {
	clean := strings.Trim(strings.TrimSpace(raw), "\"")
	if clean == "" {
		return ""
	}

	// Remove zone identifier if present (e.g. fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().Unmap().String()
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return addr.Unmap().String()
	}

	if host, _, err := net.SplitHostPort(clean); err == nil && host != clean {
		return normalizeIP(host)
	}

	return ""
}
