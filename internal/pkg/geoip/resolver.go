// Package geoip resolves client IP addresses to a coarse location.
//
// Resolution is best-effort: every Resolver returns an empty Location on
// failure and never returns an error, so callers can enrich events without
// branching on lookup problems.
package geoip

import (
	"context"
	"net/netip"
	"strings"
)

// LocalName is used for every geo field of loopback and private addresses.
const LocalName = "Local"

// Location is the geo enrichment of one IP address. Either all fields are
// set or the Location is empty.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"regionName,omitempty"`
	City    string `json:"city,omitempty"`
}

// LocalLocation is returned for addresses that never leave the local network.
var LocalLocation = Location{Country: LocalName, Region: LocalName, City: LocalName}

// IsEmpty reports whether the lookup produced nothing.
func (l Location) IsEmpty() bool {
	return l.Country == ""
}

// IsLocal reports whether l is the local short-circuit result.
func (l Location) IsLocal() bool {
	return l == LocalLocation
}

// Resolver turns an IP address into a Location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) Location
}

// Noop never resolves anything. Used when geo enrichment is disabled.
type Noop struct{}

// Resolve implements Resolver.
func (Noop) Resolve(context.Context, string) Location {
	return Location{}
}

// IsLocalAddress reports whether ip is loopback, private, link-local or the
// "unknown" placeholder used when no client address could be determined.
func IsLocalAddress(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.EqualFold(ip, "unknown") || strings.EqualFold(ip, "localhost") {
		return true
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

// lookupAddr classifies ip before any lookup happens. It returns the
// short-circuit Location and false when no lookup should be made.
func lookupAddr(ip string) (netip.Addr, Location, bool) {
	if IsLocalAddress(ip) {
		return netip.Addr{}, LocalLocation, false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, Location{}, false
	}
	return addr.Unmap(), Location{}, true
}
