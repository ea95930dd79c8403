// Package netutil holds the small pieces of address handling the listener
// needs: a CIDR filter for accepted connections and interface address
// lookup for the --interface flag.
package netutil

import (
	"fmt"
	"net"
	"net/netip"
)

// CIDRFilter accepts remote addresses inside one IP block. The zero
// filter, or one parsed from an empty string, accepts everything.
type CIDRFilter struct {
	prefix netip.Prefix
}

// ParseCIDRFilter parses a block like "10.0.0.0/8". An empty string means
// no filtering.
func ParseCIDRFilter(block string) (CIDRFilter, error) {
	if block == "" {
		return CIDRFilter{}, nil
	}
	prefix, err := netip.ParsePrefix(block)
	if err != nil {
		return CIDRFilter{}, fmt.Errorf("parse ip block %q: %w", block, err)
	}
	return CIDRFilter{prefix: prefix.Masked()}, nil
}

// Allows reports whether the remote address is inside the block. Addresses
// that do not parse are rejected when a block is configured.
func (f CIDRFilter) Allows(addr net.Addr) bool {
	if !f.prefix.IsValid() {
		return true
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	// 4-in-6 addresses compare as their IPv4 form.
	return f.prefix.Contains(ap.Addr().Unmap())
}

// String returns the configured block, or "" for the accept-all filter.
func (f CIDRFilter) String() string {
	if !f.prefix.IsValid() {
		return ""
	}
	return f.prefix.String()
}

// InterfaceAddr returns the first IPv4 address of the named interface,
// for binding the listener via --interface instead of an explicit IP.
func InterfaceAddr(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("interface %q: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("interface %q addresses: %w", name, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("interface %q has no IPv4 address", name)
}
