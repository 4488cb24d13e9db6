// Package privacy masks client identifiers before they reach logs.
package privacy

import "net/netip"

// AnonymizeIP keeps only the network part of an address: the /24 of an IPv4
// address and the /48 of an IPv6 address. Empty input and "unknown" yield
// "unknown"; anything unparseable yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
