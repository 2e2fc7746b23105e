package auth

import "net"

// IPAllowed reports whether ip is covered by the allowlist. Entries may
// be plain addresses or CIDR ranges. An empty allowlist allows any
// source. Unparseable entries are skipped rather than failing open.
func IPAllowed(allowlist []string, ip string) bool {
	if len(allowlist) == 0 {
		return true
	}

	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	for _, entry := range allowlist {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			if network.Contains(addr) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(addr) {
			return true
		}
	}

	return false
}
