// Package authz provides capability-based authorization for apiguard.
//
// A client's grants are stored as a compact bitmask rather than looked up
// by attribute name, so the permission gate is a pure function of client
// state with no reflection involved.
package authz

import (
	"fmt"
	"strings"
)

// Capability is a bitmask of operations a client is allowed to perform.
type Capability uint32

// Individual capabilities.
const (
	CapReadPosts Capability = 1 << iota
	CapWritePosts
	CapDeletePosts
	CapManageCategories
)

// CapAll grants every capability.
const CapAll = CapReadPosts | CapWritePosts | CapDeletePosts | CapManageCategories

// capabilityNames maps individual capability bits to their wire names.
var capabilityNames = map[Capability]string{
	CapReadPosts:        "read_posts",
	CapWritePosts:       "write_posts",
	CapDeletePosts:      "delete_posts",
	CapManageCategories: "manage_categories",
}

// Has reports whether c includes all bits of required.
func (c Capability) Has(required Capability) bool {
	return c&required == required
}

// Names returns the wire names of the individual capabilities in c.
func (c Capability) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, bit := range []Capability{CapReadPosts, CapWritePosts, CapDeletePosts, CapManageCategories} {
		if c.Has(bit) {
			names = append(names, capabilityNames[bit])
		}
	}
	return names
}

// String returns a comma-separated list of capability names.
func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ",")
}

// Parse converts a list of wire names into a capability bitmask.
func Parse(names []string) (Capability, error) {
	var c Capability
	for _, name := range names {
		found := false
		for bit, n := range capabilityNames {
			if n == name {
				c |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability: %s", name)
		}
	}
	return c, nil
}
