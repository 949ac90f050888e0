package rdmnet

import (
	"sort"
	"sync"
	"time"
)

// Provenance records why a capability entry holds its current value.
type Provenance string

const (
	ProvenanceLocalAdvertisement  Provenance = "local_advertisement"
	ProvenanceRemoteAdvertisement Provenance = "remote_advertisement"
	ProvenanceBrokerNegotiation   Provenance = "broker_negotiation"
)

// Capability is one endpoint's negotiated or advertised role and
// profile set.
type Capability struct {
	EndpointID uint16
	Role       Role
	Profiles   []uint16
	Provenance Provenance
	UpdatedAt  time.Time
}

func (c Capability) equalExceptEndpoint(o Capability) bool {
	if c.Role != o.Role || c.Provenance != o.Provenance {
		return false
	}
	if len(c.Profiles) != len(o.Profiles) {
		return false
	}
	for i := range c.Profiles {
		if c.Profiles[i] != o.Profiles[i] {
			return false
		}
	}
	return true
}

// normalizeProfiles sorts and dedupes a profile list.
func normalizeProfiles(profiles []uint16) []uint16 {
	cp := append([]uint16(nil), profiles...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	out := cp[:0]
	for i, p := range cp {
		if i == 0 || p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// CapabilityCache tracks the negotiated/advertised capability of every
// known endpoint and notifies listeners when an update changes role,
// provenance, or profile list.
type CapabilityCache struct {
	mu      sync.Mutex
	entries map[uint16]Capability
	Updated eventEmitter[Capability]
}

func newCapabilityCache() *CapabilityCache {
	return &CapabilityCache{entries: make(map[uint16]Capability)}
}

// Set inserts or updates the capability for endpointID, firing Updated
// iff the effective value actually changed.
func (c *CapabilityCache) Set(endpointID uint16, role Role, profiles []uint16, provenance Provenance) {
	next := Capability{
		EndpointID: endpointID,
		Role:       role,
		Profiles:   normalizeProfiles(profiles),
		Provenance: provenance,
		UpdatedAt:  time.Now(),
	}

	c.mu.Lock()
	prev, existed := c.entries[endpointID]
	c.entries[endpointID] = next
	c.mu.Unlock()

	if !existed || !prev.equalExceptEndpoint(next) {
		c.Updated.Emit(next)
	}
}

// Get returns the current capability for endpointID, if any.
func (c *CapabilityCache) Get(endpointID uint16) (Capability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[endpointID]
	return entry, ok
}

// Clear empties the cache, used on broker session teardown.
func (c *CapabilityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint16]Capability)
}
