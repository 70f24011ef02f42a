package id

import "github.com/coralbase/twopc/hlc"

// Generator provides unique, roughly time-ordered 64-bit identifiers.
// Used by txnapi to mint a synthetic backend id for each HTTP request.
type Generator interface {
	NextID() uint64
}

// HLCGenerator generates unique IDs using the Hybrid Logical Clock.
// Thread-safe via HLC's internal mutex.
type HLCGenerator struct {
	clock *hlc.Clock
}

// NewHLCGenerator creates a new ID generator backed by the given HLC.
func NewHLCGenerator(clock *hlc.Clock) *HLCGenerator {
	return &HLCGenerator{clock: clock}
}

// NextID generates a unique 64-bit ID.
// Format: (physical_ms << 22) | (node_id << 16) | logical
// See hlc.Timestamp.ToTxnID for bit allocation details.
func (g *HLCGenerator) NextID() uint64 {
	return g.clock.Now().ToTxnID()
}
