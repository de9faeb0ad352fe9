package core

import "sync/atomic"

// TurnCounter mints the monotonically increasing turn tokens that tag every
// generated reply. Only the user context aggregator mints; every stage
// downstream compares against Current to discard output that belongs to a
// superseded turn.
type TurnCounter struct {
	v atomic.Uint64
}

// Mint advances to the next turn and returns its token.
func (c *TurnCounter) Mint() uint64 {
	return c.v.Add(1)
}

// Current returns the most recently minted token. Zero means no turn has
// started yet.
func (c *TurnCounter) Current() uint64 {
	return c.v.Load()
}

// IsStale reports whether token no longer identifies the live turn.
func (c *TurnCounter) IsStale(token uint64) bool {
	return token != c.v.Load()
}
