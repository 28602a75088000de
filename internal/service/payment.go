package service

import (
	"context"
	"fmt"
	"sync"
)

// PaymentGateway charges customers for bookings.
type PaymentGateway interface {
	// Charge collects amount once per key. Repeating a key that was already
	// approved for the same amount returns true without charging again.
	// Repeating it with a different amount is rejected.
	Charge(ctx context.Context, key string, amount float64) (bool, error)
	// Refund returns whatever was collected under key. Refunding an unknown
	// key is a no-op.
	Refund(ctx context.Context, key string) error
}

// chargeKey identifies one payment attempt for a booking at a version. An
// edit bumps the version, so a repriced booking never reuses an old key.
func chargeKey(bookingID string, version int64) string {
	return fmt.Sprintf("booking:%s:v%d", bookingID, version)
}

// SimulatedGateway approves every charge and remembers approved keys.
type SimulatedGateway struct {
	mu       sync.Mutex
	charged  map[string]float64
	refunded map[string]float64
}

// NewSimulatedGateway creates a new SimulatedGateway.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		charged:  make(map[string]float64),
		refunded: make(map[string]float64),
	}
}

// Charge simulates a payment charge. Always succeeds for a new key.
func (g *SimulatedGateway) Charge(ctx context.Context, key string, amount float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" || !validAmount(amount) {
		return false, invalidf("charge needs a key and a non-negative amount")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.charged[key]; ok {
		if RoundFee(prev) != RoundFee(amount) {
			return false, invalidf("charge key %s already used for %.2f", key, RoundFee(prev))
		}
		return true, nil
	}
	g.charged[key] = amount
	return true, nil
}

// Refund simulates returning a charge.
func (g *SimulatedGateway) Refund(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if amount, ok := g.charged[key]; ok {
		g.refunded[key] += amount
		delete(g.charged, key)
	}
	return nil
}

// Charged returns the amount collected under key.
func (g *SimulatedGateway) Charged(key string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.charged[key]
	return amount, ok
}

// Refunded returns the amount returned under key.
func (g *SimulatedGateway) Refunded(key string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[key]
}

var _ PaymentGateway = (*SimulatedGateway)(nil)
