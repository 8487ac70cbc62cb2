// Package memory implements coupon.Catalog in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

var _ coupon.Catalog = (*Catalog)(nil)

// Catalog is an in-memory coupon.Catalog. Coupons keep insertion order and
// are copied on the way in and out, so callers never share state with it.
type Catalog struct {
	mu      sync.RWMutex
	coupons []coupon.Coupon
	byCode  map[string]struct{}
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{byCode: make(map[string]struct{})}
}

// List returns a snapshot of all coupons in insertion order.
func (c *Catalog) List(_ context.Context) ([]coupon.Coupon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]coupon.Coupon, len(c.coupons))
	for i, cp := range c.coupons {
		out[i] = cp.Clone()
	}
	return out, nil
}

// Create appends cp. Codes are compared exactly, without trimming or case
// folding.
func (c *Catalog) Create(_ context.Context, cp coupon.Coupon) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byCode[cp.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	c.byCode[cp.Code] = struct{}{}
	c.coupons = append(c.coupons, cp.Clone())
	return nil
}

// Len returns the number of stored coupons.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.coupons)
}
