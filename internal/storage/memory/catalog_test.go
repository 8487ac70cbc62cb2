package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

func flat(code string) coupon.Coupon {
	return coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountFlat,
		DiscountValue: decimal.NewFromInt(10),
		Eligibility:   coupon.Eligibility{AllowedCountries: []string{"IN"}},
	}
}

func TestCatalog_CreateAndList(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	require.NoError(t, c.Create(ctx, flat("B")))
	require.NoError(t, c.Create(ctx, flat("A")))
	require.NoError(t, c.Create(ctx, flat("a")))

	got, err := c.List(ctx)
	require.NoError(t, err)
	codes := make([]string, 0, len(got))
	for _, cp := range got {
		codes = append(codes, cp.Code)
	}
	assert.Equal(t, []string{"B", "A", "a"}, codes, "insertion order, case-sensitive codes")
	assert.Equal(t, 3, c.Len())
}

func TestCatalog_CreateErrors(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	require.NoError(t, c.Create(ctx, flat("WELCOME100")))

	tests := []struct {
		name    string
		coupon  coupon.Coupon
		wantErr error
	}{
		{name: "missing code", coupon: flat(""), wantErr: coupon.ErrCodeRequired},
		{name: "duplicate code", coupon: flat("WELCOME100"), wantErr: coupon.ErrDuplicateCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, c.Create(ctx, tt.coupon), tt.wantErr)
			assert.Equal(t, 1, c.Len(), "rejected coupon must not be stored")
		})
	}
}

func TestCatalog_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	in := flat("ISO")
	require.NoError(t, c.Create(ctx, in))
	in.Eligibility.AllowedCountries[0] = "US"

	snap, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "IN", snap[0].Eligibility.AllowedCountries[0])

	snap[0].Eligibility.AllowedCountries[0] = "DE"
	again, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IN", again[0].Eligibility.AllowedCountries[0])
}

func TestCatalog_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every worker races on SHARED and adds one unique code.
			if c.Create(ctx, flat("SHARED")) == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
			assert.NoError(t, c.Create(ctx, flat(fmt.Sprintf("UNIQUE-%d", i))))
			_, err := c.List(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers+1, c.Len())
}
