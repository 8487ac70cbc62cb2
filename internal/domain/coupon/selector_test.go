package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	coupons []Coupon
	err     error
	calls   int
}

func (m *mockCatalog) List(_ context.Context) ([]Coupon, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Coupon(nil), m.coupons...), nil
}

func (m *mockCatalog) Create(_ context.Context, c Coupon) error {
	m.coupons = append(m.coupons, c)
	return nil
}

// openCoupon is valid through November 2025 and has no eligibility rules.
func openCoupon(code string, typ DiscountType, value, endDate string) Coupon {
	return Coupon{
		Code:          code,
		DiscountType:  typ,
		DiscountValue: d(value),
		StartDate:     date("2025-11-01"),
		EndDate:       date(endDate),
	}
}

func TestSelectBest_Scenarios(t *testing.T) {
	user := newUser()

	t.Run("A: welcome coupon selected", func(t *testing.T) {
		got := SelectBest([]Coupon{welcome100()}, user, cartOf(item("electronics", "600", 1)), inWindow)
		require.NotNil(t, got)
		assert.Equal(t, "WELCOME100", got.Coupon.Code)
		assert.True(t, d("100").Equal(got.Discount), "got %s", got.Discount)
	})

	t.Run("B: excluded category yields no coupon", func(t *testing.T) {
		got := SelectBest([]Coupon{welcome100()}, user, cartOf(item("books", "600", 1)), inWindow)
		assert.Nil(t, got)
	})

	t.Run("C: cart below minimum yields no coupon", func(t *testing.T) {
		got := SelectBest([]Coupon{welcome100()}, user, cartOf(item("electronics", "400", 1)), inWindow)
		assert.Nil(t, got)
	})

	t.Run("D: higher percent discount beats flat", func(t *testing.T) {
		catalog := []Coupon{
			openCoupon("FLAT50", DiscountFlat, "50", "2025-11-30"),
			openCoupon("PCT10", DiscountPercent, "10", "2025-11-30"),
		}
		got := SelectBest(catalog, user, cartOf(item("electronics", "500", 2)), inWindow)
		require.NotNil(t, got)
		assert.Equal(t, "PCT10", got.Coupon.Code)
		assert.True(t, d("100").Equal(got.Discount), "got %s", got.Discount)
	})

	t.Run("E: equal discount prefers earlier expiry", func(t *testing.T) {
		catalog := []Coupon{
			openCoupon("LATER", DiscountFlat, "100", "2025-12-01"),
			openCoupon("SOONER", DiscountFlat, "100", "2025-11-25"),
		}
		got := SelectBest(catalog, user, cartOf(item("electronics", "600", 1)), inWindow)
		require.NotNil(t, got)
		assert.Equal(t, "SOONER", got.Coupon.Code)
	})
}

func TestSelectBest_CodeBreaksTiesRegardlessOfOrder(t *testing.T) {
	a := openCoupon("ALPHA", DiscountFlat, "20", "2025-11-30")
	b := openCoupon("BETA", DiscountFlat, "20", "2025-11-30")
	c := openCoupon("alpha", DiscountFlat, "20", "2025-11-30")
	cart := cartOf(item("toys", "100", 1))

	orders := [][]Coupon{
		{a, b, c},
		{c, b, a},
		{b, c, a},
	}
	for _, catalog := range orders {
		got := SelectBest(catalog, newUser(), cart, inWindow)
		require.NotNil(t, got)
		assert.Equal(t, "ALPHA", got.Coupon.Code)
	}
}

func TestSelectBest_Idempotent(t *testing.T) {
	catalog := []Coupon{
		welcome100(),
		openCoupon("PCT20", DiscountPercent, "20", "2025-11-28"),
		openCoupon("FLAT120", DiscountFlat, "120", "2025-11-29"),
	}
	cart := cartOf(item("electronics", "600", 1))

	first := SelectBest(catalog, newUser(), cart, inWindow)
	second := SelectBest(catalog, newUser(), cart, inWindow)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Coupon.Code, second.Coupon.Code)
	assert.True(t, first.Discount.Equal(second.Discount))
	// PCT20 and FLAT120 both grant 120; PCT20 expires first.
	assert.Equal(t, "PCT20", first.Coupon.Code)
}

func TestSelectBest_UnknownTypeCanStillWin(t *testing.T) {
	catalog := []Coupon{openCoupon("MYSTERY", DiscountType("BOGO"), "50", "2025-11-30")}

	got := SelectBest(catalog, newUser(), cartOf(item("toys", "10", 1)), inWindow)
	require.NotNil(t, got)
	assert.Equal(t, "MYSTERY", got.Coupon.Code)
	assert.True(t, got.Discount.IsZero())
}

func TestSelectBest_EmptyCatalog(t *testing.T) {
	assert.Nil(t, SelectBest(nil, newUser(), cartOf(item("toys", "10", 1)), inWindow))
}

func TestSelector_Best(t *testing.T) {
	catalog := &mockCatalog{coupons: []Coupon{
		welcome100(),
		openCoupon("PCT50", DiscountPercent, "50", "2025-11-30"),
	}}
	catalog.coupons[1].MaxDiscountAmount = d("250")

	s, err := NewSelector(catalog, WithClock(func() time.Time { return inWindow }))
	require.NoError(t, err)

	user := newUser()
	cart := cartOf(item("electronics", "600", 1))
	got, err := s.Best(context.Background(), Request{User: &user, Cart: &cart})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PCT50", got.Coupon.Code)
	assert.True(t, d("250").Equal(got.Discount), "got %s", got.Discount)
}

func TestSelector_Best_NoMatch(t *testing.T) {
	catalog := &mockCatalog{coupons: []Coupon{welcome100()}}
	s, err := NewSelector(catalog, WithClock(func() time.Time { return inWindow }))
	require.NoError(t, err)

	user := newUser()
	cart := cartOf(item("books", "600", 1))
	got, err := s.Best(context.Background(), Request{User: &user, Cart: &cart})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelector_Best_InvalidRequest(t *testing.T) {
	user := newUser()
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "missing user", req: Request{Cart: &Cart{Items: []Item{}}}, wantErr: ErrUserRequired},
		{name: "missing cart", req: Request{User: &user}, wantErr: ErrCartRequired},
		{name: "missing items", req: Request{User: &user, Cart: &Cart{}}, wantErr: ErrCartRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &mockCatalog{}
			s, err := NewSelector(catalog)
			require.NoError(t, err)

			got, err := s.Best(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, got)
			assert.Zero(t, catalog.calls, "catalog must not be read for invalid input")
		})
	}
}

func TestSelector_Best_EmptyItemsIsValid(t *testing.T) {
	catalog := &mockCatalog{coupons: []Coupon{openCoupon("FREE5", DiscountFlat, "5", "2025-11-30")}}
	s, err := NewSelector(catalog, WithClock(func() time.Time { return inWindow }))
	require.NoError(t, err)

	user := newUser()
	got, err := s.Best(context.Background(), Request{User: &user, Cart: &Cart{Items: []Item{}}})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "FREE5", got.Coupon.Code)
}

func TestSelector_Best_CatalogError(t *testing.T) {
	catalog := &mockCatalog{err: errors.New("connection refused")}
	s, err := NewSelector(catalog)
	require.NoError(t, err)

	user := newUser()
	_, err = s.Best(context.Background(), Request{User: &user, Cart: &Cart{Items: []Item{}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list catalog")
}

func TestCoupon_CloneDoesNotShareSlices(t *testing.T) {
	orig := welcome100()
	cp := orig.Clone()
	cp.Eligibility.AllowedUserTiers[0] = "CHANGED"
	*cp.Eligibility.MinItemsCount = 99

	assert.Equal(t, "NEW", orig.Eligibility.AllowedUserTiers[0])
	assert.Equal(t, 1, *orig.Eligibility.MinItemsCount)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-11-25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 25, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2025-11-25T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	got, err = ParseDate("2025-12-01T08:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 8, 30, 0, 0, time.UTC), got, "no offset reads as UTC")

	got, err = ParseDate("2025-12-01T08:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 6, 30, 0, 0, time.UTC), got.UTC())

	_, err = ParseDate("25/11/2025")
	require.Error(t, err)
}

func TestSelectBest_OpenEndedSortsAfterDated(t *testing.T) {
	now := time.Date(2025, 11, 24, 0, 0, 0, 0, time.UTC)
	open := Coupon{Code: "AAA", DiscountType: DiscountFlat, DiscountValue: d("50")}
	dated := Coupon{
		Code:          "ZZZ",
		DiscountType:  DiscountFlat,
		DiscountValue: d("50"),
		StartDate:     date("2025-11-01"),
		EndDate:       date("2025-12-31"),
	}

	for _, catalog := range [][]Coupon{{open, dated}, {dated, open}} {
		best := SelectBest(catalog, User{}, Cart{Items: []Item{}}, now)
		require.NotNil(t, best)
		assert.Equal(t, "ZZZ", best.Coupon.Code)
	}

	best := SelectBest([]Coupon{open}, User{}, Cart{Items: []Item{}}, now)
	require.NotNil(t, best, "coupon without dates never expires")
	assert.Equal(t, "AAA", best.Coupon.Code)
}
