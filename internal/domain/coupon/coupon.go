package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFlat subtracts a fixed currency amount, independent of the cart value.
	DiscountFlat DiscountType = "FLAT"
	// DiscountPercent subtracts a percentage of the cart value, optionally capped.
	DiscountPercent DiscountType = "PERCENT"
)

// DateLayout is the calendar date format of coupon validity bounds.
const DateLayout = "2006-01-02"

var (
	// ErrCodeRequired is returned by a Catalog when a coupon has no code.
	ErrCodeRequired = errors.New("coupon code is required")
	// ErrDuplicateCode is returned by a Catalog when the code is already taken.
	ErrDuplicateCode = errors.New("coupon code already exists")

	// ErrInvalidRequest is the parent of all selection input errors.
	ErrInvalidRequest = errors.New("user and cart required")
	// ErrUserRequired is returned when a selection request has no user.
	ErrUserRequired = errors.Wrap(ErrInvalidRequest, "missing user")
	// ErrCartRequired is returned when a selection request has no cart or no item list.
	ErrCartRequired = errors.Wrap(ErrInvalidRequest, "missing cart items")
)

// Coupon is a named discount rule with a validity window and eligibility
// constraints. Coupons are immutable once stored in a Catalog.
type Coupon struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	// UsageLimitPerUser is stored and returned but not enforced.
	UsageLimitPerUser int
	Eligibility       Eligibility
}

// Validate checks the fields a Catalog requires before accepting a coupon.
func (c Coupon) Validate() error {
	if c.Code == "" {
		return ErrCodeRequired
	}
	return nil
}

// InWindow reports whether now lies within the inclusive validity window.
// An unset bound leaves that side of the window open.
func (c Coupon) InWindow(now time.Time) bool {
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return false
	}
	return true
}

// Clone returns a copy of c that shares no slices with it.
func (c Coupon) Clone() Coupon {
	e := &c.Eligibility
	e.AllowedUserTiers = cloneStrings(e.AllowedUserTiers)
	e.AllowedCountries = cloneStrings(e.AllowedCountries)
	e.ApplicableCategories = cloneStrings(e.ApplicableCategories)
	e.ExcludedCategories = cloneStrings(e.ExcludedCategories)
	if e.MinOrdersPlaced != nil {
		v := *e.MinOrdersPlaced
		e.MinOrdersPlaced = &v
	}
	if e.MinItemsCount != nil {
		v := *e.MinItemsCount
		e.MinItemsCount = &v
	}
	return c
}

// Eligibility is the set of constraints a (user, cart) pair must satisfy.
// Every rule is optional: empty lists, nil counts and invalid or non-positive
// amounts impose no constraint.
type Eligibility struct {
	AllowedUserTiers     []string
	MinLifetimeSpend     decimal.NullDecimal
	MinOrdersPlaced      *int
	FirstOrderOnly       bool
	AllowedCountries     []string
	MinCartValue         decimal.NullDecimal
	ApplicableCategories []string
	ExcludedCategories   []string
	MinItemsCount        *int
}

// User is the shopper profile a coupon is evaluated against.
type User struct {
	UserTier      string
	Country       string
	LifetimeSpend decimal.Decimal
	OrdersPlaced  int
}

// Item is a single cart line.
type Item struct {
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Cart is the snapshot of items a coupon is evaluated against.
type Cart struct {
	Items []Item
}

// Value returns the sum of unit price times quantity across all items.
func (c Cart) Value() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// ItemsCount returns the sum of quantities across all items.
func (c Cart) ItemsCount() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// Evaluated is an eligible coupon together with the discount it would grant.
type Evaluated struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Catalog stores coupons and hands out point-in-time snapshots of them.
type Catalog interface {
	// List returns all coupons in insertion order. The returned slice is
	// owned by the caller.
	List(ctx context.Context) ([]Coupon, error)
	// Create appends a coupon, returning ErrCodeRequired or ErrDuplicateCode
	// when it cannot be accepted.
	Create(ctx context.Context, c Coupon) error
}

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseDate parses a validity bound. Plain calendar dates are taken at UTC
// midnight, datetimes without an offset are taken as UTC and full RFC 3339
// timestamps are accepted as-is.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q: want %s", s, DateLayout)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
