package coupon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// cartTotals holds the cart aggregates shared by every coupon evaluated
// against the same cart.
type cartTotals struct {
	value decimal.Decimal
	count int
}

func totalsOf(cart Cart) cartTotals {
	return cartTotals{value: cart.Value(), count: cart.ItemsCount()}
}

// IsEligible reports whether coupon c applies to user and cart at time now.
func IsEligible(c Coupon, user User, cart Cart, now time.Time) bool {
	return isEligible(c, user, cart, totalsOf(cart), now)
}

func isEligible(c Coupon, user User, cart Cart, totals cartTotals, now time.Time) bool {
	if !c.InWindow(now) {
		return false
	}

	e := c.Eligibility
	if len(e.AllowedUserTiers) > 0 && !containsTrimmed(e.AllowedUserTiers, user.UserTier) {
		return false
	}
	if threshold, ok := positiveDecimal(e.MinLifetimeSpend); ok && user.LifetimeSpend.LessThan(threshold) {
		return false
	}
	if threshold, ok := positiveInt(e.MinOrdersPlaced); ok && user.OrdersPlaced < threshold {
		return false
	}
	if e.FirstOrderOnly && user.OrdersPlaced > 0 {
		return false
	}
	if len(e.AllowedCountries) > 0 && !containsTrimmed(e.AllowedCountries, user.Country) {
		return false
	}

	if threshold, ok := positiveDecimal(e.MinCartValue); ok && totals.value.LessThan(threshold) {
		return false
	}
	if threshold, ok := positiveInt(e.MinItemsCount); ok && totals.count < threshold {
		return false
	}
	if len(e.ApplicableCategories) > 0 && !anyItemIn(cart.Items, e.ApplicableCategories) {
		return false
	}
	if len(e.ExcludedCategories) > 0 && anyItemIn(cart.Items, e.ExcludedCategories) {
		return false
	}

	return true
}

// positiveDecimal returns the rule threshold when it is set and greater than
// zero. Zero and negative thresholds are treated as absent.
func positiveDecimal(v decimal.NullDecimal) (decimal.Decimal, bool) {
	if !v.Valid || !v.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	return v.Decimal, true
}

// positiveInt is the integer counterpart of positiveDecimal.
func positiveInt(v *int) (int, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return *v, true
}

// containsTrimmed reports whether any entry of set equals want after trimming
// the entry. Matching is case-sensitive and want itself is not trimmed.
func containsTrimmed(set []string, want string) bool {
	for _, s := range set {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}

// anyItemIn reports whether at least one item's category matches an entry of
// categories, with both sides trimmed.
func anyItemIn(items []Item, categories []string) bool {
	for _, it := range items {
		if containsTrimmed(categories, strings.TrimSpace(it.Category)) {
			return true
		}
	}
	return false
}
