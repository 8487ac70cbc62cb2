// Package codec maps coupon domain types to and from their JSON wire shape.
//
// Field names follow the camelCase shape clients already send
// (discountType, maxDiscountAmount, eligibility.allowedUserTiers, ...).
// Unknown fields are skipped and JSON null is accepted for every optional
// field.
package codec

import (
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// DecodeCoupon decodes a single coupon object.
func DecodeCoupon(d *jx.Decoder) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			c.Code, err = decodeString(d)
		case "description":
			c.Description, err = decodeString(d)
		case "discountType":
			var s string
			s, err = decodeString(d)
			c.DiscountType = coupon.DiscountType(s)
		case "discountValue":
			c.DiscountValue, err = decodeAmount(d)
		case "maxDiscountAmount":
			c.MaxDiscountAmount, err = decodeAmount(d)
		case "startDate":
			c.StartDate, err = decodeDate(d)
		case "endDate":
			c.EndDate, err = decodeDate(d)
		case "usageLimitPerUser":
			var n *int
			n, err = decodeOptInt(d)
			if n != nil {
				c.UsageLimitPerUser = *n
			}
		case "eligibility":
			c.Eligibility, err = decodeEligibility(d)
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
	if err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

// DecodeCoupons decodes a JSON array of coupons.
func DecodeCoupons(data []byte) ([]coupon.Coupon, error) {
	d := jx.DecodeBytes(data)
	coupons := []coupon.Coupon{}
	if err := d.Arr(func(d *jx.Decoder) error {
		c, err := DecodeCoupon(d)
		if err != nil {
			return errors.Wrapf(err, "coupon %d", len(coupons))
		}
		coupons = append(coupons, c)
		return nil
	}); err != nil {
		return nil, err
	}
	return coupons, nil
}

// DecodeBestRequest decodes a {"user": {...}, "cart": {"items": [...]}}
// body. A missing or null user, cart or item list is left nil so that the
// selector can reject it.
func DecodeBestRequest(data []byte) (coupon.Request, error) {
	var req coupon.Request
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "user":
			if d.Next() == jx.Null {
				return d.Null()
			}
			u, err := decodeUser(d)
			if err != nil {
				return errors.Wrap(err, "user")
			}
			req.User = &u
		case "cart":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c, err := decodeCart(d)
			if err != nil {
				return errors.Wrap(err, "cart")
			}
			req.Cart = &c
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return coupon.Request{}, err
	}
	return req, nil
}

func decodeEligibility(d *jx.Decoder) (coupon.Eligibility, error) {
	var e coupon.Eligibility
	if d.Next() == jx.Null {
		return e, d.Null()
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "allowedUserTiers":
			e.AllowedUserTiers, err = decodeStrings(d)
		case "minLifetimeSpend":
			e.MinLifetimeSpend, err = decodeOptAmount(d)
		case "minOrdersPlaced":
			e.MinOrdersPlaced, err = decodeOptInt(d)
		case "firstOrderOnly":
			e.FirstOrderOnly, err = decodeBool(d)
		case "allowedCountries":
			e.AllowedCountries, err = decodeStrings(d)
		case "minCartValue":
			e.MinCartValue, err = decodeOptAmount(d)
		case "applicableCategories":
			e.ApplicableCategories, err = decodeStrings(d)
		case "excludedCategories":
			e.ExcludedCategories, err = decodeStrings(d)
		case "minItemsCount":
			e.MinItemsCount, err = decodeOptInt(d)
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
	return e, err
}

func decodeUser(d *jx.Decoder) (coupon.User, error) {
	var u coupon.User
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "userTier":
			u.UserTier, err = decodeString(d)
		case "country":
			u.Country, err = decodeString(d)
		case "lifetimeSpend":
			u.LifetimeSpend, err = decodeAmount(d)
		case "ordersPlaced":
			var n *int
			n, err = decodeOptInt(d)
			if n != nil {
				u.OrdersPlaced = *n
			}
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
	return u, err
}

func decodeCart(d *jx.Decoder) (coupon.Cart, error) {
	var c coupon.Cart
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "items" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		items := []coupon.Item{}
		if err := d.Arr(func(d *jx.Decoder) error {
			it, err := decodeItem(d)
			if err != nil {
				return errors.Wrapf(err, "item %d", len(items))
			}
			items = append(items, it)
			return nil
		}); err != nil {
			return errors.Wrap(err, "items")
		}
		c.Items = items
		return nil
	})
	return c, err
}

func decodeItem(d *jx.Decoder) (coupon.Item, error) {
	var it coupon.Item
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "category":
			it.Category, err = decodeString(d)
		case "unitPrice":
			it.UnitPrice, err = decodeAmount(d)
		case "quantity":
			var n *int
			n, err = decodeOptInt(d)
			if n != nil {
				it.Quantity = *n
			}
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
	return it, err
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeBool(d *jx.Decoder) (bool, error) {
	if d.Next() == jx.Null {
		return false, d.Null()
	}
	return d.Bool()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

var (
	minInt = decimal.NewFromInt(math.MinInt)
	maxInt = decimal.NewFromInt(math.MaxInt)
)

// decodeOptInt decodes a count. Integral values written with a fraction or
// exponent (1.0, 1e2) are accepted; anything that does not fit an int is
// rejected rather than truncated.
func decodeOptInt(d *jx.Decoder) (*int, error) {
	v, err := decodeOptAmount(d)
	if err != nil || !v.Valid {
		return nil, err
	}
	if !v.Decimal.IsInteger() {
		return nil, errors.Errorf("want integer, got %s", v.Decimal)
	}
	if v.Decimal.LessThan(minInt) || v.Decimal.GreaterThan(maxInt) {
		return nil, errors.Errorf("integer %s out of range", v.Decimal)
	}
	n := int(v.Decimal.IntPart())
	return &n, nil
}

// decodeOptAmount decodes a monetary value given as a JSON number or a
// numeric string. Null yields an invalid (absent) value.
func decodeOptAmount(d *jx.Decoder) (decimal.NullDecimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, errors.Wrapf(err, "parse amount %q", s)
		}
		return decimal.NewNullDecimal(v), nil
	default:
		raw, err := d.Raw()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		v, err := decimal.NewFromString(raw.String())
		if err != nil {
			return decimal.NullDecimal{}, errors.Wrapf(err, "parse amount %s", raw)
		}
		return decimal.NewNullDecimal(v), nil
	}
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	v, err := decodeOptAmount(d)
	if err != nil || !v.Valid {
		return decimal.Zero, err
	}
	return v.Decimal, nil
}

// decodeDate decodes a validity bound. Null and "" leave the zero time.
func decodeDate(d *jx.Decoder) (time.Time, error) {
	s, err := decodeString(d)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	return coupon.ParseDate(s)
}

func fieldErr(err error, key []byte) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "field %q", key)
}
