package codec

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// EncodeCoupon writes c as a JSON object.
func EncodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	encodeCouponFields(e, c)
	e.ObjEnd()
}

// EncodeEvaluated writes the coupon of ev with an extra "discount" field, or
// null when ev is nil.
func EncodeEvaluated(e *jx.Encoder, ev *coupon.Evaluated) {
	if ev == nil {
		e.Null()
		return
	}
	e.ObjStart()
	encodeCouponFields(e, ev.Coupon)
	e.FieldStart("discount")
	encodeAmount(e, ev.Discount)
	e.ObjEnd()
}

// EncodeCoupons writes coupons as a JSON array.
func EncodeCoupons(e *jx.Encoder, coupons []coupon.Coupon) {
	e.ArrStart()
	for _, c := range coupons {
		EncodeCoupon(e, c)
	}
	e.ArrEnd()
}

func encodeCouponFields(e *jx.Encoder, c coupon.Coupon) {
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	encodeAmount(e, c.DiscountValue)
	e.FieldStart("maxDiscountAmount")
	encodeAmount(e, c.MaxDiscountAmount)
	e.FieldStart("startDate")
	encodeDate(e, c.StartDate)
	e.FieldStart("endDate")
	encodeDate(e, c.EndDate)
	e.FieldStart("usageLimitPerUser")
	e.Int(c.UsageLimitPerUser)
	e.FieldStart("eligibility")
	encodeEligibility(e, c.Eligibility)
}

func encodeEligibility(e *jx.Encoder, el coupon.Eligibility) {
	e.ObjStart()
	if el.AllowedUserTiers != nil {
		e.FieldStart("allowedUserTiers")
		encodeStrings(e, el.AllowedUserTiers)
	}
	if el.MinLifetimeSpend.Valid {
		e.FieldStart("minLifetimeSpend")
		encodeAmount(e, el.MinLifetimeSpend.Decimal)
	}
	if el.MinOrdersPlaced != nil {
		e.FieldStart("minOrdersPlaced")
		e.Int(*el.MinOrdersPlaced)
	}
	e.FieldStart("firstOrderOnly")
	e.Bool(el.FirstOrderOnly)
	if el.AllowedCountries != nil {
		e.FieldStart("allowedCountries")
		encodeStrings(e, el.AllowedCountries)
	}
	if el.MinCartValue.Valid {
		e.FieldStart("minCartValue")
		encodeAmount(e, el.MinCartValue.Decimal)
	}
	if el.ApplicableCategories != nil {
		e.FieldStart("applicableCategories")
		encodeStrings(e, el.ApplicableCategories)
	}
	if el.ExcludedCategories != nil {
		e.FieldStart("excludedCategories")
		encodeStrings(e, el.ExcludedCategories)
	}
	if el.MinItemsCount != nil {
		e.FieldStart("minItemsCount")
		e.Int(*el.MinItemsCount)
	}
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, s []string) {
	e.ArrStart()
	for _, v := range s {
		e.Str(v)
	}
	e.ArrEnd()
}

// encodeAmount writes the exact decimal representation as a JSON number.
func encodeAmount(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

// encodeDate writes plain calendar dates as YYYY-MM-DD and anything with a
// time-of-day component as RFC 3339. The zero time is written as null.
func encodeDate(e *jx.Encoder, t time.Time) {
	switch {
	case t.IsZero():
		e.Null()
	case t.Equal(t.Truncate(24*time.Hour)) && t.Location() == time.UTC:
		e.Str(t.Format(coupon.DateLayout))
	default:
		e.Str(t.Format(time.RFC3339))
	}
}
