package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/codec"
)

// CreateCoupon appends the coupon in the request body to the catalog.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	c, err := codec.DecodeCoupon(jx.DecodeBytes(data))
	if err != nil {
		handleError(w, r, &bodyError{err: err})
		return
	}
	if err := h.catalog.Create(r.Context(), c); err != nil {
		handleError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Coupon created",
		zap.String("code", c.Code),
		zap.String("discount_type", string(c.DiscountType)),
	)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Coupon created successfully")
		e.FieldStart("coupon")
		codec.EncodeCoupon(e, c)
		e.ObjEnd()
	})
}

// ListCoupons returns the whole catalog in insertion order.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.catalog.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		codec.EncodeCoupons(e, coupons)
	})
}

// BestCoupon selects the best coupon for the user and cart in the request
// body. No eligible coupon is not an error: bestCoupon is null.
func (h *Handler) BestCoupon(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	req, err := codec.DecodeBestRequest(data)
	if err != nil {
		handleError(w, r, &bodyError{err: err})
		return
	}

	best, err := h.selector.Best(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("bestCoupon")
		codec.EncodeEvaluated(e, best)
		e.ObjEnd()
	})
}
