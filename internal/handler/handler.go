// Package handler exposes the coupon catalog and best-coupon selection over
// HTTP with a JSON body shape shared by all endpoints.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

// maxBodyBytes bounds request bodies. Catalog entries are small.
const maxBodyBytes = 1 << 20

// Handler serves the coupon API.
type Handler struct {
	catalog  coupon.Catalog
	selector *coupon.Selector
}

// NewHandler constructs a Handler. The selector must read from catalog.
func NewHandler(catalog coupon.Catalog, selector *coupon.Selector) *Handler {
	return &Handler{
		catalog:  catalog,
		selector: selector,
	}
}

// Register mounts all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /api/coupons", h.ListCoupons)
	mux.HandleFunc("POST /api/coupons", h.CreateCoupon)
	mux.HandleFunc("POST /api/coupons/best", h.BestCoupon)
}

// Root answers a plain text banner, used by humans and load balancers alike.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Coupon Management Server is running")
}

// bodyError marks a request body that could not be read or decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

// readBody reads the request body. An empty body reads as an empty object so
// that required-field checks, not the decoder, reject it.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &bodyError{err: err}
	}
	if isBlank(data) {
		return []byte("{}"), nil
	}
	return data, nil
}

func isBlank(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// writeJSON encodes a response body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// handleError converts domain errors to API error responses. Anything it
// does not recognize is logged and reported as a 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
		)
	}
	writeError(w, status, message)
}

func mapError(err error) (int, string) {
	var be *bodyError
	switch {
	case errors.Is(err, coupon.ErrCodeRequired):
		return http.StatusBadRequest, "Coupon code is required"
	case errors.Is(err, coupon.ErrDuplicateCode):
		return http.StatusBadRequest, "Coupon code already exists"
	case errors.Is(err, coupon.ErrInvalidRequest):
		return http.StatusBadRequest, "User and cart required"
	case errors.As(err, &be):
		var tooLarge *http.MaxBytesError
		if errors.As(be.err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, "Request body too large"
		}
		return http.StatusBadRequest, "Invalid request body"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
