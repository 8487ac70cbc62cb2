package coupon

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/coupon-selector/internal/domain/coupon"

// SelectBest returns the best coupon of catalog for user and cart at time
// now, or nil when no coupon is eligible.
//
// Eligible coupons are ordered by discount (highest first), then by end date
// (soonest first, open-ended last), then by code (byte-wise ascending), and
// the first one wins.
func SelectBest(catalog []Coupon, user User, cart Cart, now time.Time) *Evaluated {
	ranked := rank(catalog, user, cart, now)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// rank returns the eligible coupons of catalog with their discounts, most
// desirable first.
func rank(catalog []Coupon, user User, cart Cart, now time.Time) []Evaluated {
	totals := totalsOf(cart)

	var eligible []Evaluated
	for _, c := range catalog {
		if !isEligible(c, user, cart, totals, now) {
			continue
		}
		eligible = append(eligible, Evaluated{
			Coupon:   c,
			Discount: ComputeDiscount(c, totals.value),
		})
	}
	slices.SortStableFunc(eligible, compareEvaluated)
	return eligible
}

// compareEvaluated orders a before b when a is the more desirable coupon.
func compareEvaluated(a, b Evaluated) int {
	if c := b.Discount.Cmp(a.Discount); c != 0 {
		return c
	}
	if c := compareEndDates(a.Coupon.EndDate, b.Coupon.EndDate); c != 0 {
		return c
	}
	return cmp.Compare(a.Coupon.Code, b.Coupon.Code)
}

// compareEndDates orders earlier end dates first. A coupon without an end
// date never expires and sorts after every dated one.
func compareEndDates(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Compare(b)
}

// Request is the input of a best-coupon lookup. User and Cart are pointers so
// that a missing user or cart can be told apart from an empty one.
type Request struct {
	User *User
	Cart *Cart
}

// Validate rejects requests the selector cannot evaluate. A cart must carry a
// non-nil item list; an empty list is valid.
func (r Request) Validate() error {
	if r.User == nil {
		return ErrUserRequired
	}
	if r.Cart == nil || r.Cart.Items == nil {
		return ErrCartRequired
	}
	return nil
}

// Selector picks the best coupon from a Catalog snapshot.
type Selector struct {
	catalog Catalog
	now     func() time.Time

	tracer     trace.Tracer
	selections metric.Int64Counter
	eligible   metric.Int64Histogram
}

// Option configures a Selector.
type Option func(*selectorOptions)

type selectorOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
}

// WithTracerProvider sets the tracer provider used for selection spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *selectorOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for selection metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *selectorOptions) { o.meterProvider = mp }
}

// WithClock overrides the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *selectorOptions) { o.now = now }
}

// NewSelector creates a Selector reading coupons from catalog.
func NewSelector(catalog Catalog, opts ...Option) (*Selector, error) {
	o := selectorOptions{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	selections, err := meter.Int64Counter("coupon.selections",
		metric.WithDescription("Best-coupon lookups by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create selections counter")
	}
	eligible, err := meter.Int64Histogram("coupon.eligible_count",
		metric.WithDescription("Number of eligible coupons per lookup"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create eligible histogram")
	}

	return &Selector{
		catalog:    catalog,
		now:        o.now,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		selections: selections,
		eligible:   eligible,
	}, nil
}

// Best validates req, takes a catalog snapshot and returns the winning
// coupon. A nil result with a nil error means no coupon applies.
func (s *Selector) Best(ctx context.Context, req Request) (*Evaluated, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "coupon.SelectBest")
	defer span.End()

	catalog, err := s.catalog.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list catalog")
		return nil, errors.Wrap(err, "list catalog")
	}

	ranked := rank(catalog, *req.User, *req.Cart, s.now())
	eligibleCount := len(ranked)

	var best *Evaluated
	if eligibleCount > 0 {
		best = &ranked[0]
	}

	outcome := "none"
	if best != nil {
		outcome = "selected"
	}
	span.SetAttributes(
		attribute.Int("coupon.catalog_size", len(catalog)),
		attribute.Int("coupon.eligible", eligibleCount),
		attribute.String("coupon.outcome", outcome),
	)
	s.selections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	s.eligible.Record(ctx, int64(eligibleCount))

	lg := zctx.From(ctx)
	if best == nil {
		lg.Debug("No eligible coupon", zap.Int("catalog_size", len(catalog)))
		return nil, nil
	}
	lg.Debug("Selected coupon",
		zap.String("code", best.Coupon.Code),
		zap.String("discount", best.Discount.String()),
		zap.Int("eligible", eligibleCount),
	)
	return best, nil
}
