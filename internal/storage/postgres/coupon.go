package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

const (
	couponColumns = `code, description, discount_type, discount_value, max_discount_amount,
		start_date, end_date, usage_limit_per_user,
		allowed_user_tiers, min_lifetime_spend, min_orders_placed, first_order_only,
		allowed_countries, min_cart_value, applicable_categories, excluded_categories,
		min_items_count`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY id`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Catalog = (*CouponRepository)(nil)

// CouponRepository implements coupon.Catalog backed by PostgreSQL. The UNIQUE
// constraint on code is the single source of truth for duplicate detection.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// List returns all coupons in insertion order.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Create inserts c. Returns coupon.ErrDuplicateCode when the code is taken.
func (r *CouponRepository) Create(ctx context.Context, c coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}

	e := c.Eligibility
	tag, err := r.pool.Exec(ctx, insertCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MaxDiscountAmount,
		nullTime(c.StartDate), nullTime(c.EndDate), int64(c.UsageLimitPerUser),
		e.AllowedUserTiers, e.MinLifetimeSpend, nullInt(e.MinOrdersPlaced), e.FirstOrderOnly,
		e.AllowedCountries, e.MinCartValue, e.ApplicableCategories, e.ExcludedCategories,
		nullInt(e.MinItemsCount),
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrDuplicateCode
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *CouponRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		e             = &c.Eligibility
		discountType  string
		startDate     *time.Time
		endDate       *time.Time
		usageLimit    int64
		minOrders     pgtype.Int8
		minItemsCount pgtype.Int8
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue, &c.MaxDiscountAmount,
		&startDate, &endDate, &usageLimit,
		&e.AllowedUserTiers, &e.MinLifetimeSpend, &minOrders, &e.FirstOrderOnly,
		&e.AllowedCountries, &e.MinCartValue, &e.ApplicableCategories, &e.ExcludedCategories,
		&minItemsCount,
	)
	if err != nil {
		return coupon.Coupon{}, err
	}
	c.DiscountType = coupon.DiscountType(discountType)
	c.StartDate = utc(startDate)
	c.EndDate = utc(endDate)
	c.UsageLimitPerUser = int(usageLimit)
	e.MinOrdersPlaced = intPtr(minOrders)
	e.MinItemsCount = intPtr(minItemsCount)
	return c, nil
}

// nullTime maps the zero time (an unset bound) to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Counts are stored as BIGINT so that any int round-trips unchanged.
func nullInt(p *int) pgtype.Int8 {
	if p == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(*p), Valid: true}
}

func intPtr(v pgtype.Int8) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// utc normalizes scanned timestamps, which pgx returns in the local zone.
func utc(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
