package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, description, discount_type, value,
		min_order_value, max_discount_cap, valid_from, valid_until, max_uses
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	getCouponUsesSQL = `SELECT COALESCE(SUM(uses), 0) FROM coupon_usage
		WHERE code = $1 AND ($2 = '' OR scope_key = $2)`

	recordCouponUseSQL = `INSERT INTO coupon_usage (code, scope_key, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (code, scope_key) DO UPDATE SET uses = coupon_usage.uses + 1`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE active = TRUE`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCode when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// Uses returns the redemption count for the given scope. An empty scope key
// sums redemptions across all scopes, which is the global-policy count.
func (r *CouponRepository) Uses(ctx context.Context, code, scopeKey string) (int, error) {
	var uses int64
	err := r.pool.QueryRow(ctx, getCouponUsesSQL, code, scopeKey).Scan(&uses)
	if err != nil {
		return 0, fmt.Errorf("counting uses for coupon %q: %w", code, err)
	}
	return int(uses), nil
}

// ListActiveCodes returns every active coupon code. The bloom prefilter is
// rebuilt from this set.
func (r *CouponRepository) ListActiveCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

// RecordUse atomically increments the redemption counter for the scope.
func (r *CouponRepository) RecordUse(ctx context.Context, code, scopeKey string) error {
	_, err := r.pool.Exec(ctx, recordCouponUseSQL, code, scopeKey)
	if err != nil {
		return fmt.Errorf("recording use for coupon %q: %w", code, err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule           coupon.Rule
		discountType   string
		value          decimal.Decimal
		minOrderValue  decimal.Decimal
		maxDiscountCap decimal.Decimal
		validFrom      *time.Time
		validUntil     *time.Time
		maxUses        int32
	)
	err := row.Scan(
		&rule.Code, &rule.Description, &discountType, &value,
		&minOrderValue, &maxDiscountCap, &validFrom, &validUntil, &maxUses,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.Value = value
	rule.MinOrderValue = minOrderValue
	rule.MaxDiscountCap = maxDiscountCap
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	rule.MaxUses = int(maxUses)
	return rule, err
}
