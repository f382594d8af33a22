package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// NormalizeCouponCode is applied on every write and lookup so codes match
// case-insensitively.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateCoupon inserts c and fills in its id and created_at.
func CreateCoupon(ctx context.Context, q database.Querier, c *models.Coupon) error {
	c.Code = NormalizeCouponCode(c.Code)

	err := q.QueryRowContext(ctx,
		`INSERT INTO coupons (code, type, value, min_subtotal, max_discount, usage_limit, starts_at, ends_at, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id, created_at`,
		c.Code,
		c.Type,
		c.Value,
		nullDecimal(c.MinSubtotal),
		nullDecimal(c.MaxDiscount),
		nullInt(c.UsageLimit),
		c.StartsAt,
		c.EndsAt,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

const couponSelect = `
		SELECT id, code, type, value, min_subtotal, max_discount, usage_limit,
		       starts_at, ends_at, is_active, created_at
		FROM coupons`

func (t *pgTx) scanCoupon(ctx context.Context, query string, arg any) (*models.Coupon, error) {
	c := &models.Coupon{}
	var (
		minSubtotal decimal.NullDecimal
		maxDiscount decimal.NullDecimal
		usageLimit  sql.NullInt64
		startsAt    sql.NullTime
		endsAt      sql.NullTime
	)

	err := t.q.QueryRowContext(ctx, query, arg).Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&minSubtotal,
		&maxDiscount,
		&usageLimit,
		&startsAt,
		&endsAt,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	if minSubtotal.Valid {
		c.MinSubtotal = &minSubtotal.Decimal
	}
	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		n := int(usageLimit.Int64)
		c.UsageLimit = &n
	}
	if startsAt.Valid {
		c.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}

	return c, nil
}

func (t *pgTx) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return t.scanCoupon(ctx, couponSelect+` WHERE code = $1`, NormalizeCouponCode(code))
}

// LockCoupon holds the coupon row so that usage checks and the redemption
// insert are atomic with respect to other checkouts.
func (t *pgTx) LockCoupon(ctx context.Context, id int64) (*models.Coupon, error) {
	return t.scanCoupon(ctx, couponSelect+` WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) CountRedemptions(ctx context.Context, couponID int64) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1`,
		couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon redemptions: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertRedemption(ctx context.Context, r *models.CouponRedemption) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO coupon_redemptions (coupon_id, order_id, user_id, discount_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		r.CouponID, r.OrderID, nullInt64(r.UserID), r.DiscountAmount, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert coupon redemption: %w", err)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
