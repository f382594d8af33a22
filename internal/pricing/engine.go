// Package pricing turns priced cart lines, a destination and an optional
// coupon into order totals. Everything here is pure; the caller loads the
// coupon and its redemption count inside its own transaction.
package pricing

import (
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const moneyScale = 2

var hundred = decimal.NewFromInt(100)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Quote struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	// CouponID is set only when the coupon produced a positive discount.
	CouponID *int64 `json:"coupon_id,omitempty"`
	// CouponErr explains why a requested coupon was not applied.
	CouponErr error `json:"-"`
}

type Engine struct {
	rates ShippingRates
}

func NewEngine(rates ShippingRates) *Engine {
	return &Engine{rates: rates}
}

func (e *Engine) ShippingFee(city string) decimal.Decimal {
	return e.rates.Fee(city)
}

func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// Quote prices lines for delivery to city. coupon may be nil; used is the
// number of redemptions the coupon already has. An invalid coupon yields a
// zero discount and a CouponErr, never a failed quote.
func (e *Engine) Quote(lines []Line, city string, coupon *models.Coupon, used int, now time.Time) Quote {
	q := Quote{
		Subtotal:      Subtotal(lines),
		DiscountTotal: decimal.Zero,
		ShippingFee:   e.ShippingFee(city),
	}

	if coupon != nil {
		if err := ValidateCoupon(coupon, now, q.Subtotal, used); err != nil {
			q.CouponErr = err
		} else if d := Discount(coupon, q.Subtotal); d.IsPositive() {
			id := coupon.ID
			q.DiscountTotal = d
			q.CouponID = &id
		}
	}

	q.GrandTotal = q.Subtotal.Sub(q.DiscountTotal).Add(q.ShippingFee)
	return q
}

// ValidateCoupon checks the coupon's own fields against now and the
// subtotal. The usage limit is compared with the redemption count the caller
// read under the coupon's row lock.
func ValidateCoupon(c *models.Coupon, now time.Time, subtotal decimal.Decimal, used int) error {
	switch {
	case !c.IsActive:
		return apperr.Business(apperr.CodeCouponInactive, fmt.Sprintf("coupon %s is not active", c.Code))
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return apperr.Business(apperr.CodeCouponInactive, fmt.Sprintf("coupon %s is not active yet", c.Code))
	case c.EndsAt != nil && now.After(*c.EndsAt):
		return apperr.Business(apperr.CodeCouponExpired, fmt.Sprintf("coupon %s has expired", c.Code))
	case c.MinSubtotal != nil && subtotal.LessThan(*c.MinSubtotal):
		return apperr.Business(apperr.CodeCouponMinSubtotal,
			fmt.Sprintf("coupon %s requires a subtotal of at least %s", c.Code, c.MinSubtotal.StringFixed(moneyScale)))
	case c.UsageLimit != nil && used >= *c.UsageLimit:
		return apperr.Business(apperr.CodeCouponLimitReached, fmt.Sprintf("coupon %s has reached its usage limit", c.Code))
	}
	return nil
}

// CouponNotFound is the error for a code that matches no coupon.
func CouponNotFound(code string) *apperr.Error {
	return apperr.Business(apperr.CodeCouponInvalid, fmt.Sprintf("coupon %s is not valid", code))
}

// Discount computes the coupon's discount on subtotal. Percent discounts are
// rounded half-up to cents, then capped by max_discount; the result never
// exceeds the subtotal.
func Discount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case models.CouponPercent:
		d = subtotal.Mul(c.Value).Div(hundred).Round(moneyScale)
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = *c.MaxDiscount
		}
	case models.CouponFixed:
		d = c.Value
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}
