package orders

import (
	"context"
	"errors"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ApplyCoupon prices the caller's current cart with code and, unlike
// checkout, reports why the coupon does not apply.
func (s *Service) ApplyCoupon(ctx context.Context, id models.Identity, code, city string) (*pricing.Quote, error) {
	if err := requireCustomer(id); err != nil {
		return nil, err
	}
	code = store.NormalizeCouponCode(code)
	if code == "" {
		return nil, apperr.Validation("coupon_code", "coupon_code is required")
	}

	var quote pricing.Quote
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.GetCart(ctx, id.Owner())
		if errors.Is(err, database.ErrCartNotFound) {
			return apperr.CartEmpty()
		}
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return apperr.CartEmpty()
		}

		lines := make([]pricing.Line, 0, len(cart.Items))
		for _, item := range cart.Items {
			v, err := tx.GetVariant(ctx, item.VariantID)
			if err != nil {
				return err
			}
			lines = append(lines, pricing.Line{UnitPrice: v.Price, Quantity: item.Quantity})
		}

		coupon, err := tx.GetCouponByCode(ctx, code)
		if errors.Is(err, database.ErrCouponNotFound) {
			return pricing.CouponNotFound(code)
		}
		if err != nil {
			return err
		}
		used, err := tx.CountRedemptions(ctx, coupon.ID)
		if err != nil {
			return err
		}

		quote = s.pricing.Quote(lines, city, coupon, used, s.now())
		return quote.CouponErr
	})
	if err != nil {
		return nil, s.fail("apply coupon", err)
	}
	return &quote, nil
}

// GetOrder returns an order with its items, payment and shipment to its
// owner or to staff.
func (s *Service) GetOrder(ctx context.Context, id models.Identity, orderID int64) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, s.fail("get order", err)
	}
	if !id.IsStaff() && !id.Owns(order) {
		return nil, apperr.Forbidden("order belongs to another customer")
	}
	return order, nil
}

// ListOrders pages through the caller's orders, or every order for staff.
func (s *Service) ListOrders(ctx context.Context, id models.Identity, cursor string, limit int) (*store.OrderPage, error) {
	var owner models.Owner
	if !id.IsStaff() {
		owner = id.Owner()
		if !owner.Valid() {
			return nil, apperr.Unauthorized("sign in or start a guest session first")
		}
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, apperr.Validation("cursor", "cursor is malformed")
	}

	var page *store.OrderPage
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		page, err = tx.ListOrders(ctx, owner, cursor, limit)
		return err
	})
	if err != nil {
		return nil, s.fail("list orders", err)
	}
	return page, nil
}

// ListMovements returns a variant's stock history. Staff only.
func (s *Service) ListMovements(ctx context.Context, id models.Identity, variantID int64) ([]models.InventoryMovement, error) {
	if err := requireStaff(id); err != nil {
		return nil, err
	}

	var movements []models.InventoryMovement
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetVariant(ctx, variantID); err != nil {
			return err
		}
		var err error
		movements, err = tx.ListMovements(ctx, variantID)
		return err
	})
	if err != nil {
		return nil, s.fail("list movements", err)
	}
	if movements == nil {
		movements = []models.InventoryMovement{}
	}
	return movements, nil
}
