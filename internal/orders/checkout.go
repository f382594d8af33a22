package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/inventory"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/store"
)

type CheckoutInput struct {
	CustomerName     string `json:"customer_name"`
	CustomerPhone    string `json:"customer_phone"`
	Email            string `json:"email"`
	ShipAddressLine1 string `json:"ship_address_line1"`
	ShipAddressLine2 string `json:"ship_address_line2"`
	ShipCity         string `json:"ship_city"`
	ShipProvince     string `json:"ship_province"`
	ShipPostalCode   string `json:"ship_postal_code"`
	ShipCountry      string `json:"ship_country"`
	Note             string `json:"note"`
	PaymentMethod    string `json:"payment_method"`
	CouponCode       string `json:"coupon_code"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .()-]{5,19}$`)

var paymentMethods = []string{
	models.PaymentMethodCOD,
	models.PaymentMethodBankTransfer,
	models.PaymentMethodCard,
	models.PaymentMethodEWallet,
}

const (
	maxFieldLen = 255
	maxNoteLen  = 1000
)

func (in CheckoutInput) normalized() CheckoutInput {
	trim := strings.TrimSpace
	return CheckoutInput{
		CustomerName:     trim(in.CustomerName),
		CustomerPhone:    trim(in.CustomerPhone),
		Email:            trim(in.Email),
		ShipAddressLine1: trim(in.ShipAddressLine1),
		ShipAddressLine2: trim(in.ShipAddressLine2),
		ShipCity:         trim(in.ShipCity),
		ShipProvince:     trim(in.ShipProvince),
		ShipPostalCode:   trim(in.ShipPostalCode),
		ShipCountry:      trim(in.ShipCountry),
		Note:             trim(in.Note),
		PaymentMethod:    strings.ToLower(trim(in.PaymentMethod)),
		CouponCode:       store.NormalizeCouponCode(in.CouponCode),
	}
}

// Validate reports the first malformed field. It expects normalized input.
func (in CheckoutInput) Validate() error {
	required := []struct {
		field, value string
	}{
		{"customer_name", in.CustomerName},
		{"customer_phone", in.CustomerPhone},
		{"ship_address_line1", in.ShipAddressLine1},
		{"ship_city", in.ShipCity},
		{"ship_province", in.ShipProvince},
		{"payment_method", in.PaymentMethod},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.Validation(r.field, r.field+" is required")
		}
	}

	bounded := []struct {
		field, value string
	}{
		{"customer_name", in.CustomerName},
		{"email", in.Email},
		{"ship_address_line1", in.ShipAddressLine1},
		{"ship_address_line2", in.ShipAddressLine2},
		{"ship_city", in.ShipCity},
		{"ship_province", in.ShipProvince},
		{"ship_postal_code", in.ShipPostalCode},
		{"ship_country", in.ShipCountry},
	}
	for _, b := range bounded {
		if len(b.value) > maxFieldLen {
			return apperr.Validation(b.field, fmt.Sprintf("%s must be at most %d characters", b.field, maxFieldLen))
		}
	}
	if len(in.Note) > maxNoteLen {
		return apperr.Validation("note", fmt.Sprintf("note must be at most %d characters", maxNoteLen))
	}

	if !phonePattern.MatchString(in.CustomerPhone) {
		return apperr.Validation("customer_phone", "customer_phone is not a valid phone number")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return apperr.Validation("email", "email is not a valid address")
		}
	}
	if !slices.Contains(paymentMethods, in.PaymentMethod) {
		return apperr.Validation("payment_method", "payment_method must be one of "+strings.Join(paymentMethods, ", "))
	}
	return nil
}

// Checkout converts the caller's cart into an order in one transaction:
// stock is re-checked under row locks, the cart is priced, the order and its
// items, payment and shipment are written, stock is debited through the
// ledger, the coupon redemption is recorded and the cart is emptied.
func (s *Service) Checkout(ctx context.Context, id models.Identity, in CheckoutInput) (*Result, error) {
	res, err := s.checkout(ctx, id, in)
	s.metrics.Checkout(apperr.CodeOf(err))
	return res, err
}

func (s *Service) checkout(ctx context.Context, id models.Identity, in CheckoutInput) (*Result, error) {
	if err := requireCustomer(id); err != nil {
		return nil, err
	}
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	owner := id.Owner()
	var (
		order     *models.Order
		couponErr error
		email     string
	)

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		order, couponErr, email = nil, nil, in.Email
		now := s.now()

		cart, err := tx.LockCart(ctx, owner)
		if errors.Is(err, database.ErrCartNotFound) {
			return apperr.CartEmpty()
		}
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return apperr.CartEmpty()
		}

		// Variants are locked in id order so concurrent checkouts of
		// overlapping carts cannot deadlock.
		items := slices.Clone(cart.Items)
		slices.SortFunc(items, func(a, b models.CartItem) int {
			return cmp.Compare(a.VariantID, b.VariantID)
		})

		variants := make([]*models.ProductVariant, len(items))
		lines := make([]pricing.Line, len(items))
		for i, item := range items {
			v, err := tx.LockVariant(ctx, item.VariantID)
			if errors.Is(err, database.ErrVariantNotFound) {
				return apperr.NotFound(fmt.Sprintf("product variant %d is no longer available", item.VariantID))
			}
			if err != nil {
				return err
			}
			if item.Quantity > v.StockQty {
				return apperr.InsufficientStock(v.SKU, v.DisplayName(), item.Quantity, v.StockQty)
			}
			variants[i] = v
			lines[i] = pricing.Line{UnitPrice: v.Price, Quantity: item.Quantity}
		}

		var (
			coupon *models.Coupon
			used   int
		)
		if in.CouponCode != "" {
			coupon, used, err = lockCoupon(ctx, tx, in.CouponCode)
			if errors.Is(err, database.ErrCouponNotFound) {
				couponErr = pricing.CouponNotFound(in.CouponCode)
			} else if err != nil {
				return err
			}
		}

		quote := s.pricing.Quote(lines, in.ShipCity, coupon, used, now)
		if couponErr == nil {
			couponErr = quote.CouponErr
		}

		if email == "" && id.UserID != nil {
			user, err := tx.GetUser(ctx, *id.UserID)
			if err != nil {
				return err
			}
			email = user.Email
		}

		o := &models.Order{
			UserID:           id.UserID,
			Status:           models.OrderStatusPending,
			Subtotal:         quote.Subtotal,
			DiscountTotal:    quote.DiscountTotal,
			ShippingFee:      quote.ShippingFee,
			GrandTotal:       quote.GrandTotal,
			CouponID:         quote.CouponID,
			CustomerName:     in.CustomerName,
			CustomerPhone:    in.CustomerPhone,
			Email:            email,
			ShipAddressLine1: in.ShipAddressLine1,
			ShipAddressLine2: in.ShipAddressLine2,
			ShipCity:         in.ShipCity,
			ShipProvince:     in.ShipProvince,
			ShipPostalCode:   in.ShipPostalCode,
			ShipCountry:      in.ShipCountry,
			Note:             in.Note,
			CreatedAt:        now,
		}
		if id.UserID == nil {
			o.GuestSessionID = owner.SessionID
		}
		if err := s.insertOrder(ctx, tx, o, now); err != nil {
			return err
		}

		for i, item := range items {
			v := variants[i]
			variantID := v.ID
			err := tx.InsertOrderItem(ctx, &models.OrderItem{
				OrderID:     o.ID,
				ProductID:   v.ProductID,
				VariantID:   &variantID,
				SKU:         v.SKU,
				Name:        v.DisplayName(),
				OptionsText: v.OptionsText,
				UnitPrice:   v.Price,
				Quantity:    item.Quantity,
				LineTotal:   lines[i].Total(),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}

			err = inventory.Debit(ctx, tx, v.ID, item.Quantity, o.OrderCode, now)
			if errors.Is(err, database.ErrInsufficientStock) {
				return apperr.InsufficientStock(v.SKU, v.DisplayName(), item.Quantity, v.StockQty)
			}
			if err != nil {
				return err
			}
		}

		if err := tx.InsertPayment(ctx, &models.Payment{
			OrderID:   o.ID,
			Method:    in.PaymentMethod,
			Status:    models.PaymentPending,
			Amount:    quote.GrandTotal,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.InsertShipment(ctx, &models.Shipment{
			OrderID:   o.ID,
			Status:    models.ShipmentPending,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if quote.CouponID != nil {
			if err := tx.InsertRedemption(ctx, &models.CouponRedemption{
				CouponID:       *quote.CouponID,
				OrderID:        o.ID,
				UserID:         id.UserID,
				DiscountAmount: quote.DiscountTotal,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, s.fail("checkout", err)
	}

	s.log.Info("order placed",
		"order_id", order.ID,
		"order_code", order.OrderCode,
		"grand_total", order.GrandTotal.String(),
		"items", len(order.Items))

	return &Result{
		Order:     order,
		Events:    checkoutEvents(order, id, s.now()),
		CouponErr: couponErr,
	}, nil
}

// insertOrder assigns a fresh order code until one is free.
func (s *Service) insertOrder(ctx context.Context, tx store.Tx, o *models.Order, now time.Time) error {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		o.OrderCode = s.newCode(now)
		ok, err := tx.InsertOrder(ctx, o)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.log.Warn("order code collision", "order_code", o.OrderCode, "attempt", attempt)
	}
	return apperr.Conflict(apperr.CodeOrderCodeExhausted,
		fmt.Sprintf("could not allocate a unique order code after %d attempts", s.codeAttempts))
}

// lockCoupon locks the coupon row before counting redemptions, so a
// concurrent checkout of the same coupon waits for this one to commit.
func lockCoupon(ctx context.Context, tx store.Tx, code string) (*models.Coupon, int, error) {
	c, err := tx.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	c, err = tx.LockCoupon(ctx, c.ID)
	if err != nil {
		return nil, 0, err
	}
	used, err := tx.CountRedemptions(ctx, c.ID)
	if err != nil {
		return nil, 0, err
	}
	return c, used, nil
}
