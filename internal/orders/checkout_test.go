package orders

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/inventory"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var orderCodePattern = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)

func TestCheckout_PercentCouponScenario(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	save10 := f.addCoupon("SAVE10", models.CouponPercent, "10", nil)
	customer := f.customer("a@example.com")
	f.addToCart(t, customer, f.variant.ID, 2)

	res, err := f.svc.Checkout(ctx, customer, withCoupon(validInput(), "save10"))
	require.NoError(t, err)
	require.NoError(t, res.CouponErr)

	o := res.Order
	assert.True(t, o.Subtotal.Equal(money("200000")))
	assert.True(t, o.DiscountTotal.Equal(money("20000")))
	assert.True(t, o.ShippingFee.Equal(money("25000")))
	assert.True(t, o.GrandTotal.Equal(money("205000")))
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Regexp(t, orderCodePattern, o.OrderCode)
	assert.True(t, strings.HasPrefix(o.OrderCode, "ORD-20240501-"))
	require.NotNil(t, o.CouponID)
	assert.Equal(t, save10.ID, *o.CouponID)
	assert.Equal(t, "a@example.com", o.Email)

	require.Len(t, o.Items, 1)
	item := o.Items[0]
	assert.Equal(t, "LIN-M-WHT", item.SKU)
	assert.Equal(t, "Linen Shirt", item.Name)
	assert.Equal(t, "M / White", item.OptionsText)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.LineTotal.Equal(money("200000")))

	require.NotNil(t, o.Payment)
	assert.Equal(t, models.PaymentPending, o.Payment.Status)
	assert.Equal(t, models.PaymentMethodCOD, o.Payment.Method)
	assert.True(t, o.Payment.Amount.Equal(o.GrandTotal))
	require.NotNil(t, o.Shipment)
	assert.Equal(t, models.ShipmentPending, o.Shipment.Status)

	assert.Equal(t, 3, f.st.Stock(f.variant.ID))
	movements := f.movements(t, f.variant.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementOut, movements[1].Direction)
	assert.Equal(t, 2, movements[1].Quantity)
	assert.Equal(t, o.OrderCode, movements[1].Reason)
	assert.Equal(t, f.st.Stock(f.variant.ID), inventory.Balance(movements))

	assert.Equal(t, 1, f.st.Redemptions(save10.ID))
	assert.Empty(t, f.cartItems(t, customer))
}

func TestCheckout_Events(t *testing.T) {
	f := newFixture(t, 5)
	customer := f.customer("a@example.com")
	f.addToCart(t, customer, f.variant.ID, 1)

	res, err := f.svc.Checkout(context.Background(), customer, validInput())
	require.NoError(t, err)

	keys := make([]string, 0, len(res.Events))
	for _, e := range res.Events {
		keys = append(keys, e.RoutingKey())
	}
	assert.Equal(t, []string{
		"notification.order_placed",
		"notification.new_order",
		"email.order_confirmation",
		"activity.checkout",
	}, keys)

	assert.Equal(t, customer.UserID, res.Events[0].Notify.UserID)
	assert.Equal(t, "Order placed", res.Events[0].Notify.Title)
	assert.Equal(t, events.AudienceStaff, res.Events[1].Notify.Audience)
	assert.Equal(t, "New order", res.Events[1].Notify.Title)
	assert.Equal(t, res.Order.OrderCode, res.Events[2].Email.OrderCode)
	assert.True(t, res.Events[2].Email.Amount.Equal(res.Order.GrandTotal))
}

func TestCheckout_GuestWithoutEmail(t *testing.T) {
	f := newFixture(t, 5)
	g := guest("guest-session-1")
	f.addToCart(t, g, f.variant.ID, 1)

	in := validInput()
	in.ShipCity = "Da Nang"
	res, err := f.svc.Checkout(context.Background(), g, in)
	require.NoError(t, err)

	assert.Nil(t, res.Order.UserID)
	assert.Equal(t, "guest-session-1", res.Order.GuestSessionID)
	assert.True(t, res.Order.ShippingFee.Equal(money("35000")))

	for _, e := range res.Events {
		assert.NotEqual(t, events.KindEmail, e.Kind)
		if e.Kind == events.KindNotification {
			assert.Equal(t, events.AudienceStaff, e.Notify.Audience)
		}
	}
}

func TestCheckout_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	first := f.customer("first@example.com")
	second := f.customer("second@example.com")
	f.addToCart(t, first, f.variant.ID, 2)
	f.addToCart(t, second, f.variant.ID, 2)

	_, err := f.svc.Checkout(ctx, first, validInput())
	require.NoError(t, err)
	require.Equal(t, 1, f.st.Stock(f.variant.ID))

	_, err = f.svc.Checkout(ctx, second, validInput())
	require.Error(t, err)
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	assert.Equal(t, "LIN-M-WHT", apperr.As(err).Item)
	assert.Contains(t, err.Error(), "Linen Shirt")

	assert.Equal(t, 1, f.st.Stock(f.variant.ID))
	assert.Equal(t, 1, f.st.OrderCount())
	assert.Len(t, f.movements(t, f.variant.ID), 2)
	assert.Len(t, f.cartItems(t, second), 1)
}

func TestCheckout_ConcurrentLastUnits(t *testing.T) {
	const stock = 4
	f := newFixture(t, stock)
	buyers := []models.Identity{f.customer("b1@example.com"), f.customer("b2@example.com")}
	for _, b := range buyers {
		f.addToCart(t, b, f.variant.ID, stock)
	}

	var ok, short atomic.Int32
	var g errgroup.Group
	for _, b := range buyers {
		g.Go(func() error {
			_, err := f.svc.Checkout(context.Background(), b, validInput())
			switch apperr.CodeOf(err) {
			case "":
				ok.Add(1)
			case apperr.CodeInsufficientStock:
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), short.Load())
	assert.Equal(t, 0, f.st.Stock(f.variant.ID))
}

func TestCheckout_CouponUsageLimitUnderConcurrency(t *testing.T) {
	f := newFixture(t, 50)
	once := f.addCoupon("ONCE", models.CouponFixed, "10000", intPtr(1))

	buyers := make([]models.Identity, 8)
	for i := range buyers {
		buyers[i] = f.customer(strings.Repeat("x", i+1) + "@example.com")
		f.addToCart(t, buyers[i], f.variant.ID, 1)
	}

	var discounted atomic.Int32
	var g errgroup.Group
	for _, b := range buyers {
		g.Go(func() error {
			res, err := f.svc.Checkout(context.Background(), b, withCoupon(validInput(), "ONCE"))
			if err != nil {
				return err
			}
			if res.Order.DiscountTotal.IsPositive() {
				discounted.Add(1)
			} else if apperr.CodeOf(res.CouponErr) != apperr.CodeCouponLimitReached {
				t.Errorf("unexpected coupon error: %v", res.CouponErr)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), discounted.Load())
	assert.Equal(t, 1, f.st.Redemptions(once.ID))
	assert.Equal(t, 8, f.st.OrderCount())
}

func TestCheckout_BadCouponDoesNotBlock(t *testing.T) {
	f := newFixture(t, 5)
	customer := f.customer("a@example.com")
	f.addToCart(t, customer, f.variant.ID, 1)

	res, err := f.svc.Checkout(context.Background(), customer, withCoupon(validInput(), "NOPE"))
	require.NoError(t, err)

	assert.Equal(t, apperr.CodeCouponInvalid, apperr.CodeOf(res.CouponErr))
	assert.True(t, res.Order.DiscountTotal.IsZero())
	assert.Nil(t, res.Order.CouponID)
	assert.True(t, res.Order.GrandTotal.Equal(money("125000")))
}

func TestCheckout_TotalsAcrossLines(t *testing.T) {
	f := newFixture(t, 10)
	p := f.st.AddProduct("Socks")
	socks := f.st.AddVariant(p.ID, "SOCK-3PK", "3 pack", money("33333.33"), 10)
	f.addCoupon("THIRD", models.CouponPercent, "33.33", nil)

	customer := f.customer("a@example.com")
	f.addToCart(t, customer, socks.ID, 3)
	f.addToCart(t, customer, f.variant.ID, 1)

	res, err := f.svc.Checkout(context.Background(), customer, withCoupon(validInput(), "THIRD"))
	require.NoError(t, err)
	o := res.Order

	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal)
	}
	assert.True(t, sum.Equal(o.Subtotal), "line totals %s != subtotal %s", sum, o.Subtotal)
	assert.True(t, o.GrandTotal.Equal(o.Subtotal.Sub(o.DiscountTotal).Add(o.ShippingFee)))
	assert.True(t, o.DiscountTotal.LessThanOrEqual(o.Subtotal))
	assert.Equal(t, 7, f.st.Stock(socks.ID))
	assert.Equal(t, 9, f.st.Stock(f.variant.ID))
}

func TestCheckout_UsesCurrentPriceNotCartPrice(t *testing.T) {
	f := newFixture(t, 5)
	customer := f.customer("a@example.com")
	f.addToCart(t, customer, f.variant.ID, 1)

	res, err := f.svc.Checkout(context.Background(), customer, validInput())
	require.NoError(t, err)
	assert.True(t, res.Order.Items[0].UnitPrice.Equal(f.variant.Price))
}

func TestCheckout_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		identity func(f *fixture) models.Identity
		fill     bool
		input    func(in CheckoutInput) CheckoutInput
		wantKind apperr.Kind
		wantCode string
		field    string
	}{
		{
			name:     "staff cannot place orders",
			identity: func(*fixture) models.Identity { return staff() },
			wantKind: apperr.KindForbidden,
			wantCode: apperr.CodeForbidden,
		},
		{
			name:     "no identity",
			identity: func(*fixture) models.Identity { return models.Identity{Role: models.RoleGuest} },
			wantKind: apperr.KindUnauthorized,
			wantCode: apperr.CodeUnauthorized,
		},
		{
			name:     "empty cart",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			wantKind: apperr.KindBusinessRule,
			wantCode: apperr.CodeCartEmpty,
		},
		{
			name:     "missing name",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			fill:     true,
			input:    func(in CheckoutInput) CheckoutInput { in.CustomerName = "  "; return in },
			wantKind: apperr.KindValidation,
			wantCode: apperr.CodeValidation,
			field:    "customer_name",
		},
		{
			name:     "bad phone",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			fill:     true,
			input:    func(in CheckoutInput) CheckoutInput { in.CustomerPhone = "call me"; return in },
			wantKind: apperr.KindValidation,
			wantCode: apperr.CodeValidation,
			field:    "customer_phone",
		},
		{
			name:     "bad email",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			fill:     true,
			input:    func(in CheckoutInput) CheckoutInput { in.Email = "not-an-email"; return in },
			wantKind: apperr.KindValidation,
			wantCode: apperr.CodeValidation,
			field:    "email",
		},
		{
			name:     "unknown payment method",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			fill:     true,
			input:    func(in CheckoutInput) CheckoutInput { in.PaymentMethod = "barter"; return in },
			wantKind: apperr.KindValidation,
			wantCode: apperr.CodeValidation,
			field:    "payment_method",
		},
		{
			name:     "missing city",
			identity: func(f *fixture) models.Identity { return f.customer("a@example.com") },
			fill:     true,
			input:    func(in CheckoutInput) CheckoutInput { in.ShipCity = ""; return in },
			wantKind: apperr.KindValidation,
			wantCode: apperr.CodeValidation,
			field:    "ship_city",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			id := tt.identity(f)
			if tt.fill {
				f.addToCart(t, id, f.variant.ID, 1)
			}
			in := validInput()
			if tt.input != nil {
				in = tt.input(in)
			}

			_, err := f.svc.Checkout(context.Background(), id, in)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
			if tt.field != "" {
				assert.Equal(t, tt.field, apperr.As(err).Field)
			}
			assert.Equal(t, 5, f.st.Stock(f.variant.ID))
			assert.Zero(t, f.st.OrderCount())
		})
	}
}

func TestCheckout_OrderCodeCollisionRetries(t *testing.T) {
	var calls atomic.Int32
	codes := []string{"ORD-20240501-AAAAAAAA", "ORD-20240501-AAAAAAAA", "ORD-20240501-BBBBBBBB"}
	gen := func(time.Time) string {
		n := int(calls.Add(1)) - 1
		return codes[min(n, len(codes)-1)]
	}

	f := newFixture(t, 5, WithCodeGenerator(gen))
	first := f.customer("first@example.com")
	second := f.customer("second@example.com")
	f.addToCart(t, first, f.variant.ID, 1)
	f.addToCart(t, second, f.variant.ID, 1)

	res1, err := f.svc.Checkout(context.Background(), first, validInput())
	require.NoError(t, err)
	res2, err := f.svc.Checkout(context.Background(), second, validInput())
	require.NoError(t, err)

	assert.Equal(t, "ORD-20240501-AAAAAAAA", res1.Order.OrderCode)
	assert.Equal(t, "ORD-20240501-BBBBBBBB", res2.Order.OrderCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCheckout_OrderCodeExhausted(t *testing.T) {
	gen := func(time.Time) string { return "ORD-20240501-CCCCCCCC" }
	f := newFixture(t, 5, WithCodeGenerator(gen), WithCodeAttempts(3))
	first := f.customer("first@example.com")
	second := f.customer("second@example.com")
	f.addToCart(t, first, f.variant.ID, 1)
	f.addToCart(t, second, f.variant.ID, 1)

	_, err := f.svc.Checkout(context.Background(), first, validInput())
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), second, validInput())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeOrderCodeExhausted, apperr.CodeOf(err))
	assert.Equal(t, 4, f.st.Stock(f.variant.ID))
	assert.Len(t, f.cartItems(t, second), 1)
}

func TestNewOrderCode(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	code := NewOrderCode(at)

	assert.Regexp(t, orderCodePattern, code)
	assert.True(t, strings.HasPrefix(code, "ORD-20241231-"))
	assert.NotEqual(t, code, NewOrderCode(at))
}
