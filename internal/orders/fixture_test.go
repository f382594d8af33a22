package orders

import (
	"context"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/logger"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/store"
	"github.com/safar/go-storefront/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	st      *memory.Store
	svc     *Service
	carts   *cart.Service
	variant models.ProductVariant
}

func newFixture(t *testing.T, stock int, opts ...Option) *fixture {
	t.Helper()

	st := memory.New()
	st.Clock = func() time.Time { return testNow }

	p := st.AddProduct("Linen Shirt")
	v := st.AddVariant(p.ID, "LIN-M-WHT", "M / White", decimal.NewFromInt(100000), stock)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return &fixture{
		st:      st,
		svc:     NewService(st, pricing.NewEngine(pricing.DefaultShippingRates()), logger.Discard(), opts...),
		carts:   cart.NewService(st, logger.Discard()),
		variant: v,
	}
}

func (f *fixture) customer(email string) models.Identity {
	u := f.st.AddUser(email, "Customer", models.RoleCustomer)
	return models.Identity{UserID: &u.ID, Role: models.RoleCustomer}
}

func guest(session string) models.Identity {
	return models.Identity{SessionID: session, Role: models.RoleGuest}
}

func staff() models.Identity {
	id := int64(900001)
	return models.Identity{UserID: &id, Role: models.RoleStaff}
}

func (f *fixture) addToCart(t *testing.T, id models.Identity, variantID int64, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), id.Owner(), variantID, qty)
	require.NoError(t, err)
}

func (f *fixture) addCoupon(code, typ, value string, usageLimit *int) models.Coupon {
	zero := decimal.Zero
	return f.st.AddCoupon(models.Coupon{
		Code:        code,
		Type:        typ,
		Value:       decimal.RequireFromString(value),
		MinSubtotal: &zero,
		UsageLimit:  usageLimit,
		IsActive:    true,
	})
}

func (f *fixture) movements(t *testing.T, variantID int64) []models.InventoryMovement {
	t.Helper()
	var out []models.InventoryMovement
	err := f.st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.ListMovements(context.Background(), variantID)
		return err
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) cartItems(t *testing.T, id models.Identity) []models.CartItem {
	t.Helper()
	c, err := f.carts.Get(context.Background(), id.Owner())
	require.NoError(t, err)
	return c.Items
}

func validInput() CheckoutInput {
	return CheckoutInput{
		CustomerName:     "Nguyen Van A",
		CustomerPhone:    "0901234567",
		ShipAddressLine1: "12 Le Loi",
		ShipCity:         "HCM",
		ShipProvince:     "Ho Chi Minh",
		PaymentMethod:    models.PaymentMethodCOD,
	}
}

func withCoupon(in CheckoutInput, code string) CheckoutInput {
	in.CouponCode = code
	return in
}

func intPtr(n int) *int {
	return &n
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
