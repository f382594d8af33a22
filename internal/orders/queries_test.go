package orders

import (
	"context"
	"testing"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCoupon(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.addCoupon("SAVE10", models.CouponPercent, "10", nil)
	minSub := decimal.NewFromInt(500000)
	f.st.AddCoupon(models.Coupon{
		Code:        "BIGSPENDER",
		Type:        models.CouponFixed,
		Value:       decimal.NewFromInt(50000),
		MinSubtotal: &minSub,
		IsActive:    true,
	})

	customer := f.customer("a@example.com")
	f.addToCart(t, customer, f.variant.ID, 2)

	t.Run("valid code", func(t *testing.T) {
		q, err := f.svc.ApplyCoupon(ctx, customer, " save10 ", "HCM")
		require.NoError(t, err)
		assert.True(t, q.Subtotal.Equal(money("200000")))
		assert.True(t, q.DiscountTotal.Equal(money("20000")))
		assert.True(t, q.ShippingFee.Equal(money("25000")))
		assert.True(t, q.GrandTotal.Equal(money("205000")))
		require.NotNil(t, q.CouponID)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.svc.ApplyCoupon(ctx, customer, "NOPE", "HCM")
		assert.Equal(t, apperr.CodeCouponInvalid, apperr.CodeOf(err))
	})

	t.Run("below minimum subtotal", func(t *testing.T) {
		_, err := f.svc.ApplyCoupon(ctx, customer, "BIGSPENDER", "HCM")
		assert.Equal(t, apperr.CodeCouponMinSubtotal, apperr.CodeOf(err))
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := f.svc.ApplyCoupon(ctx, customer, "  ", "HCM")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("empty cart", func(t *testing.T) {
		_, err := f.svc.ApplyCoupon(ctx, guest("nobody"), "SAVE10", "HCM")
		assert.Equal(t, apperr.CodeCartEmpty, apperr.CodeOf(err))
	})

	t.Run("nothing is reserved", func(t *testing.T) {
		assert.Equal(t, 10, f.st.Stock(f.variant.ID))
		assert.Zero(t, f.st.OrderCount())
	})
}

func TestGetOrder_Access(t *testing.T) {
	f := newFixture(t, 5)
	owner := f.customer("a@example.com")
	o := placeOrder(t, f, owner, 1)

	tests := []struct {
		name     string
		identity models.Identity
		wantErr  apperr.Kind
	}{
		{name: "owner", identity: owner},
		{name: "staff", identity: staff()},
		{name: "other customer", identity: f.customer("b@example.com"), wantErr: apperr.KindForbidden},
		{name: "guest", identity: guest("guest-1"), wantErr: apperr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetOrder(context.Background(), tt.identity, o.ID)
			if tt.wantErr != apperr.KindInternal {
				assert.Equal(t, tt.wantErr, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, o.OrderCode, got.OrderCode)
			require.Len(t, got.Items, 1)
			assert.Equal(t, "LIN-M-WHT", got.Items[0].SKU)
			require.NotNil(t, got.Payment)
			require.NotNil(t, got.Shipment)
		})
	}

	_, err := f.svc.GetOrder(context.Background(), staff(), o.ID+999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListOrders_Pagination(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	customer := f.customer("a@example.com")
	other := f.customer("b@example.com")

	var codes []string
	for range 5 {
		codes = append(codes, placeOrder(t, f, customer, 1).OrderCode)
	}
	placeOrder(t, f, other, 1)

	first, err := f.svc.ListOrders(ctx, customer, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextCursor)
	// newest first
	assert.Equal(t, codes[4], first.Orders[0].OrderCode)
	assert.Equal(t, codes[3], first.Orders[1].OrderCode)

	second, err := f.svc.ListOrders(ctx, customer, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.Equal(t, codes[2], second.Orders[0].OrderCode)

	third, err := f.svc.ListOrders(ctx, customer, second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, third.Orders, 1)
	assert.False(t, third.HasMore)
	assert.Empty(t, third.NextCursor)
	assert.Equal(t, codes[0], third.Orders[0].OrderCode)

	all, err := f.svc.ListOrders(ctx, staff(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all.Orders, 6)

	_, err = f.svc.ListOrders(ctx, customer, "%%%", 2)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.ListOrders(ctx, models.Identity{}, "", 2)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestListMovements(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	customer := f.customer("a@example.com")
	o := placeOrder(t, f, customer, 2)

	movements, err := f.svc.ListMovements(ctx, staff(), f.variant.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementIn, movements[0].Direction)
	assert.Equal(t, 5, movements[0].Quantity)
	assert.Equal(t, models.MovementOut, movements[1].Direction)
	assert.Equal(t, o.OrderCode, movements[1].Reason)

	_, err = f.svc.ListMovements(ctx, customer, f.variant.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.ListMovements(ctx, staff(), f.variant.ID+999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
