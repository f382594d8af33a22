package orders

import (
	"context"
	"testing"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.OrderStatusPending, models.OrderStatusConfirmed, true},
		{models.OrderStatusPending, models.OrderStatusPaid, true},
		{models.OrderStatusPending, models.OrderStatusProcessing, true},
		{models.OrderStatusPending, models.OrderStatusCancelled, true},
		{models.OrderStatusPending, models.OrderStatusShipped, false},
		{models.OrderStatusConfirmed, models.OrderStatusPaid, true},
		{models.OrderStatusPaid, models.OrderStatusProcessing, true},
		{models.OrderStatusPaid, models.OrderStatusPending, false},
		{models.OrderStatusProcessing, models.OrderStatusShipped, true},
		{models.OrderStatusProcessing, models.OrderStatusCancelled, true},
		{models.OrderStatusShipped, models.OrderStatusCompleted, true},
		{models.OrderStatusShipped, models.OrderStatusReturned, true},
		{models.OrderStatusShipped, models.OrderStatusCancelled, false},
		{models.OrderStatusCompleted, models.OrderStatusReturned, false},
		{models.OrderStatusCancelled, models.OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusReturned} {
		assert.True(t, Terminal(s), s)
	}
	for _, s := range []string{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusPaid, models.OrderStatusProcessing, models.OrderStatusShipped} {
		assert.False(t, Terminal(s), s)
	}
}

func placeOrder(t *testing.T, f *fixture, id models.Identity, qty int) *models.Order {
	t.Helper()
	f.addToCart(t, id, f.variant.ID, qty)
	res, err := f.svc.Checkout(context.Background(), id, validInput())
	require.NoError(t, err)
	return res.Order
}

func advance(t *testing.T, f *fixture, orderID int64, statuses ...string) *models.Order {
	t.Helper()
	var o *models.Order
	for _, s := range statuses {
		res, err := f.svc.UpdateStatus(context.Background(), staff(), orderID, StatusUpdate{Status: s})
		require.NoError(t, err, "to %s", s)
		o = res.Order
	}
	return o
}

func TestUpdateStatus_SideEffects(t *testing.T) {
	f := newFixture(t, 5)
	customer := f.customer("a@example.com")
	o := placeOrder(t, f, customer, 1)

	o = advance(t, f, o.ID, models.OrderStatusConfirmed, models.OrderStatusPaid)
	assert.Equal(t, models.PaymentPaid, o.Payment.Status)
	require.NotNil(t, o.Payment.PaidAt)
	assert.True(t, o.Payment.PaidAt.Equal(testNow))

	o = advance(t, f, o.ID, models.OrderStatusProcessing, models.OrderStatusShipped)
	assert.Equal(t, models.ShipmentShipping, o.Shipment.Status)
	require.NotNil(t, o.Shipment.ShippedAt)
	assert.Nil(t, o.Shipment.DeliveredAt)

	o = advance(t, f, o.ID, models.OrderStatusCompleted)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Equal(t, models.ShipmentDelivered, o.Shipment.Status)
	require.NotNil(t, o.Shipment.DeliveredAt)

	assert.Equal(t, 4, f.st.Stock(f.variant.ID))
}

func TestUpdateStatus_Events(t *testing.T) {
	f := newFixture(t, 5)
	customer := f.customer("a@example.com")
	o := placeOrder(t, f, customer, 1)

	res, err := f.svc.UpdateStatus(context.Background(), staff(), o.ID, StatusUpdate{Status: models.OrderStatusShipped, Force: true})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "notification.order_status", res.Events[0].RoutingKey())
	assert.Equal(t, "Order shipped", res.Events[0].Notify.Title)
	assert.Equal(t, customer.UserID, res.Events[0].Notify.UserID)
	assert.Equal(t, "activity.order_status_updated", res.Events[1].RoutingKey())
	assert.Equal(t, models.OrderStatusPending, res.Events[1].Activity.Details["from"])
}

func TestUpdateStatus_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		prepare  []string
		identity models.Identity
		update   StatusUpdate
		orderID  func(o *models.Order) int64
		wantKind apperr.Kind
		wantCode string
	}{
		{
			name:     "customer cannot update",
			identity: models.Identity{SessionID: "s", Role: models.RoleCustomer},
			update:   StatusUpdate{Status: models.OrderStatusPaid},
			wantKind: apperr.KindForbidden,
			wantCode: apperr.CodeForbidden,
		},
		{
			name:     "unknown status",
			identity: staff(),
			update:   StatusUpdate{Status: "lost"},
			wantKind: apperr.KindBusinessRule,
			wantCode: apperr.CodeInvalidStatus,
		},
		{
			name:     "missing order",
			identity: staff(),
			update:   StatusUpdate{Status: models.OrderStatusPaid},
			orderID:  func(o *models.Order) int64 { return o.ID + 999 },
			wantKind: apperr.KindNotFound,
			wantCode: apperr.CodeNotFound,
		},
		{
			name:     "skipping states",
			identity: staff(),
			update:   StatusUpdate{Status: models.OrderStatusCompleted},
			wantKind: apperr.KindBusinessRule,
			wantCode: apperr.CodeInvalidTransition,
		},
		{
			name:     "same status",
			identity: staff(),
			update:   StatusUpdate{Status: models.OrderStatusPending},
			wantKind: apperr.KindBusinessRule,
			wantCode: apperr.CodeInvalidTransition,
		},
		{
			name:     "forced out of terminal",
			prepare:  []string{models.OrderStatusCancelled},
			identity: staff(),
			update:   StatusUpdate{Status: models.OrderStatusPending, Force: true},
			wantKind: apperr.KindBusinessRule,
			wantCode: apperr.CodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			o := placeOrder(t, f, f.customer("a@example.com"), 1)
			if len(tt.prepare) > 0 {
				o = advance(t, f, o.ID, tt.prepare...)
			}
			stock := f.st.Stock(f.variant.ID)

			orderID := o.ID
			if tt.orderID != nil {
				orderID = tt.orderID(o)
			}
			_, err := f.svc.UpdateStatus(context.Background(), tt.identity, orderID, tt.update)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
			assert.Equal(t, stock, f.st.Stock(f.variant.ID))
		})
	}
}

func TestUpdateStatus_ForcedSkip(t *testing.T) {
	f := newFixture(t, 5)
	o := placeOrder(t, f, f.customer("a@example.com"), 1)

	res, err := f.svc.UpdateStatus(context.Background(), staff(), o.ID, StatusUpdate{Status: models.OrderStatusCompleted, Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.Order.Status)
	assert.Equal(t, models.ShipmentDelivered, res.Order.Shipment.Status)
}

func TestUpdateStatus_StaffCancelRestocks(t *testing.T) {
	f := newFixture(t, 5)
	o := placeOrder(t, f, f.customer("a@example.com"), 3)
	advance(t, f, o.ID, models.OrderStatusPaid, models.OrderStatusProcessing)
	require.Equal(t, 2, f.st.Stock(f.variant.ID))

	o = advance(t, f, o.ID, models.OrderStatusCancelled)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.Equal(t, 5, f.st.Stock(f.variant.ID))
	// payment stays as it was
	assert.Equal(t, models.PaymentPaid, o.Payment.Status)
}
