// Package store is the data-access layer. Store and Tx are the handles the
// order core is written against; Postgres is the production implementation
// and store/memory backs unit tests.
package store

import (
	"context"
	"time"

	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

type Store interface {
	// WithTx runs fn in one all-or-nothing transaction. fn may be invoked
	// more than once when the transaction is retried.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a transaction. Lock* methods
// hold a row lock until the transaction ends.
type Tx interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)

	GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	DebitStock(ctx context.Context, variantID int64, qty int) error
	CreditStock(ctx context.Context, variantID int64, qty int) error
	InsertMovement(ctx context.Context, m *models.InventoryMovement) error
	ListMovements(ctx context.Context, variantID int64) ([]models.InventoryMovement, error)

	GetCart(ctx context.Context, owner models.Owner) (*models.Cart, error)
	LockCart(ctx context.Context, owner models.Owner) (*models.Cart, error)
	CreateCart(ctx context.Context, owner models.Owner) (*models.Cart, error)
	AddCartItem(ctx context.Context, cartID, variantID int64, qty int, price decimal.Decimal) error
	SetCartItemQuantity(ctx context.Context, cartID, variantID int64, qty int) error
	RemoveCartItem(ctx context.Context, cartID, variantID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockCoupon(ctx context.Context, id int64) (*models.Coupon, error)
	CountRedemptions(ctx context.Context, couponID int64) (int, error)
	InsertRedemption(ctx context.Context, r *models.CouponRedemption) error

	// InsertOrder reports false without error when the order code is taken.
	InsertOrder(ctx context.Context, o *models.Order) (bool, error)
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	InsertPayment(ctx context.Context, p *models.Payment) error
	InsertShipment(ctx context.Context, s *models.Shipment) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrders(ctx context.Context, owner models.Owner, cursor string, limit int) (*OrderPage, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	MarkPaymentPaid(ctx context.Context, orderID int64, at time.Time) error
	MarkShipmentShipped(ctx context.Context, orderID int64, at time.Time) error
	MarkShipmentDelivered(ctx context.Context, orderID int64, at time.Time) error
}
