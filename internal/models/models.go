package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleGuest    = "guest"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductVariant owns the live stock counter. StockQty is only changed
// through the inventory ledger.
type ProductVariant struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	OptionsText string          `json:"options_text,omitempty"`
	Price       decimal.Decimal `json:"price"`
	StockQty    int             `json:"stock_qty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// DisplayName is the snapshot name written to order items.
func (v ProductVariant) DisplayName() string {
	if v.ProductName == "" {
		return v.SKU
	}
	return v.ProductName
}

const (
	MovementIn  = "in"
	MovementOut = "out"
)

type InventoryMovement struct {
	ID        int64     `json:"id"`
	VariantID int64     `json:"variant_id"`
	Direction string    `json:"direction"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Owner identifies a cart (or guest order) by exactly one of a user id or a
// guest session.
type Owner struct {
	UserID    *int64 `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (o Owner) Valid() bool {
	return (o.UserID != nil) != (o.SessionID != "")
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"cart_id"`
	VariantID  int64           `json:"variant_id"`
	Quantity   int             `json:"quantity"`
	PriceAtAdd decimal.Decimal `json:"price_at_add"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	CouponPercent = "percent"
	CouponFixed   = "fixed"
)

type Coupon struct {
	ID          int64            `json:"id"`
	Code        string           `json:"code"`
	Type        string           `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MinSubtotal *decimal.Decimal `json:"min_subtotal,omitempty"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit  *int             `json:"usage_limit,omitempty"`
	StartsAt    *time.Time       `json:"starts_at,omitempty"`
	EndsAt      *time.Time       `json:"ends_at,omitempty"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
}

type CouponRedemption struct {
	ID             int64           `json:"id"`
	CouponID       int64           `json:"coupon_id"`
	OrderID        int64           `json:"order_id"`
	UserID         *int64          `json:"user_id,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Order struct {
	ID               int64           `json:"id"`
	OrderCode        string          `json:"order_code"`
	UserID           *int64          `json:"user_id,omitempty"`
	GuestSessionID   string          `json:"-"`
	Status           string          `json:"status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	CouponID         *int64          `json:"coupon_id,omitempty"`
	CustomerName     string          `json:"customer_name"`
	CustomerPhone    string          `json:"customer_phone"`
	Email            string          `json:"email,omitempty"`
	ShipAddressLine1 string          `json:"ship_address_line1"`
	ShipAddressLine2 string          `json:"ship_address_line2,omitempty"`
	ShipCity         string          `json:"ship_city"`
	ShipProvince     string          `json:"ship_province"`
	ShipPostalCode   string          `json:"ship_postal_code,omitempty"`
	ShipCountry      string          `json:"ship_country,omitempty"`
	Note             string          `json:"note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int             `json:"version"`
	Items            []OrderItem     `json:"items,omitempty"`
	Payment          *Payment        `json:"payment,omitempty"`
	Shipment         *Shipment       `json:"shipment,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	VariantID   *int64          `json:"variant_id,omitempty"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	OptionsText string          `json:"options_text,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

type Payment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	ShipmentPending   = "pending"
	ShipmentShipping  = "shipping"
	ShipmentDelivered = "delivered"
)

type Shipment struct {
	ID          int64      `json:"id"`
	OrderID     int64      `json:"order_id"`
	Status      string     `json:"status"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusReturned   = "returned"
)

const (
	PaymentMethodCOD          = "cod"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodEWallet      = "e_wallet"
)

// Identity is the caller as resolved by the auth layer: a signed-in user, or
// a guest known only by session id.
type Identity struct {
	UserID    *int64 `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
}

func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff || i.Role == RoleAdmin
}

// Owner is the cart and order owner key of the caller. A signed-in user
// always owns by user id.
func (i Identity) Owner() Owner {
	if i.UserID != nil {
		return Owner{UserID: i.UserID}
	}
	return Owner{SessionID: i.SessionID}
}

// Owns reports whether o was placed by this caller.
func (i Identity) Owns(o *Order) bool {
	if i.UserID != nil {
		return o.UserID != nil && *o.UserID == *i.UserID
	}
	return i.SessionID != "" && o.UserID == nil && o.GuestSessionID == i.SessionID
}
