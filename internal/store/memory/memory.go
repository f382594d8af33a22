// Package memory is an in-process store.Store used by unit tests. Transactions
// are serialised and run against a copy of the state that replaces the live
// state only when fn returns nil.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type state struct {
	nextID int64

	users       map[int64]models.User
	products    map[int64]models.Product
	variants    map[int64]models.ProductVariant
	movements   []models.InventoryMovement
	carts       map[int64]models.Cart
	cartItems   map[int64][]models.CartItem
	coupons     map[int64]models.Coupon
	redemptions []models.CouponRedemption
	orders      map[int64]models.Order
	orderItems  map[int64][]models.OrderItem
	payments    map[int64]models.Payment
	shipments   map[int64]models.Shipment
}

func newState() *state {
	return &state{
		users:      map[int64]models.User{},
		products:   map[int64]models.Product{},
		variants:   map[int64]models.ProductVariant{},
		carts:      map[int64]models.Cart{},
		cartItems:  map[int64][]models.CartItem{},
		coupons:    map[int64]models.Coupon{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64][]models.OrderItem{},
		payments:   map[int64]models.Payment{},
		shipments:  map[int64]models.Shipment{},
	}
}

// clone copies every table. Pointer fields inside rows are never mutated in
// place, so copying the row values is enough.
func (s *state) clone() *state {
	c := &state{
		nextID:      s.nextID,
		users:       maps.Clone(s.users),
		products:    maps.Clone(s.products),
		variants:    maps.Clone(s.variants),
		movements:   slices.Clone(s.movements),
		carts:       maps.Clone(s.carts),
		cartItems:   make(map[int64][]models.CartItem, len(s.cartItems)),
		coupons:     maps.Clone(s.coupons),
		redemptions: slices.Clone(s.redemptions),
		orders:      maps.Clone(s.orders),
		orderItems:  make(map[int64][]models.OrderItem, len(s.orderItems)),
		payments:    maps.Clone(s.payments),
		shipments:   maps.Clone(s.shipments),
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = slices.Clone(v)
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = slices.Clone(v)
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu    sync.Mutex
	state *state

	// Clock stamps rows whose timestamp is not supplied by the caller.
	Clock func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState(), Clock: time.Now}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&tx{st: working, now: s.Clock}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// seed runs fn against the live state outside of any transaction.
func (s *Store) seed(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

func (s *Store) AddUser(email, name, role string) models.User {
	var u models.User
	s.seed(func(st *state) {
		now := s.Clock()
		u = models.User{ID: st.id(), Email: email, Name: name, Role: role, CreatedAt: now, UpdatedAt: now, Version: 1}
		st.users[u.ID] = u
	})
	return u
}

func (s *Store) AddProduct(name string) models.Product {
	var p models.Product
	s.seed(func(st *state) {
		now := s.Clock()
		p = models.Product{ID: st.id(), Name: name, CreatedAt: now, UpdatedAt: now}
		st.products[p.ID] = p
	})
	return p
}

// AddVariant creates a variant with opening stock and the matching inbound
// movement.
func (s *Store) AddVariant(productID int64, sku, options string, price decimal.Decimal, stock int) models.ProductVariant {
	var v models.ProductVariant
	s.seed(func(st *state) {
		now := s.Clock()
		v = models.ProductVariant{
			ID:          st.id(),
			ProductID:   productID,
			ProductName: st.products[productID].Name,
			SKU:         sku,
			OptionsText: options,
			Price:       price,
			StockQty:    stock,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}
		st.variants[v.ID] = v
		if stock > 0 {
			st.movements = append(st.movements, models.InventoryMovement{
				ID: st.id(), VariantID: v.ID, Direction: models.MovementIn, Quantity: stock, Reason: "opening stock", CreatedAt: now,
			})
		}
	})
	return v
}

func (s *Store) AddCoupon(c models.Coupon) models.Coupon {
	s.seed(func(st *state) {
		c.ID = st.id()
		c.Code = store.NormalizeCouponCode(c.Code)
		c.CreatedAt = s.Clock()
		st.coupons[c.ID] = c
	})
	return c
}

// Stock returns the live stock counter of a variant.
func (s *Store) Stock(variantID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.variants[variantID].StockQty
}

// Redemptions returns how many redemptions a coupon has.
func (s *Store) Redemptions(couponID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.state.redemptions {
		if r.CouponID == couponID {
			n++
		}
	}
	return n
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

type tx struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return &u, nil
}

func (t *tx) GetVariant(_ context.Context, id int64) (*models.ProductVariant, error) {
	v, ok := t.st.variants[id]
	if !ok {
		return nil, database.ErrVariantNotFound
	}
	return &v, nil
}

func (t *tx) LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	return t.GetVariant(ctx, id)
}

func (t *tx) DebitStock(_ context.Context, variantID int64, qty int) error {
	v, ok := t.st.variants[variantID]
	if !ok || v.StockQty < qty {
		return database.ErrInsufficientStock
	}
	v.StockQty -= qty
	v.Version++
	v.UpdatedAt = t.now()
	t.st.variants[variantID] = v
	return nil
}

func (t *tx) CreditStock(_ context.Context, variantID int64, qty int) error {
	v, ok := t.st.variants[variantID]
	if !ok {
		return database.ErrVariantNotFound
	}
	v.StockQty += qty
	v.Version++
	v.UpdatedAt = t.now()
	t.st.variants[variantID] = v
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m *models.InventoryMovement) error {
	m.ID = t.st.id()
	t.st.movements = append(t.st.movements, *m)
	return nil
}

func (t *tx) ListMovements(_ context.Context, variantID int64) ([]models.InventoryMovement, error) {
	var out []models.InventoryMovement
	for _, m := range t.st.movements {
		if m.VariantID == variantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) findCart(owner models.Owner) (models.Cart, bool) {
	for _, c := range t.st.carts {
		if owner.UserID != nil && c.UserID != nil && *c.UserID == *owner.UserID {
			return c, true
		}
		if owner.UserID == nil && owner.SessionID != "" && c.SessionID == owner.SessionID {
			return c, true
		}
	}
	return models.Cart{}, false
}

func (t *tx) GetCart(_ context.Context, owner models.Owner) (*models.Cart, error) {
	c, ok := t.findCart(owner)
	if !ok {
		return nil, database.ErrCartNotFound
	}
	c.Items = slices.Clone(t.st.cartItems[c.ID])
	if c.Items == nil {
		c.Items = []models.CartItem{}
	}
	return &c, nil
}

func (t *tx) LockCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	return t.GetCart(ctx, owner)
}

func (t *tx) CreateCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	if _, ok := t.findCart(owner); !ok {
		now := t.now()
		c := models.Cart{ID: t.st.id(), UserID: owner.UserID, SessionID: owner.SessionID, CreatedAt: now, UpdatedAt: now}
		if owner.UserID != nil {
			c.SessionID = ""
		}
		t.st.carts[c.ID] = c
	}
	return t.GetCart(ctx, owner)
}

func (t *tx) AddCartItem(_ context.Context, cartID, variantID int64, qty int, price decimal.Decimal) error {
	items := t.st.cartItems[cartID]
	for i := range items {
		if items[i].VariantID == variantID {
			items[i].Quantity += qty
			t.st.cartItems[cartID] = items
			return nil
		}
	}
	t.st.cartItems[cartID] = append(items, models.CartItem{
		ID: t.st.id(), CartID: cartID, VariantID: variantID, Quantity: qty, PriceAtAdd: price, CreatedAt: t.now(),
	})
	return nil
}

func (t *tx) SetCartItemQuantity(_ context.Context, cartID, variantID int64, qty int) error {
	items := t.st.cartItems[cartID]
	for i := range items {
		if items[i].VariantID == variantID {
			items[i].Quantity = qty
			return nil
		}
	}
	return database.ErrCartItemNotFound
}

func (t *tx) RemoveCartItem(_ context.Context, cartID, variantID int64) error {
	items := t.st.cartItems[cartID]
	for i := range items {
		if items[i].VariantID == variantID {
			t.st.cartItems[cartID] = slices.Delete(items, i, i+1)
			return nil
		}
	}
	return database.ErrCartItemNotFound
}

func (t *tx) ClearCart(_ context.Context, cartID int64) error {
	delete(t.st.cartItems, cartID)
	return nil
}

func (t *tx) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	code = store.NormalizeCouponCode(code)
	for _, c := range t.st.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, database.ErrCouponNotFound
}

func (t *tx) LockCoupon(_ context.Context, id int64) (*models.Coupon, error) {
	c, ok := t.st.coupons[id]
	if !ok {
		return nil, database.ErrCouponNotFound
	}
	return &c, nil
}

func (t *tx) CountRedemptions(_ context.Context, couponID int64) (int, error) {
	n := 0
	for _, r := range t.st.redemptions {
		if r.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertRedemption(_ context.Context, r *models.CouponRedemption) error {
	r.ID = t.st.id()
	t.st.redemptions = append(t.st.redemptions, *r)
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o *models.Order) (bool, error) {
	for _, existing := range t.st.orders {
		if existing.OrderCode == o.OrderCode {
			return false, nil
		}
	}
	o.ID = t.st.id()
	o.Version = 1
	o.UpdatedAt = o.CreatedAt
	row := *o
	row.Items, row.Payment, row.Shipment = nil, nil, nil
	t.st.orders[o.ID] = row
	return true, nil
}

func (t *tx) InsertOrderItem(_ context.Context, item *models.OrderItem) error {
	item.ID = t.st.id()
	t.st.orderItems[item.OrderID] = append(t.st.orderItems[item.OrderID], *item)
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p *models.Payment) error {
	p.ID = t.st.id()
	t.st.payments[p.OrderID] = *p
	return nil
}

func (t *tx) InsertShipment(_ context.Context, s *models.Shipment) error {
	s.ID = t.st.id()
	t.st.shipments[s.OrderID] = *s
	return nil
}

func (t *tx) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	o.Items = slices.Clone(t.st.orderItems[id])
	if p, ok := t.st.payments[id]; ok {
		o.Payment = &p
	}
	if s, ok := t.st.shipments[id]; ok {
		o.Shipment = &s
	}
	return &o, nil
}

func (t *tx) LockOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return &o, nil
}

func (t *tx) ListOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return slices.Clone(t.st.orderItems[orderID]), nil
}

func (t *tx) ListOrders(_ context.Context, owner models.Owner, cursor string, limit int) (*store.OrderPage, error) {
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	for _, o := range t.st.orders {
		switch {
		case owner.UserID != nil:
			if o.UserID == nil || *o.UserID != *owner.UserID {
				continue
			}
		case owner.SessionID != "":
			if o.GuestSessionID != owner.SessionID {
				continue
			}
		}
		if o.CreatedAt.After(c.CreatedAt) || (o.CreatedAt.Equal(c.CreatedAt) && o.ID >= c.ID) {
			continue
		}
		orders = append(orders, o)
	}

	slices.SortFunc(orders, func(a, b models.Order) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if len(orders) > limit+1 {
		orders = orders[:limit+1]
	}
	return store.Paginate(orders, limit), nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return database.ErrOrderNotFound
	}
	o.Status = status
	o.Version++
	o.UpdatedAt = t.now()
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) MarkPaymentPaid(_ context.Context, orderID int64, at time.Time) error {
	p, ok := t.st.payments[orderID]
	if !ok || p.Status == models.PaymentPaid {
		return nil
	}
	p.Status = models.PaymentPaid
	p.PaidAt = &at
	t.st.payments[orderID] = p
	return nil
}

func (t *tx) MarkShipmentShipped(_ context.Context, orderID int64, at time.Time) error {
	s, ok := t.st.shipments[orderID]
	if !ok {
		return nil
	}
	s.Status = models.ShipmentShipping
	if s.ShippedAt == nil {
		s.ShippedAt = &at
	}
	t.st.shipments[orderID] = s
	return nil
}

func (t *tx) MarkShipmentDelivered(_ context.Context, orderID int64, at time.Time) error {
	s, ok := t.st.shipments[orderID]
	if !ok {
		return nil
	}
	s.Status = models.ShipmentDelivered
	if s.DeliveredAt == nil {
		s.DeliveredAt = &at
	}
	t.st.shipments[orderID] = s
	return nil
}
