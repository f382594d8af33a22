package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

const orderColumns = `
		id, order_code, user_id, guest_session_id, status,
		subtotal, discount_total, shipping_fee, grand_total, coupon_id,
		customer_name, customer_phone, email,
		ship_address_line1, ship_address_line2, ship_city, ship_province,
		ship_postal_code, ship_country, note,
		created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		userID    sql.NullInt64
		sessionID sql.NullString
		couponID  sql.NullInt64
	)

	err := row.Scan(
		&o.ID,
		&o.OrderCode,
		&userID,
		&sessionID,
		&o.Status,
		&o.Subtotal,
		&o.DiscountTotal,
		&o.ShippingFee,
		&o.GrandTotal,
		&couponID,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.Email,
		&o.ShipAddressLine1,
		&o.ShipAddressLine2,
		&o.ShipCity,
		&o.ShipProvince,
		&o.ShipPostalCode,
		&o.ShipCountry,
		&o.Note,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		o.UserID = &id
	}
	o.GuestSessionID = sessionID.String
	if couponID.Valid {
		id := couponID.Int64
		o.CouponID = &id
	}
	return o, nil
}

// InsertOrder reports false when the order code is already taken. ON CONFLICT
// keeps the surrounding transaction usable so the caller can retry with a new
// code.
func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) (bool, error) {
	var sessionID sql.NullString
	if o.GuestSessionID != "" {
		sessionID = sql.NullString{String: o.GuestSessionID, Valid: true}
	}

	err := t.q.QueryRowContext(ctx,
		`INSERT INTO orders (order_code, user_id, guest_session_id, status,
		                     subtotal, discount_total, shipping_fee, grand_total, coupon_id,
		                     customer_name, customer_phone, email,
		                     ship_address_line1, ship_address_line2, ship_city, ship_province,
		                     ship_postal_code, ship_country, note,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20, 1)
		 ON CONFLICT (order_code) DO NOTHING
		 RETURNING id, version`,
		o.OrderCode,
		nullInt64(o.UserID),
		sessionID,
		o.Status,
		o.Subtotal,
		o.DiscountTotal,
		o.ShippingFee,
		o.GrandTotal,
		nullInt64(o.CouponID),
		o.CustomerName,
		o.CustomerPhone,
		o.Email,
		o.ShipAddressLine1,
		o.ShipAddressLine2,
		o.ShipCity,
		o.ShipProvince,
		o.ShipPostalCode,
		o.ShipCountry,
		o.Note,
		o.CreatedAt,
	).Scan(&o.ID, &o.Version)
	if err != nil {
		if database.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("create order: %w", err)
	}

	o.UpdatedAt = o.CreatedAt
	return true, nil
}

func (t *pgTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, variant_id, sku, name, options_text,
		                          unit_price, quantity, line_total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		item.OrderID,
		item.ProductID,
		nullInt64(item.VariantID),
		item.SKU,
		item.Name,
		item.OptionsText,
		item.UnitPrice,
		item.Quantity,
		item.LineTotal,
		item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, method, status, amount, paid_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.OrderID, p.Method, p.Status, p.Amount, p.PaidAt, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertShipment(ctx context.Context, s *models.Shipment) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO shipments (order_id, status, shipped_at, delivered_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.OrderID, s.Status, s.ShippedAt, s.DeliveredAt, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create shipment: %w", err)
	}
	return nil
}

// GetOrder loads an order with its items, payment and shipment.
func (t *pgTx) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(t.q.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = t.ListOrderItems(ctx, id); err != nil {
		return nil, err
	}
	if order.Payment, err = t.getPayment(ctx, id); err != nil {
		return nil, err
	}
	if order.Shipment, err = t.getShipment(ctx, id); err != nil {
		return nil, err
	}

	return order, nil
}

// LockOrder locks the order row only; related rows are read separately.
func (t *pgTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(t.q.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}
	return order, nil
}

func (t *pgTx) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, variant_id, sku, name, options_text,
		        unit_price, quantity, line_total, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var variantID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&variantID,
			&item.SKU,
			&item.Name,
			&item.OptionsText,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineTotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if variantID.Valid {
			id := variantID.Int64
			item.VariantID = &id
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func (t *pgTx) getPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	p := &models.Payment{}
	var paidAt sql.NullTime
	err := t.q.QueryRowContext(ctx,
		`SELECT id, order_id, method, status, amount, paid_at, created_at
		 FROM payments WHERE order_id = $1`,
		orderID).Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Amount, &paidAt, &p.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return p, nil
}

func (t *pgTx) getShipment(ctx context.Context, orderID int64) (*models.Shipment, error) {
	s := &models.Shipment{}
	var shippedAt, deliveredAt sql.NullTime
	err := t.q.QueryRowContext(ctx,
		`SELECT id, order_id, status, shipped_at, delivered_at, created_at
		 FROM shipments WHERE order_id = $1`,
		orderID).Scan(&s.ID, &s.OrderID, &s.Status, &shippedAt, &deliveredAt, &s.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	if shippedAt.Valid {
		s.ShippedAt = &shippedAt.Time
	}
	if deliveredAt.Valid {
		s.DeliveredAt = &deliveredAt.Time
	}
	return s, nil
}

// ListOrders pages through orders newest first. A zero Owner lists every
// order.
func (t *pgTx) ListOrders(ctx context.Context, owner models.Owner, cursor string, limit int) (*OrderPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	filter := `($1::BIGINT IS NULL OR user_id = $1) AND ($2::TEXT IS NULL OR guest_session_id = $2)`
	var userID sql.NullInt64
	var sessionID sql.NullString
	switch {
	case owner.UserID != nil:
		userID = sql.NullInt64{Int64: *owner.UserID, Valid: true}
	case owner.SessionID != "":
		sessionID = sql.NullString{String: owner.SessionID, Valid: true}
	}

	rows, err := t.q.QueryContext(ctx,
		`SELECT`+orderColumns+`
		 FROM orders
		 WHERE `+filter+`
		   AND (created_at, id) < ($3, $4)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $5`,
		userID, sessionID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return Paginate(orders, limit), nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) MarkPaymentPaid(ctx context.Context, orderID int64, at time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE payments SET status = $1, paid_at = $2 WHERE order_id = $3 AND status <> $1`,
		models.PaymentPaid, at, orderID)
	if err != nil {
		return fmt.Errorf("mark payment paid: %w", err)
	}
	return nil
}

func (t *pgTx) MarkShipmentShipped(ctx context.Context, orderID int64, at time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE shipments SET status = $1, shipped_at = COALESCE(shipped_at, $2) WHERE order_id = $3`,
		models.ShipmentShipping, at, orderID)
	if err != nil {
		return fmt.Errorf("mark shipment shipped: %w", err)
	}
	return nil
}

func (t *pgTx) MarkShipmentDelivered(ctx context.Context, orderID int64, at time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE shipments SET status = $1, delivered_at = COALESCE(delivered_at, $2) WHERE order_id = $3`,
		models.ShipmentDelivered, at, orderID)
	if err != nil {
		return fmt.Errorf("mark shipment delivered: %w", err)
	}
	return nil
}
