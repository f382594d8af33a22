package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const cartSelect = `
		SELECT id, user_id, session_id, created_at, updated_at
		FROM carts`

func ownerClause(owner models.Owner) (string, any) {
	if owner.UserID != nil {
		return ` WHERE user_id = $1`, *owner.UserID
	}
	return ` WHERE session_id = $1`, owner.SessionID
}

func (t *pgTx) loadCart(ctx context.Context, owner models.Owner, suffix string) (*models.Cart, error) {
	if !owner.Valid() {
		return nil, fmt.Errorf("cart owner must name exactly one of user or session")
	}

	where, arg := ownerClause(owner)

	cart := &models.Cart{}
	var userID sql.NullInt64
	var sessionID sql.NullString

	err := t.q.QueryRowContext(ctx, cartSelect+where+suffix, arg).Scan(
		&cart.ID,
		&userID,
		&sessionID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if userID.Valid {
		id := userID.Int64
		cart.UserID = &id
	}
	cart.SessionID = sessionID.String

	items, err := t.listCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func (t *pgTx) GetCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	return t.loadCart(ctx, owner, "")
}

// LockCart serialises checkouts of the same cart.
func (t *pgTx) LockCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	return t.loadCart(ctx, owner, ` FOR UPDATE`)
}

// CreateCart returns the owner's cart, creating it when missing. A concurrent
// create is absorbed by the partial unique indexes.
func (t *pgTx) CreateCart(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	if !owner.Valid() {
		return nil, fmt.Errorf("cart owner must name exactly one of user or session")
	}

	var userID sql.NullInt64
	var sessionID sql.NullString
	if owner.UserID != nil {
		userID = sql.NullInt64{Int64: *owner.UserID, Valid: true}
	} else {
		sessionID = sql.NullString{String: owner.SessionID, Valid: true}
	}

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO carts (user_id, session_id, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT DO NOTHING`,
		userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return t.loadCart(ctx, owner, "")
}

func (t *pgTx) listCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, cart_id, variant_id, quantity, price_at_add, created_at
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.VariantID, &item.Quantity, &item.PriceAtAdd, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// AddCartItem adds qty to an existing line or creates it. The price snapshot
// of an existing line is kept.
func (t *pgTx) AddCartItem(ctx context.Context, cartID, variantID int64, qty int, price decimal.Decimal) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, variant_id, quantity, price_at_add, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (cart_id, variant_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, variantID, qty, price)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return t.touchCart(ctx, cartID)
}

func (t *pgTx) SetCartItemQuantity(ctx context.Context, cartID, variantID int64, qty int) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND variant_id = $3`,
		qty, cartID, variantID)
	if err != nil {
		return fmt.Errorf("set cart item quantity: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrCartItemNotFound
	}
	return t.touchCart(ctx, cartID)
}

func (t *pgTx) RemoveCartItem(ctx context.Context, cartID, variantID int64) error {
	result, err := t.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variantID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrCartItemNotFound
	}
	return t.touchCart(ctx, cartID)
}

func (t *pgTx) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return t.touchCart(ctx, cartID)
}

func (t *pgTx) touchCart(ctx context.Context, cartID int64) error {
	if _, err := t.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
