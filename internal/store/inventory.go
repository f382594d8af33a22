package store

import (
	"context"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// DebitStock decrements stock only when enough is left; zero rows affected
// means another transaction got there first.
func (t *pgTx) DebitStock(ctx context.Context, variantID int64, qty int) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_qty = stock_qty - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_qty >= $1`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("debit stock: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrInsufficientStock
	}
	return nil
}

func (t *pgTx) CreditStock(ctx context.Context, variantID int64, qty int) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_qty = stock_qty + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("credit stock: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrVariantNotFound
	}
	return nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m *models.InventoryMovement) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO inventory_movements (variant_id, direction, quantity, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		m.VariantID, m.Direction, m.Quantity, m.Reason, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

func (t *pgTx) ListMovements(ctx context.Context, variantID int64) ([]models.InventoryMovement, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, variant_id, direction, quantity, reason, created_at
		 FROM inventory_movements
		 WHERE variant_id = $1
		 ORDER BY created_at, id`,
		variantID)
	if err != nil {
		return nil, fmt.Errorf("list inventory movements: %w", err)
	}
	defer rows.Close()

	var movements []models.InventoryMovement
	for rows.Next() {
		var m models.InventoryMovement
		if err := rows.Scan(&m.ID, &m.VariantID, &m.Direction, &m.Quantity, &m.Reason, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory movement: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return movements, nil
}
