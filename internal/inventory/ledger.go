// Package inventory is the only writer of variant stock. Every change to the
// counter is paired with an append-only movement row in the same transaction.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/models"
)

// Repo is the slice of store.Tx the ledger needs.
type Repo interface {
	DebitStock(ctx context.Context, variantID int64, qty int) error
	CreditStock(ctx context.Context, variantID int64, qty int) error
	InsertMovement(ctx context.Context, m *models.InventoryMovement) error
}

// CancelReason is the movement note written when an order's stock is
// returned.
func CancelReason(orderCode string) string {
	return "cancelled " + orderCode
}

// Debit removes qty units from a variant. The store rejects the debit with
// database.ErrInsufficientStock when it would take stock below zero.
func Debit(ctx context.Context, repo Repo, variantID int64, qty int, reason string, at time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", qty)
	}
	if err := repo.DebitStock(ctx, variantID, qty); err != nil {
		return fmt.Errorf("debit variant %d: %w", variantID, err)
	}
	return record(ctx, repo, variantID, models.MovementOut, qty, reason, at)
}

// Credit returns qty units to a variant.
func Credit(ctx context.Context, repo Repo, variantID int64, qty int, reason string, at time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %d", qty)
	}
	if err := repo.CreditStock(ctx, variantID, qty); err != nil {
		return fmt.Errorf("credit variant %d: %w", variantID, err)
	}
	return record(ctx, repo, variantID, models.MovementIn, qty, reason, at)
}

func record(ctx context.Context, repo Repo, variantID int64, direction string, qty int, reason string, at time.Time) error {
	m := &models.InventoryMovement{
		VariantID: variantID,
		Direction: direction,
		Quantity:  qty,
		Reason:    reason,
		CreatedAt: at,
	}
	if err := repo.InsertMovement(ctx, m); err != nil {
		return fmt.Errorf("record movement: %w", err)
	}
	return nil
}

// Balance is the stock implied by a movement history.
func Balance(movements []models.InventoryMovement) int {
	total := 0
	for _, m := range movements {
		switch m.Direction {
		case models.MovementIn:
			total += m.Quantity
		case models.MovementOut:
			total -= m.Quantity
		}
	}
	return total
}
