// Package cart manages the pre-checkout cart of a user or guest session.
// Quantities are checked against stock when added, but checkout re-checks
// them under lock; the cart is advisory.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

const MaxLineQuantity = 999

type Service struct {
	store store.Store
	log   *slog.Logger
}

func NewService(st store.Store, log *slog.Logger) *Service {
	return &Service{store: st, log: log}
}

// Get returns the owner's cart. An owner without a cart gets an empty one
// that is not persisted.
func (s *Service) Get(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		cart, err = tx.GetCart(ctx, owner)
		if errors.Is(err, database.ErrCartNotFound) {
			cart = &models.Cart{UserID: owner.UserID, SessionID: owner.SessionID, Items: []models.CartItem{}}
			return nil
		}
		return err
	})
	if err != nil {
		return nil, s.fail("get cart", err)
	}
	return cart, nil
}

// AddItem adds qty units of a variant, merging with an existing line. The
// current price is captured for display.
func (s *Service) AddItem(ctx context.Context, owner models.Owner, variantID int64, qty int) (*models.Cart, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		v, err := tx.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}

		c, err := tx.CreateCart(ctx, owner)
		if err != nil {
			return err
		}

		total := qty + lineQuantity(c, variantID)
		if total > MaxLineQuantity {
			return apperr.Validation("quantity", fmt.Sprintf("at most %d units per item", MaxLineQuantity))
		}
		if total > v.StockQty {
			return apperr.InsufficientStock(v.SKU, v.DisplayName(), total, v.StockQty)
		}

		if err := tx.AddCartItem(ctx, c.ID, variantID, qty, v.Price); err != nil {
			return err
		}
		cart, err = tx.GetCart(ctx, owner)
		return err
	})
	if err != nil {
		return nil, s.fail("add cart item", err)
	}
	return cart, nil
}

// UpdateItem sets a line's quantity. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, owner models.Owner, variantID int64, qty int) (*models.Cart, error) {
	if qty == 0 {
		return s.RemoveItem(ctx, owner, variantID)
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetCart(ctx, owner)
		if err != nil {
			return err
		}
		v, err := tx.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if qty > v.StockQty {
			return apperr.InsufficientStock(v.SKU, v.DisplayName(), qty, v.StockQty)
		}

		if err := tx.SetCartItemQuantity(ctx, c.ID, variantID, qty); err != nil {
			return err
		}
		cart, err = tx.GetCart(ctx, owner)
		return err
	})
	if err != nil {
		return nil, s.fail("update cart item", err)
	}
	return cart, nil
}

func (s *Service) RemoveItem(ctx context.Context, owner models.Owner, variantID int64) (*models.Cart, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetCart(ctx, owner)
		if err != nil {
			return err
		}
		if err := tx.RemoveCartItem(ctx, c.ID, variantID); err != nil {
			return err
		}
		cart, err = tx.GetCart(ctx, owner)
		return err
	})
	if err != nil {
		return nil, s.fail("remove cart item", err)
	}
	return cart, nil
}

func lineQuantity(c *models.Cart, variantID int64) int {
	for _, item := range c.Items {
		if item.VariantID == variantID {
			return item.Quantity
		}
	}
	return 0
}

func checkOwner(owner models.Owner) error {
	if !owner.Valid() {
		return apperr.Unauthorized("sign in or start a guest session first")
	}
	return nil
}

func checkQuantity(qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity", "quantity must be greater than zero")
	}
	return nil
}

func (s *Service) fail(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, database.ErrVariantNotFound):
		return apperr.NotFound("product variant not found")
	case errors.Is(err, database.ErrCartNotFound), errors.Is(err, database.ErrCartItemNotFound):
		return apperr.NotFound("item is not in the cart")
	}

	s.log.Error(op+" failed", "error", err)
	return apperr.Internal(op+" failed", err)
}
