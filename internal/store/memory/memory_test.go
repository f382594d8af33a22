package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	p := s.AddProduct("Tee")
	v := s.AddVariant(p.ID, "TEE-M", "M", decimal.NewFromInt(100), 5)

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.DebitStock(context.Background(), v.ID, 3))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, s.Stock(v.ID))

	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.DebitStock(context.Background(), v.ID, 3)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stock(v.ID))
}

func TestDebitStock_Insufficient(t *testing.T) {
	s := New()
	p := s.AddProduct("Tee")
	v := s.AddVariant(p.ID, "TEE-M", "M", decimal.NewFromInt(100), 1)

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.DebitStock(context.Background(), v.ID, 2)
	})
	assert.ErrorIs(t, err, database.ErrInsufficientStock)
	assert.Equal(t, 1, s.Stock(v.ID))
}

func TestCart_AddIncrementsExistingLine(t *testing.T) {
	s := New()
	p := s.AddProduct("Tee")
	v := s.AddVariant(p.ID, "TEE-M", "M", decimal.NewFromInt(100), 10)
	owner := models.Owner{SessionID: "sess-1"}

	var cart *models.Cart
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		c, err := tx.CreateCart(context.Background(), owner)
		if err != nil {
			return err
		}
		if err := tx.AddCartItem(context.Background(), c.ID, v.ID, 1, v.Price); err != nil {
			return err
		}
		if err := tx.AddCartItem(context.Background(), c.ID, v.ID, 2, v.Price); err != nil {
			return err
		}
		cart, err = tx.GetCart(context.Background(), owner)
		return err
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestInsertOrder_DuplicateCode(t *testing.T) {
	s := New()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		ok, err := tx.InsertOrder(context.Background(), &models.Order{OrderCode: "ORD-20240101-AAAAAAAA", Status: models.OrderStatusPending})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.InsertOrder(context.Background(), &models.Order{OrderCode: "ORD-20240101-AAAAAAAA", Status: models.OrderStatusPending})
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.OrderCount())
}
