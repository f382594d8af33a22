package orders

import (
	"context"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

// Cancel is the customer cancellation. The order must belong to the caller
// and still be pending or confirmed; its stock is returned to the ledger and
// the status set to cancelled in the same transaction. Coupon redemptions
// and the payment row are left as they are.
func (s *Service) Cancel(ctx context.Context, id models.Identity, orderID int64) (*Result, error) {
	res, err := s.cancel(ctx, id, orderID)
	s.metrics.Cancellation(apperr.CodeOf(err))
	return res, err
}

func (s *Service) cancel(ctx context.Context, id models.Identity, orderID int64) (*Result, error) {
	if id.IsStaff() {
		return nil, apperr.Forbidden("staff cancel orders through a status update")
	}
	if !id.Owner().Valid() {
		return nil, apperr.Unauthorized("sign in or start a guest session first")
	}

	var order *models.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		order = nil
		now := s.now()

		current, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !id.Owns(current) {
			return apperr.Forbidden("order belongs to another customer")
		}
		if !CustomerCancellable(current.Status) {
			return apperr.NotCancellable(current.Status)
		}

		if err := s.applyTransition(ctx, tx, current, models.OrderStatusCancelled, now); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, s.fail("cancel order", err)
	}

	s.metrics.Transition(order.Status)
	s.log.Info("order cancelled by customer",
		"order_id", order.ID,
		"order_code", order.OrderCode,
		"items", len(order.Items))

	return &Result{Order: order, Events: cancelEvents(order, id, s.now())}, nil
}
