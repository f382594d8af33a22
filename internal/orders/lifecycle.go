package orders

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/inventory"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

var allStatuses = []string{
	models.OrderStatusPending,
	models.OrderStatusConfirmed,
	models.OrderStatusPaid,
	models.OrderStatusProcessing,
	models.OrderStatusShipped,
	models.OrderStatusCompleted,
	models.OrderStatusCancelled,
	models.OrderStatusReturned,
}

var transitions = map[string][]string{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusPaid, models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusPaid, models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusPaid:       {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusCompleted, models.OrderStatusReturned},
}

var customerCancellable = []string{
	models.OrderStatusPending,
	models.OrderStatusConfirmed,
}

func ValidStatus(status string) bool {
	return slices.Contains(allStatuses, status)
}

// Terminal statuses have no outgoing transitions, forced or not.
func Terminal(status string) bool {
	_, ok := transitions[status]
	return !ok
}

func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

func CustomerCancellable(status string) bool {
	return slices.Contains(customerCancellable, status)
}

type StatusUpdate struct {
	Status string `json:"status"`
	// Force lets staff skip the transition table. Terminal orders stay
	// terminal.
	Force bool `json:"force"`
}

// UpdateStatus moves an order to a new status and applies the payment,
// shipment or stock side effects of the target status. Staff only.
func (s *Service) UpdateStatus(ctx context.Context, id models.Identity, orderID int64, upd StatusUpdate) (*Result, error) {
	if err := requireStaff(id); err != nil {
		return nil, err
	}
	if !ValidStatus(upd.Status) {
		return nil, apperr.Business(apperr.CodeInvalidStatus, fmt.Sprintf("unknown order status %q", upd.Status))
	}

	var (
		order *models.Order
		from  string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		order, from = nil, ""
		now := s.now()

		current, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from = current.Status

		if err := checkTransition(from, upd); err != nil {
			return err
		}
		if err := s.applyTransition(ctx, tx, current, upd.Status, now); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, s.fail("update order status", err)
	}

	s.metrics.Transition(order.Status)
	s.log.Info("order status updated",
		"order_id", order.ID,
		"order_code", order.OrderCode,
		"from", from,
		"to", order.Status,
		"forced", upd.Force)

	return &Result{Order: order, Events: statusEvents(order, id, from, s.now())}, nil
}

func checkTransition(from string, upd StatusUpdate) error {
	invalid := apperr.Business(apperr.CodeInvalidTransition,
		fmt.Sprintf("cannot change order status from %s to %s", from, upd.Status))

	if from == upd.Status || Terminal(from) {
		return invalid
	}
	if !upd.Force && !CanTransition(from, upd.Status) {
		return invalid
	}
	return nil
}

// applyTransition writes the new status and its side effects. Moving to
// cancelled always restocks, whoever triggers it.
func (s *Service) applyTransition(ctx context.Context, tx store.Tx, o *models.Order, to string, now time.Time) error {
	switch to {
	case models.OrderStatusPaid:
		if err := tx.MarkPaymentPaid(ctx, o.ID, now); err != nil {
			return err
		}
	case models.OrderStatusShipped:
		if err := tx.MarkShipmentShipped(ctx, o.ID, now); err != nil {
			return err
		}
	case models.OrderStatusCompleted:
		if err := tx.MarkShipmentDelivered(ctx, o.ID, now); err != nil {
			return err
		}
	case models.OrderStatusCancelled:
		if err := restock(ctx, tx, o, now); err != nil {
			return err
		}
	}
	return tx.UpdateOrderStatus(ctx, o.ID, to)
}

// restock credits back every line that still references a variant. It is
// the exact inverse of the checkout debit.
func restock(ctx context.Context, tx store.Tx, o *models.Order, now time.Time) error {
	items, err := tx.ListOrderItems(ctx, o.ID)
	if err != nil {
		return err
	}
	reason := inventory.CancelReason(o.OrderCode)
	for _, item := range items {
		if item.VariantID == nil {
			continue
		}
		if err := inventory.Credit(ctx, tx, *item.VariantID, item.Quantity, reason, now); err != nil {
			return err
		}
	}
	return nil
}
