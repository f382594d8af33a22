package orders

import (
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
)

const (
	notifyOrderPlaced = "order_placed"
	notifyNewOrder    = "new_order"
	notifyOrderStatus = "order_status"
)

var statusTitles = map[string]string{
	models.OrderStatusConfirmed:  "Order confirmed",
	models.OrderStatusPaid:       "Payment received",
	models.OrderStatusProcessing: "Order is being prepared",
	models.OrderStatusShipped:    "Order shipped",
	models.OrderStatusCompleted:  "Order delivered",
	models.OrderStatusCancelled:  "Order cancelled",
	models.OrderStatusReturned:   "Order returned",
}

func orderLink(o *models.Order) string {
	return fmt.Sprintf("/orders/%d", o.ID)
}

func checkoutEvents(o *models.Order, id models.Identity, now time.Time) []events.Event {
	var out []events.Event

	if o.UserID != nil {
		out = append(out, events.NewNotification(now, events.Notification{
			UserID:  o.UserID,
			Type:    notifyOrderPlaced,
			Title:   "Order placed",
			Message: fmt.Sprintf("Your order %s for %s has been placed.", o.OrderCode, o.GrandTotal.StringFixed(2)),
			Link:    orderLink(o),
		}))
	}

	out = append(out, events.NewNotification(now, events.Notification{
		Audience: events.AudienceStaff,
		Type:     notifyNewOrder,
		Title:    "New order",
		Message:  fmt.Sprintf("Order %s from %s, %d item(s), total %s.", o.OrderCode, o.CustomerName, len(o.Items), o.GrandTotal.StringFixed(2)),
		Link:     orderLink(o),
	}))

	if o.Email != "" {
		out = append(out, events.NewEmail(now, events.Email{
			To:        o.Email,
			OrderCode: o.OrderCode,
			Amount:    o.GrandTotal,
		}))
	}

	out = append(out, events.NewActivity(now, events.Activity{
		UserID:     id.UserID,
		Action:     "checkout",
		EntityType: "order",
		EntityID:   o.ID,
		Details: map[string]any{
			"order_code":  o.OrderCode,
			"grand_total": o.GrandTotal.StringFixed(2),
			"guest":       o.UserID == nil,
		},
	}))

	return out
}

func statusEvents(o *models.Order, actor models.Identity, from string, now time.Time) []events.Event {
	var out []events.Event

	if o.UserID != nil {
		out = append(out, events.NewNotification(now, events.Notification{
			UserID:  o.UserID,
			Type:    notifyOrderStatus,
			Title:   statusTitles[o.Status],
			Message: fmt.Sprintf("Order %s is now %s.", o.OrderCode, o.Status),
			Link:    orderLink(o),
		}))
	}

	out = append(out, events.NewActivity(now, events.Activity{
		UserID:     actor.UserID,
		Action:     "order_status_updated",
		EntityType: "order",
		EntityID:   o.ID,
		Details: map[string]any{
			"order_code": o.OrderCode,
			"from":       from,
			"to":         o.Status,
		},
	}))

	return out
}

func cancelEvents(o *models.Order, actor models.Identity, now time.Time) []events.Event {
	var out []events.Event

	if o.UserID != nil {
		out = append(out, events.NewNotification(now, events.Notification{
			UserID:  o.UserID,
			Type:    notifyOrderStatus,
			Title:   statusTitles[models.OrderStatusCancelled],
			Message: fmt.Sprintf("Order %s has been cancelled.", o.OrderCode),
			Link:    orderLink(o),
		}))
	}

	out = append(out, events.NewNotification(now, events.Notification{
		Audience: events.AudienceStaff,
		Type:     notifyOrderStatus,
		Title:    "Order cancelled by customer",
		Message:  fmt.Sprintf("Order %s was cancelled by the customer.", o.OrderCode),
		Link:     orderLink(o),
	}))

	out = append(out, events.NewActivity(now, events.Activity{
		UserID:     actor.UserID,
		Action:     "order_cancelled",
		EntityType: "order",
		EntityID:   o.ID,
		Details:    map[string]any{"order_code": o.OrderCode},
	}))

	return out
}
