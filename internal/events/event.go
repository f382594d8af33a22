// Package events carries the side channels of the order core. Operations
// return events alongside their committed result; the boundary hands them to
// a Dispatcher which delivers them to a Sink after the transaction is done.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindNotification Kind = "notification"
	KindEmail        Kind = "email"
	KindActivity     Kind = "activity"
)

// AudienceStaff addresses a notification to every staff member instead of a
// single user.
const AudienceStaff = "staff"

type Event struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	Notify     *Notification `json:"notification,omitempty"`
	Email      *Email        `json:"email,omitempty"`
	Activity   *Activity     `json:"activity,omitempty"`
}

type Notification struct {
	UserID   *int64 `json:"user_id,omitempty"`
	Audience string `json:"audience,omitempty"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Link     string `json:"link,omitempty"`
}

type Email struct {
	To        string          `json:"to"`
	OrderCode string          `json:"order_code"`
	Amount    decimal.Decimal `json:"amount"`
}

type Activity struct {
	UserID     *int64         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
}

func newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func NewNotification(at time.Time, n Notification) Event {
	return Event{ID: newID(at), Kind: KindNotification, OccurredAt: at, Notify: &n}
}

func NewEmail(at time.Time, e Email) Event {
	return Event{ID: newID(at), Kind: KindEmail, OccurredAt: at, Email: &e}
}

func NewActivity(at time.Time, a Activity) Event {
	return Event{ID: newID(at), Kind: KindActivity, OccurredAt: at, Activity: &a}
}

// RoutingKey is the topic-exchange key (and Kafka message key) of the event.
func (e Event) RoutingKey() string {
	switch e.Kind {
	case KindNotification:
		if e.Notify != nil {
			return "notification." + e.Notify.Type
		}
	case KindEmail:
		return "email.order_confirmation"
	case KindActivity:
		if e.Activity != nil {
			return "activity." + e.Activity.Action
		}
	}
	return string(e.Kind)
}
