// Package orders holds the checkout orchestrator, the order lifecycle state
// machine and the cancellation compensator. Every mutating operation runs in
// one store transaction and returns the events to dispatch once it has
// committed.
package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/store"
)

const defaultCodeAttempts = 5

type Service struct {
	store   store.Store
	pricing *pricing.Engine
	log     *slog.Logger
	metrics *metrics.Metrics

	now          func() time.Time
	newCode      func(time.Time) string
	codeAttempts int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces NewOrderCode; tests use it to force collisions.
func WithCodeGenerator(gen func(time.Time) string) Option {
	return func(s *Service) { s.newCode = gen }
}

func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, engine *pricing.Engine, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        st,
		pricing:      engine,
		log:          log,
		now:          time.Now,
		newCode:      NewOrderCode,
		codeAttempts: defaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is a committed order plus the side-channel events it produced.
type Result struct {
	Order  *models.Order
	Events []events.Event
	// CouponErr is set when a requested coupon was not applied. Checkout
	// still succeeds in that case.
	CouponErr error
}

// NewOrderCode returns ORD-YYYYMMDD-XXXXXXXX with the UTC date and eight
// random upper-case hex characters.
func NewOrderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// fail maps storage errors onto the failure taxonomy. Errors already in the
// taxonomy pass through untouched.
func (s *Service) fail(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, database.ErrOrderNotFound):
		return apperr.NotFound("order not found")
	case errors.Is(err, database.ErrVariantNotFound):
		return apperr.NotFound("product variant not found")
	case errors.Is(err, database.ErrUserNotFound):
		return apperr.Unauthorized("user account not found")
	case errors.Is(err, database.ErrInsufficientStock):
		return apperr.Conflict(apperr.CodeConflict, "stock changed concurrently, please retry")
	}

	s.log.Error(op+" failed", "error", err)
	return apperr.Internal(op+" failed", err)
}

func requireStaff(id models.Identity) error {
	if !id.IsStaff() {
		return apperr.Forbidden("staff role required")
	}
	return nil
}

func requireCustomer(id models.Identity) error {
	if id.IsStaff() {
		return apperr.Forbidden("staff accounts cannot place customer orders")
	}
	if !id.Owner().Valid() {
		return apperr.Unauthorized("sign in or start a guest session first")
	}
	return nil
}
