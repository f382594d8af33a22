// Package httpapi exposes the order core over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/idempotency"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/orders"
)

// Publisher takes post-commit events off the request path.
type Publisher interface {
	Publish(evts []events.Event) int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Orders  *orders.Service
	Carts   *cart.Service
	Events  Publisher
	Guard   idempotency.Guard
	DB      Pinger
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

type Server struct {
	orders  *orders.Service
	carts   *cart.Service
	events  Publisher
	guard   idempotency.Guard
	db      Pinger
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		orders:  d.Orders,
		carts:   d.Carts,
		events:  d.Events,
		guard:   d.Guard,
		db:      d.DB,
		metrics: d.Metrics,
		log:     d.Log,
	}
	if s.guard == nil {
		s.guard = idempotency.Nop{}
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/", s.identify)

	api.GET("/cart", s.getCart)
	api.POST("/cart/items", s.addCartItem)
	api.PATCH("/cart/items/:variantId", s.updateCartItem)
	api.DELETE("/cart/items/:variantId", s.removeCartItem)

	api.POST("/coupons/apply", s.applyCoupon)
	api.POST("/checkout", s.checkout)

	api.GET("/orders", s.listOrders)
	api.GET("/orders/:id", s.getOrder)
	api.PATCH("/orders/:id/status", s.updateOrderStatus)
	api.POST("/orders/:id/cancel", s.cancelOrder)

	api.GET("/variants/:id/movements", s.listMovements)

	return r
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.Request(route, c.Writer.Status(), time.Since(start))
	s.log.Debug("request",
		"method", c.Request.Method,
		"route", route,
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds())
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// publish hands events to the dispatcher once the operation has committed.
func (s *Server) publish(evts []events.Event) {
	if s.events == nil || len(evts) == 0 {
		return
	}
	s.events.Publish(evts)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(name, name+" must be a positive integer")
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("body", "request body is not valid JSON")
	}
	return nil
}
