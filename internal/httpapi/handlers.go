package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/idempotency"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type cartItemRequest struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	CouponCode string `json:"coupon_code"`
	ShipCity   string `json:"ship_city"`
}

type checkoutResponse struct {
	Order *models.Order `json:"order"`
	// CouponWarning explains why a requested coupon was left off the order.
	CouponWarning *errorBody `json:"coupon_warning,omitempty"`
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := s.carts.Get(c.Request.Context(), identity(c).Owner())
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, cart)
}

func (s *Server) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, s.log, err)
		return
	}

	cart, err := s.carts.AddItem(c.Request.Context(), identity(c).Owner(), req.VariantID, req.Quantity)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, cart)
}

func (s *Server) updateCartItem(c *gin.Context) {
	variantID, err := pathID(c, "variantId")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	var req quantityRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, s.log, err)
		return
	}

	cart, err := s.carts.UpdateItem(c.Request.Context(), identity(c).Owner(), variantID, req.Quantity)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, cart)
}

func (s *Server) removeCartItem(c *gin.Context) {
	variantID, err := pathID(c, "variantId")
	if err != nil {
		respondError(c, s.log, err)
		return
	}

	cart, err := s.carts.RemoveItem(c.Request.Context(), identity(c).Owner(), variantID)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, cart)
}

func (s *Server) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, s.log, err)
		return
	}

	quote, err := s.orders.ApplyCoupon(c.Request.Context(), identity(c), req.CouponCode, req.ShipCity)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, quote)
}

// checkout places the order. With an Idempotency-Key header a retried
// request returns the order the first one placed instead of a second one.
func (s *Server) checkout(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)

	var in orders.CheckoutInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, s.log, err)
		return
	}

	var key string
	if raw := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); raw != "" && id.Owner().Valid() {
		key = idempotency.Key(id.Owner(), raw)
		rec, err := s.guard.Reserve(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			respondError(c, s.log, apperr.Conflict(apperr.CodeConflict, "a checkout with this idempotency key is still in progress"))
			return
		case err != nil:
			// Redis trouble must not block checkout.
			s.log.Warn("idempotency unavailable", "error", err)
			key = ""
		case rec != nil:
			s.replayCheckout(c, id, rec.OrderID)
			return
		}
	}

	res, err := s.orders.Checkout(ctx, id, in)
	if err != nil {
		if key != "" {
			if relErr := s.guard.Release(ctx, key); relErr != nil {
				s.log.Warn("release idempotency key", "error", relErr)
			}
		}
		respondError(c, s.log, err)
		return
	}
	if key != "" {
		if err := s.guard.Complete(ctx, key, idempotency.Record{OrderID: res.Order.ID}); err != nil {
			s.log.Warn("complete idempotency key", "order_id", res.Order.ID, "error", err)
		}
	}

	s.publish(res.Events)

	body := checkoutResponse{Order: res.Order}
	if res.CouponErr != nil {
		body.CouponWarning = newErrorBody(res.CouponErr)
	}
	respondJSON(c, http.StatusCreated, body)
}

func (s *Server) replayCheckout(c *gin.Context, id models.Identity, orderID int64) {
	order, err := s.orders.GetOrder(c.Request.Context(), id, orderID)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.Header("Idempotent-Replayed", "true")
	respondJSON(c, http.StatusOK, checkoutResponse{Order: order})
}

func (s *Server) listOrders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, s.log, apperr.Validation("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	page, err := s.orders.ListOrders(c.Request.Context(), identity(c), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (s *Server) getOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}

	order, err := s.orders.GetOrder(c.Request.Context(), identity(c), orderID)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	var upd orders.StatusUpdate
	if err := bindJSON(c, &upd); err != nil {
		respondError(c, s.log, err)
		return
	}

	res, err := s.orders.UpdateStatus(c.Request.Context(), identity(c), orderID, upd)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	s.publish(res.Events)
	respondJSON(c, http.StatusOK, res.Order)
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}

	res, err := s.orders.Cancel(c.Request.Context(), identity(c), orderID)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	s.publish(res.Events)
	respondJSON(c, http.StatusOK, res.Order)
}

func (s *Server) listMovements(c *gin.Context) {
	variantID, err := pathID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}

	movements, err := s.orders.ListMovements(c.Request.Context(), identity(c), variantID)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	respondJSON(c, http.StatusOK, movements)
}
