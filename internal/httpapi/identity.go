package httpapi

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/apperr"
	"github.com/safar/go-storefront/internal/models"
)

// Headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderSessionID = "X-Session-ID"
)

const identityKey = "identity"

// resolveIdentity reads the caller from gateway headers. A request with a
// user id is a signed-in user (customer unless a role says otherwise); one
// with only a session id is a guest. Neither is allowed through and left to
// the operation to reject.
func resolveIdentity(c *gin.Context) (models.Identity, error) {
	var id models.Identity

	if raw := strings.TrimSpace(c.GetHeader(HeaderUserID)); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			return id, apperr.Unauthorized("malformed " + HeaderUserID + " header")
		}
		id.UserID = &userID
		id.Role = models.RoleCustomer
		if role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))); role != "" {
			switch role {
			case models.RoleCustomer, models.RoleStaff, models.RoleAdmin:
				id.Role = role
			default:
				return id, apperr.Unauthorized("unknown role " + strconv.Quote(role))
			}
		}
		return id, nil
	}

	id.SessionID = strings.TrimSpace(c.GetHeader(HeaderSessionID))
	id.Role = models.RoleGuest
	return id, nil
}

func (s *Server) identify(c *gin.Context) {
	id, err := resolveIdentity(c)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) models.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(models.Identity)
	return v
}
