package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/apperr"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Item    string `json:"item,omitempty"`
}

func newErrorBody(err error) *errorBody {
	e := apperr.As(err)
	body := &errorBody{
		Kind:    e.Kind.String(),
		Code:    e.Code,
		Message: e.Message,
		Field:   e.Field,
		Item:    e.Item,
	}
	if e.Kind == apperr.KindInternal {
		body.Message = "something went wrong, please try again"
	}
	return body
}

func respondJSON(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": newErrorBody(err)})
}
