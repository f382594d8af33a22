package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation -> 400", Validation("customer_name", "customer_name is required"), http.StatusBadRequest},
		{"cart empty -> 400", CartEmpty(), http.StatusBadRequest},
		{"insufficient stock -> 400", InsufficientStock("SKU-1", "Tee", 2, 1), http.StatusBadRequest},
		{"unauthorized -> 401", Unauthorized("login required"), http.StatusUnauthorized},
		{"forbidden -> 403", Forbidden("not yours"), http.StatusForbidden},
		{"not found -> 404", NotFound("order not found"), http.StatusNotFound},
		{"conflict -> 409", Conflict(CodeOrderCodeExhausted, "exhausted"), http.StatusConflict},
		{"plain error -> 500", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("checkout: %w", InsufficientStock("SKU-9", "Mug", 3, 0))

	got := As(err)
	assert.Equal(t, KindBusinessRule, got.Kind)
	assert.Equal(t, CodeInsufficientStock, got.Code)
	assert.Equal(t, "SKU-9", got.Item)
	assert.Contains(t, got.Message, "Mug")
}

func TestAsWrapsForeignErrorsAsInternal(t *testing.T) {
	cause := errors.New("connection reset")

	got := As(cause)
	assert.Equal(t, KindInternal, got.Kind)
	assert.ErrorIs(t, got, cause)
	assert.Equal(t, "", CodeOf(nil))
}
