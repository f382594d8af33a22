// Package apperr carries the failure taxonomy returned by the order core.
// Every failure has a Kind (which maps to a transport status) and a Code
// callers can switch on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBusinessRule
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

const (
	CodeValidation         = "validation_failed"
	CodeCartEmpty          = "cart_empty"
	CodeInsufficientStock  = "insufficient_stock"
	CodeCouponInvalid      = "coupon_invalid"
	CodeCouponInactive     = "coupon_inactive"
	CodeCouponExpired      = "coupon_expired"
	CodeCouponMinSubtotal  = "coupon_min_subtotal"
	CodeCouponLimitReached = "coupon_limit_reached"
	CodeNotCancellable     = "not_cancellable"
	CodeInvalidStatus      = "invalid_status"
	CodeInvalidTransition  = "invalid_transition"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeOrderCodeExhausted = "order_code_exhausted"
	CodeInternal           = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Field names the offending input for validation failures.
	Field string
	// Item names the offending cart line (SKU) for stock failures.
	Item string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Field: field, Message: message}
}

func Business(code, message string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: message}
}

func CartEmpty() *Error {
	return Business(CodeCartEmpty, "cart is empty")
}

func InsufficientStock(sku, name string, requested, available int) *Error {
	return &Error{
		Kind:    KindBusinessRule,
		Code:    CodeInsufficientStock,
		Item:    sku,
		Message: fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, requested, available),
	}
}

func NotCancellable(status string) *Error {
	return Business(CodeNotCancellable, fmt.Sprintf("order cannot be cancelled in status %q", status))
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// As extracts an *Error from err. Errors outside the taxonomy are reported
// as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", err)
}

func KindOf(err error) Kind {
	return As(err).Kind
}

func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return As(err).Code
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
