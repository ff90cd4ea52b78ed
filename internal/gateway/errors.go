package gateway

import (
	"fmt"
	"net/http"

	"github.com/finoramarket/ai-gateway/internal/quota"
)

// Code identifies a gateway failure condition. Every code is a distinct,
// user-displayable state; none is retried internally.
type Code string

const (
	// CodeNotConfigured: no usable credentials at all. Permanent until
	// reconfigured.
	CodeNotConfigured Code = "not_configured"
	// CodeCapacityExhausted: every credential hit its daily limit.
	// Resolves at the next day boundary.
	CodeCapacityExhausted Code = "capacity_exhausted"
	// CodeQuotaExceeded: this user hit the daily allowance for the
	// operation class. Resolves at the next day boundary.
	CodeQuotaExceeded Code = "quota_exceeded"
	// CodeInvalidInput: caller supplied incomplete analysis fields.
	CodeInvalidInput Code = "invalid_input"
	// CodeUpstreamError: transport failure or non-success response from
	// the model endpoint. May be transient; the gateway never retries.
	CodeUpstreamError Code = "upstream_error"
)

// Error is the gateway's typed failure.
type Error struct {
	Code    Code
	Class   quota.OpClass // set for quota_exceeded
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the failure to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotConfigured:
		return http.StatusServiceUnavailable
	case CodeCapacityExhausted, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUpstreamError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errNotConfigured() *Error {
	return &Error{Code: CodeNotConfigured, Message: "AI xizmati sozlanmagan"}
}

func errCapacityExhausted() *Error {
	return &Error{Code: CodeCapacityExhausted, Message: "barcha kalitlar kunlik limitga yetdi"}
}

func errQuotaExceeded(class quota.OpClass) *Error {
	return &Error{Code: CodeQuotaExceeded, Class: class, Message: fmt.Sprintf("kunlik %s limiti tugadi", class)}
}

func errInvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

func errUpstream(err error) *Error {
	return &Error{Code: CodeUpstreamError, Message: "model bilan bog'lanishda xatolik", Err: err}
}
