// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps base with a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Price source errors
	ErrNotAvailable = &Error{Code: "NOT_AVAILABLE", Message: "price not available"}

	// Caller input errors
	ErrInvalidAlert    = &Error{Code: "INVALID_ALERT", Message: "invalid alert"}
	ErrInvalidOrder    = &Error{Code: "INVALID_ORDER", Message: "invalid order"}
	ErrInvalidInterval = &Error{Code: "INVALID_INTERVAL", Message: "invalid refresh interval"}
	ErrInvalidTicker   = &Error{Code: "INVALID_TICKER", Message: "invalid ticker"}

	// Business rule violations
	ErrInsufficientFunds  = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrInsufficientShares = &Error{Code: "INSUFFICIENT_SHARES", Message: "insufficient shares"}
	ErrResetNotConfirmed  = &Error{Code: "RESET_NOT_CONFIRMED", Message: "account reset requires explicit confirmation"}

	// Dependency failures
	ErrPriceUnavailable = &Error{Code: "PRICE_UNAVAILABLE", Message: "no current price for order"}

	// Lookup errors
	ErrAlertNotFound  = &Error{Code: "ALERT_NOT_FOUND", Message: "alert not found"}
	ErrTickerNotFound = &Error{Code: "TICKER_NOT_FOUND", Message: "ticker not found"}

	// Collaborator errors
	ErrStorageFailed  = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Persisted state errors
	ErrInvalidSnapshot = &Error{Code: "INVALID_SNAPSHOT", Message: "persisted state is inconsistent"}

	// Access errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
