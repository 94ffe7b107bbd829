// Package fault defines the error taxonomy shared by all workflow commands.
// Services return typed faults; HTTP handlers translate them to status codes
// without inspecting message text.
package fault

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a fault for transport mapping.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindForbidden
	KindBadRequest
)

// Fault is a domain error with a transport-mappable kind.
type Fault struct {
	Knd Kind
	Msg string
	Err error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Err)
	}
	return f.Msg
}

func (f *Fault) Unwrap() error { return f.Err }

// NotFound reports an absent entity. An entity that exists under a different
// tenant is reported identically so that nothing leaks across the boundary.
func NotFound(format string, args ...interface{}) *Fault {
	return &Fault{Knd: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports a state transition or uniqueness violation.
func Conflict(format string, args ...interface{}) *Fault {
	return &Fault{Knd: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden reports a disabled module or an unmet workflow precondition.
func Forbidden(format string, args ...interface{}) *Fault {
	return &Fault{Knd: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// BadRequest reports malformed input.
func BadRequest(format string, args ...interface{}) *Fault {
	return &Fault{Knd: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to a fault.
func Wrap(f *Fault, err error) *Fault {
	f.Err = err
	return f
}

// IsKind reports whether err is a Fault of the given kind.
func IsKind(err error, k Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Knd == k
	}
	return false
}

func IsNotFound(err error) bool   { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool   { return IsKind(err, KindConflict) }
func IsForbidden(err error) bool  { return IsKind(err, KindForbidden) }
func IsBadRequest(err error) bool { return IsKind(err, KindBadRequest) }

// HTTPError converts any error into an echo HTTPError. Unclassified errors
// map to 500 with a generic message so internals stay out of responses.
func HTTPError(err error) *echo.HTTPError {
	var f *Fault
	if !errors.As(err, &f) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	switch f.Knd {
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, f.Msg)
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, f.Msg)
	case KindForbidden:
		return echo.NewHTTPError(http.StatusForbidden, f.Msg)
	case KindBadRequest:
		return echo.NewHTTPError(http.StatusBadRequest, f.Msg)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
