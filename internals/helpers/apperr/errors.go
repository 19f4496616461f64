// Package apperr holds the typed errors shared by the application services.
// Handlers map them to HTTP responses through helper.JsonFromError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflicting record exists")
)

// HTTPStatuser is implemented by every error in this package.
type HTTPStatuser interface {
	HTTPStatus() int
}

/* =========================================================
   Validation
========================================================= */

type ValidationError struct {
	Fields map[string]string
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Empty() bool { return e == nil || len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) HTTPStatus() int { return http.StatusUnprocessableEntity }

/* =========================================================
   State machine
========================================================= */

type InvalidTransition struct {
	From string
	To   string
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

func (e *InvalidTransition) HTTPStatus() int { return http.StatusConflict }

/* =========================================================
   Authorization
========================================================= */

type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return "not authorized"
	}
	return e.Message
}

func (e *AuthorizationError) HTTPStatus() int { return http.StatusForbidden }

/* =========================================================
   Rate limiting
========================================================= */

type RateLimitExceeded struct {
	Action string
	Method string
	Max    int
	Period time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s via %s: maximum %d per %s",
		e.Action, e.Method, e.Max, humanPeriod(e.Period))
}

func (e *RateLimitExceeded) HTTPStatus() int { return http.StatusTooManyRequests }

type UnknownAction struct {
	Action string
	Method string
}

func (e *UnknownAction) Error() string {
	return fmt.Sprintf("no rate limit policy configured for %s via %s", e.Action, e.Method)
}

func (e *UnknownAction) HTTPStatus() int { return http.StatusInternalServerError }

func humanPeriod(d time.Duration) string {
	h := int(d / time.Hour)
	switch {
	case h == 1:
		return "1 hour"
	case h > 1 && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", h)
	default:
		return d.String()
	}
}

/* =========================================================
   Storage / delivery
========================================================= */

type StorageError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed after %dms: %v", e.Op, e.Duration.Milliseconds(), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) HTTPStatus() int { return http.StatusBadGateway }

type DeliveryError struct {
	NotificationID string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification %s delivery failed: %v", e.NotificationID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) HTTPStatus() int { return http.StatusBadGateway }

// Status resolves the HTTP status for any error, defaulting to 500.
func Status(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	var hs HTTPStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Class names the concrete error type, used in failure audit metadata.
func Class(err error) string {
	if err == nil {
		return ""
	}
	var se *StorageError
	if errors.As(err, &se) && se.Err != nil {
		err = se.Err
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
