package provider

import (
	"errors"
	"fmt"
)

// Category normalizes collaborator failures across providers.
type Category string

const (
	CategoryTimeout        Category = "timeout"
	CategoryOutage         Category = "provider_outage"
	CategoryRateLimited    Category = "rate_limited"
	CategoryAuthentication Category = "authentication"
	CategoryRejected       Category = "rejected"
	CategoryNotFound       Category = "not_found"
	CategoryConflict       Category = "conflict"
	CategoryBadData        Category = "bad_data"
	CategoryInternal       Category = "internal"
)

// Error wraps a provider failure. Retryable errors are the transient
// network/5xx class; everything else is fatal for the calling step.
type Error struct {
	Category   Category
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Body       []byte
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provider %s %s [%s]", e.Provider, e.Op, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func NewError(category Category, providerName, op, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Provider:   providerName,
		Op:         op,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryableCategory(category),
	}
}

func retryableCategory(c Category) bool {
	switch c {
	case CategoryTimeout, CategoryOutage, CategoryRateLimited:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsFatal reports whether err is a provider failure that must not be retried.
func IsFatal(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return !pe.Retryable
	}
	return false
}

func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}
