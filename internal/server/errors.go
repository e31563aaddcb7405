package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/rates"
	"github.com/smallbiznis/domainpay/internal/reconcile"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError is the one place errors become HTTP statuses. Gateways retry on
// anything but 2xx, so only local outages map to 5xx.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, rates.ErrRateUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrOrderMismatch),
		errors.Is(err, reconcile.ErrInvalidPayment),
		errors.Is(err, orderdomain.ErrInvalidOrder),
		errors.Is(err, orderdomain.ErrInvalidKind),
		errors.Is(err, orderdomain.ErrInvalidAmount),
		errors.Is(err, orderdomain.ErrInvalidDomainName),
		errors.Is(err, orderdomain.ErrInvalidNameservers),
		errors.Is(err, walletdomain.ErrInvalidOwner),
		errors.Is(err, domainsdomain.ErrInvalidDomain),
		errors.Is(err, sagadomain.ErrNotDomainOrder):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, orderdomain.ErrConcurrentTransition),
		errors.Is(err, orderdomain.ErrNotCancelable),
		errors.Is(err, orderdomain.ErrOrderExists),
		errors.Is(err, sagadomain.ErrSagaBusy),
		errors.Is(err, sagadomain.ErrNotInManualReview),
		errors.Is(err, sagadomain.ErrManualReview),
		errors.Is(err, sagadomain.ErrOrderNotFunded):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	for _, known := range []error{
		orderdomain.ErrNotCancelable,
		orderdomain.ErrInvalidTransition,
		sagadomain.ErrSagaBusy,
		sagadomain.ErrNotInManualReview,
		sagadomain.ErrManualReview,
		sagadomain.ErrOrderNotFunded,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrGatewayNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, domainsdomain.ErrDomainNotFound),
		errors.Is(err, sagadomain.ErrSagaNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		for _, known := range []error{
			paymentdomain.ErrInvalidPayload,
			paymentdomain.ErrInvalidEvent,
			paymentdomain.ErrOrderMismatch,
			reconcile.ErrInvalidPayment,
			orderdomain.ErrInvalidDomainName,
			orderdomain.ErrInvalidNameservers,
		} {
			if errors.Is(err, known) {
				return known.Error()
			}
		}
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Message
}
