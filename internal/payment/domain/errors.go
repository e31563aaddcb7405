package domain

import "errors"

var (
	ErrGatewayNotFound  = errors.New("gateway_not_found")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrOrderMismatch    = errors.New("order_mismatch")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrDuplicateEvent   = errors.New("duplicate_event")
	ErrUnderpaidOrder   = errors.New("underpaid_order")
)
