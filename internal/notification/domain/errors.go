package domain

import "errors"

var (
	ErrUnknownKind     = errors.New("unknown_notification_kind")
	ErrNoRecipient     = errors.New("no_recipient")
	ErrChannelDisabled = errors.New("channel_disabled")
	ErrQueueFull       = errors.New("notification_queue_full")
)
