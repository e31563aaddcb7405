// Package lock provides the per-owner and per-order mutual exclusion used by
// the wallet ledger and the saga runner.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

// Locker hands out expiring, token-fenced locks. Release only succeeds for
// the holder of the token.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
