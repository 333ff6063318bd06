package revocation

import (
	"errors"
	"time"
)

// ErrInvalidTTL is returned when a token would be revoked for no time at all.
var ErrInvalidTTL = errors.New("revocation ttl must be positive")

// Clock returns the current time.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
