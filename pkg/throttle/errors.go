package throttle

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is matched by every RateLimitedError
var ErrRateLimited = errors.New("too many login attempts")

// Scope names which key triggered a rejection
type Scope string

const (
	ScopeAddress    Scope = "address"
	ScopeIdentifier Scope = "identifier"
)

// RateLimitedError is returned when an attempt is throttled. It is always
// recoverable by waiting RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
	Scope      Scope
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %d seconds", ErrRateLimited, e.RetryAfterSeconds())
}

// Is makes errors.Is(err, ErrRateLimited) succeed
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
