package throttle

import (
	"context"
	"time"
)

// Limiter is an atomic hit counter with expiring keys and explicit locks
type Limiter interface {
	// Attempts returns the current hit count for key
	Attempts(ctx context.Context, key string) (int, error)
	// Hit increments key; the first hit starts a decay window
	Hit(ctx context.Context, key string, decay time.Duration) (int, error)
	// TooManyAttempts reports whether key is locked or has at least max hits
	TooManyAttempts(ctx context.Context, key string, max int) (bool, error)
	// AvailableIn returns how long until key is neither counted nor locked
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
	// Extend adds d to the remaining window of key
	Extend(ctx context.Context, key string, d time.Duration) error
	// Lock blocks key for at least d
	Lock(ctx context.Context, key string, d time.Duration) error
	// Clear removes all state for key
	Clear(ctx context.Context, key string) error
}
