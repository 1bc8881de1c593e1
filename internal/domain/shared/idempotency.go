package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers webhook payloads that were already applied, so a
// POS resend of the same batch is acknowledged without reaching the label cloud again
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL.
	// Returns true if the key was newly recorded, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if key is recorded and not expired
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for the webhook replay guard
type IdempotencyConfig struct {
	// TTL is how long an applied payload is remembered.
	// Default: 10 minutes
	TTL time.Duration

	// Enabled determines whether replayed payloads are short-circuited.
	// Default: false
	Enabled bool
}

// DefaultIdempotencyConfig returns the default replay guard configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     10 * time.Minute,
		Enabled: false,
	}
}
