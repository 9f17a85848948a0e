package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/manifest-network/chainview/internal/chain"
)

// shortIDLength is the length of display identifiers derived from hashes ("0x" + 8 hex digits).
const shortIDLength = 10

var retryBaseDelay = 250 * time.Millisecond

// GetLatestBlockHeightWithRetry gets the current block height from the chain client.
func GetLatestBlockHeightWithRetry(ctx context.Context, client chain.Client, maxRetries uint) (uint64, error) {
	return withRetry(ctx, maxRetries, func() (uint64, error) {
		height, err := client.BlockNumber(ctx)
		if err != nil {
			return 0, errors.WithMessage(err, "error getting block height")
		}
		return height, nil
	})
}

// BlockWindow returns the heights of the latest count blocks ending at height,
// most recent first. Near genesis the window is shorter.
func BlockWindow(height uint64, count uint) []uint64 {
	if count == 0 {
		return nil
	}
	window := make([]uint64, 0, count)
	for i := uint64(0); i < uint64(count); i++ {
		if i > height {
			break
		}
		window = append(window, height-i)
	}
	return window
}

// ShortID derives a display identifier from a hash.
func ShortID(hash string) string {
	if len(hash) <= shortIDLength {
		return hash
	}
	return hash[:shortIDLength]
}

func withRetry[T any](ctx context.Context, maxRetries uint, fn func() (T, error)) (T, error) {
	var zero T
	if maxRetries == 0 {
		maxRetries = 1
	}

	delay := retryBaseDelay
	var lastErr error
	for attempt := uint(1); attempt <= maxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, fmt.Errorf("failed after %d attempt(s): %w", maxRetries, lastErr)
}
