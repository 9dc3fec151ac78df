//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 30 * time.Second

// WithRetry runs fn up to maxAttempts times, sleeping base*2^attempt between
// tries. Intended for I/O boundaries only (source reads, DB round trips).
func WithRetry(ctx context.Context, maxAttempts int, base time.Duration, op string, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = time.Second
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := base << attempt
		if delay > maxBackoff {
			delay = maxBackoff
		}

		logging.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxAttempts, err)
}
