package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrMaxRetriesExceeded    = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage        = errors.New("invalid message: text cannot be empty")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrInvalidIdentity       = errors.New("invalid identity: cannot be empty")
	ErrDuplicateConversation = errors.New("conversation already exists for participant pair")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

// withRetry runs op up to maxRetries times while it fails with a transient error.
func withRetry(ctx context.Context, logger *zap.Logger, operation string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}

		logger.Warn("store operation failed, retrying",
			zap.String("operation", operation),
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}
	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// classifyReadError maps context failures onto repository sentinels.
func classifyReadError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrOperationTimeout
	}
	return err
}
