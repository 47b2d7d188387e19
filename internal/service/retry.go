package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/logger"
)

const (
	readRetryAttempts  = 3
	readRetryBaseDelay = 50 * time.Millisecond
	readRetryMaxDelay  = 800 * time.Millisecond
)

// retryRead 对幂等读取做指数退避重试，仅重试瞬时错误。写操作不得使用。
func retryRead[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	delay := readRetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= readRetryAttempts; attempt++ {
		value, err := fn()
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt == readRetryAttempts {
			break
		}
		logger.Warnw("read_retry", "op", op, "attempt", attempt, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > readRetryMaxDelay {
			delay = readRetryMaxDelay
		}
	}
	return zero, lastErr
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, hint := range []string{"connection reset", "connection refused", "broken pipe", "database is locked", "too many connections", "i/o timeout"} {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}
