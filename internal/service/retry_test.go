package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryReadRetriesTransientErrors(t *testing.T) {
	calls := 0
	value, err := retryRead(context.Background(), "test", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, driver.ErrBadConn
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 3, calls)
}

func TestRetryReadStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("syntax error near SELECT")
	_, err := retryRead(context.Background(), "test", func() (int, error) {
		calls++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryReadHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := retryRead(ctx, "test", func() (int, error) {
		return 0, driver.ErrBadConn
	})
	assert.ErrorIs(t, err, context.Canceled)
}
