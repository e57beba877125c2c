package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func(_ error, next time.Duration) { delays = append(delays, next) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}, nil)

	require.EqualError(t, err, "connection refused")
	assert.Equal(t, 3, calls)
}

func TestDoPermanentAndCancelled(t *testing.T) {
	calls := 0
	denied := errors.New("auth failed")
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return Permanent(denied)
	}, nil)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Do(ctx, Policy{Attempts: 10, InitialInterval: time.Hour}, func(context.Context) error {
		return errors.New("unreachable")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
