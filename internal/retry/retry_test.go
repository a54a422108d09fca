package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSend = errors.New("send failed")

func TestDelaySchedule(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))

	p.MaxDelay = 3 * time.Second
	assert.Equal(t, 3*time.Second, p.Delay(2))

	p.Multiplier = 0
	assert.Equal(t, time.Second, p.Delay(5))
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterFourAttemptsWithBackoff(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := DefaultPolicy()
	p.Clock = fc

	var mu sync.Mutex
	var attemptTimes []time.Time
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), p, func(context.Context) error {
			mu.Lock()
			attemptTimes = append(attemptTimes, fc.Now())
			mu.Unlock()
			return errSend
		})
	}()

	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		fc.BlockUntil(1)
		fc.Advance(d)
	}

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return")
	}

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, errSend)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attemptTimes, 4)
	assert.Equal(t, time.Second, attemptTimes[1].Sub(attemptTimes[0]))
	assert.Equal(t, 2*time.Second, attemptTimes[2].Sub(attemptTimes[1]))
	assert.Equal(t, 4*time.Second, attemptTimes[3].Sub(attemptTimes[2]))
}

func TestDoRecoversOnRetry(t *testing.T) {
	p := Policy{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	v, err := DoValue(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errSend
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return Permanent(errSend)
	})
	assert.Equal(t, errSend, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	fc := clockwork.NewFakeClock()
	p := DefaultPolicy()
	p.Clock = fc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context) error { return errSend })
	}()

	fc.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do ignored cancellation")
	}
}
