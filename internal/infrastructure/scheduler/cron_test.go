package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCronSchedulerRunsJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewCronScheduler("@every 1s", time.UTC, zaptest.NewLogger(t))
	fired := make(chan time.Time, 4)
	require.NoError(t, s.Start(ctx, func(t time.Time) {
		select {
		case fired <- t:
		default:
		}
	}))

	select {
	case at := <-fired:
		assert.False(t, at.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	assert.ErrorIs(t, s.Start(ctx, func(time.Time) {}), ErrAlreadyStarted)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("every now and then", nil, nil)
	err := s.Start(context.Background(), func(time.Time) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestCronSchedulerNilJob(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@hourly", nil, nil)
	assert.NoError(t, s.Start(context.Background(), nil))
	assert.NoError(t, s.Stop(context.Background()))
}
