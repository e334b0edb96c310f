package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportFailure(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("below threshold does not lock", func(t *testing.T) {
		repo := &MockAccountRepository{
			IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, error) {
				return 3, nil
			},
			LockUntilFunc: func(ctx context.Context, id string, until time.Time) error {
				t.Fatal("must not lock below the threshold")
				return nil
			},
		}

		svc := NewLockoutService(repo, logger, LockoutConfig{MaxFails: 5, LockoutDuration: time.Hour})

		locked, err := svc.ReportFailure(ctx, "acct-1")
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("threshold locks for the configured duration", func(t *testing.T) {
		var lockedUntil time.Time
		repo := &MockAccountRepository{
			IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, error) {
				return 5, nil
			},
			LockUntilFunc: func(ctx context.Context, id string, until time.Time) error {
				lockedUntil = until
				return nil
			},
		}

		svc := NewLockoutService(repo, logger, LockoutConfig{MaxFails: 5, LockoutDuration: time.Hour})

		locked, err := svc.ReportFailure(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, locked)
		assert.WithinDuration(t, time.Now().Add(time.Hour), lockedUntil, 5*time.Second)
	})

	t.Run("zero max fails disables locking", func(t *testing.T) {
		repo := &MockAccountRepository{
			IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, error) {
				return 1000, nil
			},
			LockUntilFunc: func(ctx context.Context, id string, until time.Time) error {
				t.Fatal("locking is disabled")
				return nil
			},
		}

		svc := NewLockoutService(repo, logger, LockoutConfig{MaxFails: 0, LockoutDuration: time.Hour})

		locked, err := svc.ReportFailure(ctx, "acct-1")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}
