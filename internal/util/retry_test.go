package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryErrWithContext(t *testing.T) {
	t.Parallel()

	t.Run("succeeds_after_transient_failures", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryErrWithContext(context.Background(), 3, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		if calls != 3 {
			t.Fatalf("got %d calls, want 3", calls)
		}
	})

	t.Run("returns_last_error_when_exhausted", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("still broken")
		calls := 0
		err := RetryErrWithContext(context.Background(), 2, func(ctx context.Context) error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("got %v, want %v", err, wantErr)
		}
		if calls != 2 {
			t.Fatalf("got %d calls, want 2", calls)
		}
	})

	t.Run("cancellation_stops_retries", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryErrWithContext(ctx, 5, func(ctx context.Context) error {
			calls++
			cancel()
			return context.Canceled
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Fatalf("got %d calls, want 1", calls)
		}
	})
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	t.Run("returns_result_on_success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		got, err := RetryBackoff(context.Background(), 3, time.Millisecond, 4*time.Millisecond,
			func(ctx context.Context) (string, error) {
				calls++
				if calls < 2 {
					return "", errors.New("flaky")
				}
				return "ok", nil
			})
		if err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		if got != "ok" {
			t.Fatalf("got %q, want %q", got, "ok")
		}
	})

	t.Run("cancellation_during_wait_aborts", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		done := make(chan error, 1)
		go func() {
			_, err := RetryBackoff(ctx, 5, time.Hour, time.Hour, func(ctx context.Context) (int, error) {
				calls++
				return 0, errors.New("always fails")
			})
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("got %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("retry did not abort on cancellation")
		}
		if calls != 1 {
			t.Fatalf("got %d calls, want 1 (no retry after cancellation)", calls)
		}
	})
}
