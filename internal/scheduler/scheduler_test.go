package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEveryRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, 20*time.Millisecond, "test", func(context.Context) error {
			if runs.Add(1) == 3 {
				cancel()
			}
			return errors.New("errors do not stop the loop")
		}, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Every did not stop after cancel")
	}
	if n := runs.Load(); n < 3 {
		t.Fatalf("runs = %d, want >= 3", n)
	}
}

func TestRunEmptySpec(t *testing.T) {
	t.Parallel()
	if err := Run(context.Background(), Spec{}, "x", nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty schedule")
	}
}

func TestCronBadExpression(t *testing.T) {
	t.Parallel()
	err := Cron(context.Background(), "not a cron", "x", func(context.Context) error { return nil }, zerolog.Nop())
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCronStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := Cron(ctx, "@hourly", "x", func(context.Context) error { return nil }, zerolog.Nop()); err != nil {
		t.Fatalf("Cron: %v", err)
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 6, 1, 10, 7, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/30 * * * *", time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)},
		{"0 9 * * *", time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := Next(tt.expr, from)
		if err != nil {
			t.Fatalf("Next(%q): %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Next(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
	if _, err := Next("61 * * * *", from); err == nil {
		t.Fatal("expected error for minute 61")
	}
}
