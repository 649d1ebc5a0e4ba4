package trace

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStep_RunsFunction(t *testing.T) {
	var ran bool
	elapsed, err := Step(context.Background(), "noop", false, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Step() unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("Step() did not run the function")
	}
	if elapsed < 0 {
		t.Fatalf("Step() returned negative duration: %v", elapsed)
	}
}

func TestStep_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	for _, enabled := range []bool{false, true} {
		_, err := Step(context.Background(), "failing", enabled, func(ctx context.Context) error {
			return want
		})
		if !errors.Is(err, want) {
			t.Fatalf("Step(enabled=%v) error = %v, want %v", enabled, err, want)
		}
	}
}

func TestStep_MeasuresDuration(t *testing.T) {
	elapsed, _ := Step(context.Background(), "sleep", false, func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if elapsed < 5*time.Millisecond {
		t.Fatalf("Step() duration %v shorter than work performed", elapsed)
	}
}
