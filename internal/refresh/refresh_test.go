package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	for _, spec := range []string{"0 6 * * *", "*/30 * * * * *", "@daily", "@every 1h"} {
		if err := Validate(spec); err != nil {
			t.Fatalf("Validate(%q) returned error: %v", spec, err)
		}
	}
	if err := Validate("every morning"); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestRunInvalidSpec(t *testing.T) {
	err := Run(context.Background(), "not a schedule", func(context.Context) error { return nil })
	if err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestRunExecutesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	job := func(context.Context) error {
		if runs.Add(1) >= 2 {
			cancel()
		}
		return errors.New("errors are logged, not fatal")
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, "@every 1s", job) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}
}
