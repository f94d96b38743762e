package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, ResetDuration: time.Hour}, nil)
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Protect(context.Background(), func(ctx context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}
	if cb.State() != Open {
		t.Fatalf("expected Open after %d consecutive failures, got %v", 3, cb.State())
	}
	err := cb.Protect(context.Background(), func(ctx context.Context) error {
		t.Fatalf("fn should not run while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestHalfOpensAfterResetDuration(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, ResetDuration: 10 * time.Millisecond, HalfOpenRequests: 1}, nil)
	boom := errors.New("boom")
	cb.Protect(context.Background(), func(ctx context.Context) error { return boom })
	if cb.State() != Open {
		t.Fatalf("expected Open, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	ran := false
	err := cb.Protect(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected probe to run successfully, got %v", err)
	}
	if !ran {
		t.Fatalf("expected half-open probe to invoke fn")
	}
	if cb.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %v", cb.State())
	}
}

func TestFailedHalfOpenProbeReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, ResetDuration: 5 * time.Millisecond, HalfOpenRequests: 1}, nil)
	boom := errors.New("boom")
	cb.Protect(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(10 * time.Millisecond)

	cb.Protect(context.Background(), func(ctx context.Context) error { return boom })
	if cb.State() != Open {
		t.Fatalf("expected Open after failed half-open probe, got %v", cb.State())
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	reg := NewRegistry(Config{FailureThreshold: 2}, nil)
	a := reg.Get("moduleA")
	b := reg.Get("moduleA")
	if a != b {
		t.Fatalf("expected same breaker instance for repeated Get of same name")
	}
	c := reg.Get("moduleB")
	if a == c {
		t.Fatalf("expected distinct breakers for distinct module names")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, ResetDuration: time.Hour}, nil)
	boom := errors.New("boom")
	cb.Protect(context.Background(), func(ctx context.Context) error { return boom })
	cb.Protect(context.Background(), func(ctx context.Context) error { return nil })
	if cb.Stats().ConsecutiveFailures != 0 {
		t.Fatalf("expected success to reset consecutive failure count")
	}
	if cb.State() != Closed {
		t.Fatalf("expected breaker to remain Closed")
	}
}
