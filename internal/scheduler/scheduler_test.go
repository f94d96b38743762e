package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPriorityOrderingUnderBlocker(t *testing.T) {
	// One worker, so the first submission blocks the worker while low and
	// high priority entries queue up behind it; the high priority one must
	// run first once the blocker releases.
	s := New(Config{Workers: 1})
	defer s.Shutdown()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	if err := s.Submit(DefaultPriority, func(ctx context.Context) {
		close(blockerStarted)
		<-release
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-blockerStarted

	var mu sync.Mutex
	var order []string

	if err := s.Submit(10, func(ctx context.Context) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
	}); err != nil {
		t.Fatalf("submit low: %v", err)
	}
	if err := s.Submit(90, func(ctx context.Context) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
	}); err != nil {
		t.Fatalf("submit high: %v", err)
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(order) == 2
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both entries to run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected [high low], got %v", order)
	}
}

func TestStarvationPromotionViaAging(t *testing.T) {
	s := New(Config{
		Workers:            1,
		AgingInterval:      10 * time.Millisecond,
		AgingBoost:         50,
		MaxWaitBeforeAging: 10 * time.Millisecond,
	})
	defer s.Shutdown()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	s.Submit(DefaultPriority, func(ctx context.Context) {
		close(blockerStarted)
		<-release
	})
	<-blockerStarted

	s.Submit(1, func(ctx context.Context) {})

	time.Sleep(60 * time.Millisecond)

	s.mu.Lock()
	var boosted bool
	for _, e := range s.heap {
		if e.SubmittedPriority == 1 && e.EffectivePriority > 1 {
			boosted = true
		}
	}
	s.mu.Unlock()
	if !boosted {
		t.Fatalf("expected aging to have boosted the low-priority entry's effective priority")
	}
	close(release)
}

func TestPriorityClamping(t *testing.T) {
	s := New(Config{Workers: 1})
	defer s.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	s.Submit(DefaultPriority, func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	s.Submit(-5, func(ctx context.Context) {})
	s.Submit(1000, func(ctx context.Context) {})

	s.mu.Lock()
	for _, e := range s.heap {
		if e.EffectivePriority < MinPriority || e.EffectivePriority > MaxPriority {
			t.Fatalf("priority out of range: %+v", e)
		}
	}
	s.mu.Unlock()
	close(release)
}

func TestQueueFullRejectsSubmit(t *testing.T) {
	s := New(Config{Workers: 1, Capacity: 1})
	defer s.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	s.Submit(DefaultPriority, func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	if err := s.Submit(DefaultPriority, func(ctx context.Context) {}); err != nil {
		t.Fatalf("expected first queued submit to succeed, got %v", err)
	}
	if err := s.Submit(DefaultPriority, func(ctx context.Context) {}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestShutdownIsIdempotentAndDrainsQueue(t *testing.T) {
	s := New(Config{Workers: 2})
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		s.Submit(DefaultPriority, func(ctx context.Context) {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	s.Shutdown()
	s.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if ran != 5 {
		t.Fatalf("expected all 5 submissions to run before shutdown drains, got %d", ran)
	}

	if err := s.Submit(DefaultPriority, func(ctx context.Context) {}); err != ErrShutdown {
		t.Fatalf("expected ErrShutdown after Shutdown, got %v", err)
	}
}
