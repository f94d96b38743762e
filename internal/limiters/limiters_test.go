package limiters

import (
	"context"
	"sync"
	"testing"

	"github.com/VledicFranco/constellation-engine-sub007/internal/ratelimit"
)

func TestFirstRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	first, err := reg.RegisterRate("api", ratelimit.Config{Capacity: 5, RefillRate: 1})
	if err != nil {
		t.Fatalf("RegisterRate: %v", err)
	}
	second, err := reg.RegisterRate("api", ratelimit.Config{Capacity: 999, RefillRate: 999})
	if err != nil {
		t.Fatalf("RegisterRate second: %v", err)
	}
	if first != second {
		t.Fatalf("expected second registration to return the first-registered limiter")
	}
	if second.Stats().Capacity != 5 {
		t.Fatalf("expected original config to win, got capacity %d", second.Stats().Capacity)
	}
}

func TestConcurrentRegistrationCoalesces(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*ratelimit.TokenBucketRateLimiter, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl, err := reg.RegisterRate("shared", ratelimit.Config{Capacity: 10, RefillRate: 1})
			if err != nil {
				t.Errorf("RegisterRate: %v", err)
				return
			}
			results[i] = rl
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("expected all concurrent registrations to coalesce onto one limiter")
		}
	}
}

func TestListAndRemove(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterConcurrency("db", 4)
	if !reg.HasConcurrency("db") {
		t.Fatalf("expected HasConcurrency true")
	}
	if got := reg.ListConcurrency(); len(got) != 1 || got[0] != "db" {
		t.Fatalf("expected [db], got %v", got)
	}
	reg.RemoveConcurrency("db")
	if reg.HasConcurrency("db") {
		t.Fatalf("expected concurrency limiter removed")
	}
}

func TestExecuteWithRateControlOrdersConcurrencyBeforeThrottle(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterConcurrency("c", 1)
	reg.RegisterRate("r", ratelimit.Config{Capacity: 1, RefillRate: 1000})
	exec := NewRateControlExecutor(reg)

	ran := false
	err := exec.ExecuteWithRateControl(context.Background(), RateControlOptions{Concurrency: "c", Throttle: "r"},
		func(ctx context.Context) error {
			ran = true
			return nil
		})
	if err != nil {
		t.Fatalf("ExecuteWithRateControl: %v", err)
	}
	if !ran {
		t.Fatalf("expected operation to run")
	}

	cl, _ := reg.GetConcurrency("c")
	if cl.Stats().CurrentActive != 0 {
		t.Fatalf("expected concurrency permit released after completion")
	}
}

func TestExecuteWithRateControlSkipsUnnamedStages(t *testing.T) {
	reg := NewRegistry()
	exec := NewRateControlExecutor(reg)
	ran := false
	err := exec.ExecuteWithRateControl(context.Background(), RateControlOptions{}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected plain passthrough execution, err=%v ran=%v", err, ran)
	}
}
