package lazycell

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestForceComputesOnce(t *testing.T) {
	var calls int32
	c := New(func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	})
	for i := 0; i < 5; i++ {
		v, err := c.Force()
		if err != nil || v != 42 {
			t.Fatalf("Force() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected producer called once, got %d", calls)
	}
	if !c.IsComputed() {
		t.Fatalf("expected Computed state")
	}
}

func TestConcurrentForcersCoalesce(t *testing.T) {
	var calls int32
	start := make(chan struct{})
	c := New(func() (int, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})

	const n = 20
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Force()
		}(i)
	}
	close(start)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one computation, got %d", calls)
	}
	for i := range results {
		if errs[i] != nil || results[i] != 7 {
			t.Fatalf("forcer %d got %d, %v", i, results[i], errs[i])
		}
	}
}

func TestFailedComputationDoesNotPoisonCell(t *testing.T) {
	var calls int32
	want := errors.New("boom")
	c := New(func() (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, want
		}
		return 99, nil
	})

	_, err := c.Force()
	if !errors.Is(err, want) {
		t.Fatalf("expected first Force to fail with %v, got %v", want, err)
	}
	if c.IsComputed() {
		t.Fatalf("cell must not be Computed after a failure")
	}

	v, err := c.Force()
	if err != nil || v != 99 {
		t.Fatalf("expected retry to succeed with 99, got %d, %v", v, err)
	}
	if !c.IsComputed() {
		t.Fatalf("expected Computed after successful retry")
	}
}

func TestPeekBeforeForce(t *testing.T) {
	c := New(func() (string, error) { return "x", nil })
	if _, ok := c.Peek(); ok {
		t.Fatalf("expected Peek to report not-computed before Force")
	}
	c.Force()
	v, ok := c.Peek()
	if !ok || v != "x" {
		t.Fatalf("expected Peek to return computed value, got %q ok=%v", v, ok)
	}
}

func TestReset(t *testing.T) {
	var calls int32
	c := New(func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return int(calls), nil
	})
	v1, _ := c.Force()
	c.Reset()
	if c.IsComputed() {
		t.Fatalf("expected Pending after Reset")
	}
	v2, _ := c.Force()
	if v1 == v2 {
		t.Fatalf("expected recomputation after Reset, got same value %d twice", v1)
	}
}

func TestMapAndFlatMap(t *testing.T) {
	base := New(func() (int, error) { return 3, nil })
	doubled := Map(base, func(n int) int { return n * 2 })
	v, err := doubled.Force()
	if err != nil || v != 6 {
		t.Fatalf("Map: got %d, %v", v, err)
	}

	chained := FlatMap(base, func(n int) *LazyCell[string] {
		return New(func() (string, error) {
			if n > 0 {
				return "positive", nil
			}
			return "", errors.New("non-positive")
		})
	})
	s, err := chained.Force()
	if err != nil || s != "positive" {
		t.Fatalf("FlatMap: got %q, %v", s, err)
	}
}
