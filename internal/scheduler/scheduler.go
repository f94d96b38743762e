// Package scheduler implements the bounded priority scheduler (§4.2): a
// container/heap priority queue ordered by effective priority with explicit
// monotonic sequence-id tiebreaking for FIFO-within-priority ordering, an
// aging goroutine that boosts long-waiting entries to prevent starvation,
// and bounded-queue admission control. Grounded on the teacher's
// worker-pool and channel-driven concurrency idiom in
// services/orchestrator/dag_engine.go (executeDAG/worker), generalized from
// an unordered ready channel to an explicit heap.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Submit when the bounded queue is at capacity.
var ErrQueueFull = errors.New("scheduler: queue full")

// ErrShutdown is returned by Submit after Shutdown has been called.
var ErrShutdown = errors.New("scheduler: shutdown")

const (
	MinPriority = 0
	MaxPriority = 100
	// DefaultPriority is used by SubmitNormal.
	DefaultPriority = 50
)

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// QueueEntry is one submitted unit of work awaiting execution.
type QueueEntry struct {
	SequenceID        uint64
	SubmittedPriority int
	SubmittedAt       time.Time
	EffectivePriority int
	Gate              func(ctx context.Context)
}

// entryHeap is a max-heap on EffectivePriority, tiebroken by the lowest
// SequenceID (earliest submission) so equal-priority entries run FIFO.
type entryHeap []*QueueEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].EffectivePriority != h[j].EffectivePriority {
		return h[i].EffectivePriority > h[j].EffectivePriority
	}
	return h[i].SequenceID < h[j].SequenceID
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*QueueEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	QueueDepth         int
	Capacity           int // 0 means unbounded
	ActiveCount        int // entries currently being dispatched by a worker
	TotalSubmitted     uint64
	TotalDispatched    uint64 // renamed total_completed in §3: a dispatch's full round, including its gate
	TotalCompletedHigh uint64 // completed with effective priority >= 75
	TotalCompletedLow  uint64 // completed with effective priority < 25
	TotalRejected      uint64
	TotalAged          uint64
}

// Config tunes a Scheduler.
type Config struct {
	// Capacity bounds the queue; 0 or negative means unbounded.
	Capacity int
	// Workers is the number of goroutines dispatching queue entries.
	Workers int
	// AgingInterval is how often waiting entries are reconsidered for a
	// priority boost. Defaults to 5s if zero.
	AgingInterval time.Duration
	// AgingBoost is added to EffectivePriority (clamped to MaxPriority) for
	// every AgingInterval an entry has waited. Defaults to 1 if zero.
	AgingBoost int
	// MaxWaitBeforeAging is the minimum time an entry must have waited
	// before it becomes eligible for aging boosts. Defaults to
	// AgingInterval if zero.
	MaxWaitBeforeAging time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.AgingInterval <= 0 {
		c.AgingInterval = 5 * time.Second
	}
	if c.AgingBoost <= 0 {
		c.AgingBoost = 1
	}
	if c.MaxWaitBeforeAging <= 0 {
		c.MaxWaitBeforeAging = c.AgingInterval
	}
	return c
}

// Scheduler is a bounded priority queue of work dispatched by a fixed pool
// of workers, with periodic starvation-prevention aging.
type Scheduler struct {
	cfg Config

	mu       sync.Mutex
	heap     entryHeap
	notEmpty *sync.Cond
	shutdown bool

	seq uint64

	submitted     atomic.Uint64
	dispatched    atomic.Uint64
	completedHigh atomic.Uint64
	completedLow  atomic.Uint64
	rejected      atomic.Uint64
	aged          atomic.Uint64
	active        atomic.Int64

	workersWG sync.WaitGroup
	agingStop chan struct{}
	agingDone chan struct{}
}

// New starts a Scheduler with cfg.Workers goroutines consuming the queue.
// Callers must call Shutdown to stop the workers and aging goroutine.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:       cfg,
		agingStop: make(chan struct{}),
		agingDone: make(chan struct{}),
	}
	s.notEmpty = sync.NewCond(&s.mu)
	heap.Init(&s.heap)

	for i := 0; i < cfg.Workers; i++ {
		s.workersWG.Add(1)
		go s.workerLoop()
	}
	go s.agingLoop()
	return s
}

// Unbounded returns a Scheduler with no queue capacity limit, useful for
// tests that want Submit to never fail with ErrQueueFull.
func Unbounded(workers int) *Scheduler {
	return New(Config{Capacity: 0, Workers: workers})
}

// Submit enqueues gate at the given priority (clamped to [0,100]), to be
// invoked by a worker goroutine with a background context once dispatched.
// Returns ErrQueueFull if the scheduler is bounded and at capacity, or
// ErrShutdown if Shutdown has already been called.
func (s *Scheduler) Submit(priority int, gate func(ctx context.Context)) error {
	priority = clampPriority(priority)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.rejected.Add(1)
		return ErrShutdown
	}
	if s.cfg.Capacity > 0 && len(s.heap) >= s.cfg.Capacity {
		s.mu.Unlock()
		s.rejected.Add(1)
		return ErrQueueFull
	}
	s.seq++
	entry := &QueueEntry{
		SequenceID:        s.seq,
		SubmittedPriority: priority,
		SubmittedAt:       time.Now(),
		EffectivePriority: priority,
		Gate:              gate,
	}
	heap.Push(&s.heap, entry)
	s.submitted.Add(1)
	s.notEmpty.Signal()
	s.mu.Unlock()
	return nil
}

// SubmitNormal submits gate at DefaultPriority.
func (s *Scheduler) SubmitNormal(gate func(ctx context.Context)) error {
	return s.Submit(DefaultPriority, gate)
}

func (s *Scheduler) workerLoop() {
	defer s.workersWG.Done()
	for {
		s.mu.Lock()
		for len(s.heap) == 0 && !s.shutdown {
			s.notEmpty.Wait()
		}
		if len(s.heap) == 0 && s.shutdown {
			s.mu.Unlock()
			return
		}
		entry := heap.Pop(&s.heap).(*QueueEntry)
		s.mu.Unlock()

		s.active.Add(1)
		entry.Gate(context.Background())
		s.active.Add(-1)

		s.dispatched.Add(1)
		switch {
		case entry.EffectivePriority >= 75:
			s.completedHigh.Add(1)
		case entry.EffectivePriority < 25:
			s.completedLow.Add(1)
		}
	}
}

func (s *Scheduler) agingLoop() {
	defer close(s.agingDone)
	ticker := time.NewTicker(s.cfg.AgingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.agingStop:
			return
		case <-ticker.C:
			s.applyAging()
		}
	}
}

func (s *Scheduler) applyAging() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, e := range s.heap {
		waited := now.Sub(e.SubmittedAt)
		if waited < s.cfg.MaxWaitBeforeAging {
			continue
		}
		steps := int(waited / s.cfg.AgingInterval)
		boosted := clampPriority(e.SubmittedPriority + steps*s.cfg.AgingBoost)
		if boosted != e.EffectivePriority {
			e.EffectivePriority = boosted
			changed = true
			s.aged.Add(1)
		}
	}
	if changed {
		heap.Init(&s.heap)
		s.notEmpty.Broadcast()
	}
}

// Stats returns a snapshot of scheduler counters and queue depth.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	depth := len(s.heap)
	s.mu.Unlock()
	return Stats{
		QueueDepth:         depth,
		Capacity:           s.cfg.Capacity,
		ActiveCount:        int(s.active.Load()),
		TotalSubmitted:     s.submitted.Load(),
		TotalDispatched:    s.dispatched.Load(),
		TotalCompletedHigh: s.completedHigh.Load(),
		TotalCompletedLow:  s.completedLow.Load(),
		TotalRejected:      s.rejected.Load(),
		TotalAged:          s.aged.Load(),
	}
}

// Shutdown stops accepting new work, lets already-dispatched gates finish,
// drains the remaining queue to workers, and waits for all worker and
// aging goroutines to exit. Shutdown is idempotent.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.notEmpty.Broadcast()
	s.mu.Unlock()

	close(s.agingStop)
	<-s.agingDone
	s.workersWG.Wait()
}

func (s Stats) String() string {
	return fmt.Sprintf("depth=%d cap=%d active=%d submitted=%d dispatched=%d (high=%d low=%d) rejected=%d aged=%d",
		s.QueueDepth, s.Capacity, s.ActiveCount, s.TotalSubmitted, s.TotalDispatched,
		s.TotalCompletedHigh, s.TotalCompletedLow, s.TotalRejected, s.TotalAged)
}
