// Package scheduler is the cooperative rate-limited request gate every
// provider call — download pagination, event-stream polling — passes
// through before it's allowed to fire. It reimplements the original
// implementation's hand-rolled priority queue and per-second admission
// loop (providers/stripe/queue.rs) on top of golang.org/x/time/rate's
// token bucket and a goroutine-driven heap, since Go has no single-threaded
// executor to cooperate within the way the original did.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tabledog/tdog/internal/config"
)

// Ticket is a reservation for one admitted request. A caller enqueues one
// per outbound HTTP call and blocks on Wait until the scheduler admits it.
type Ticket struct {
	t *ticket
}

// Wait blocks until the scheduler admits this ticket or ctx is cancelled.
func (tk *Ticket) Wait(ctx context.Context) error {
	select {
	case <-tk.t.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler is the single admission point for every outbound provider
// request in one tdog run. Requests queue by Priority; admission is paced
// by a token bucket sized from config.Scheduler.MaxStartsPerSecond, and can
// be paused entirely while a 429 response is being waited out.
type Scheduler struct {
	mu   sync.Mutex
	heap ticketHeap
	seq  int64

	limiter *rate.Limiter
	wake    chan struct{}

	paused       bool
	pauseBackoff time.Duration

	logger *slog.Logger
}

// New builds a Scheduler from the run's resolved configuration. Call Run in
// its own goroutine before any Enqueue call is expected to make progress.
func New(cfg config.Scheduler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	rps := cfg.MaxStartsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Scheduler{
		limiter:      rate.NewLimiter(rate.Limit(rps), rps),
		wake:         make(chan struct{}, 1),
		pauseBackoff: cfg.PauseBackoff,
		logger:       logger,
	}
}

// Enqueue adds a ticket at the given priority and returns it for the
// caller to Wait on. Safe for concurrent use by every downloader/
// eventfetcher goroutine sharing this Scheduler.
func (s *Scheduler) Enqueue(priority Priority) *Ticket {
	s.mu.Lock()

	s.seq++
	t := &ticket{priority: priority, seq: s.seq, ready: make(chan struct{})}
	heap.Push(&s.heap, t)

	s.mu.Unlock()
	s.poke()

	return &Ticket{t: t}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pause stops the scheduler from admitting any new ticket until Resume is
// called, the response to a 429 this run just received.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// QueueLen reports how many tickets are currently waiting for admission,
// sampled by internal/statstask's periodic log line.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.heap.Len()
}

// Resume lifts a prior Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.poke()
}

// Run is the scheduler's admission loop: wait for capacity from the token
// bucket, then pop and release the highest-priority waiting ticket. It
// returns when ctx is cancelled, after which every ticket still queued is
// left unreleased (callers must select on both Ticket.Wait and their own
// ctx).
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		paused := s.paused
		empty := s.heap.Len() == 0
		s.mu.Unlock()

		if paused {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			case <-s.wake:
			}

			continue
		}

		if empty {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}

			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}

		s.mu.Lock()
		if s.heap.Len() == 0 || s.paused {
			s.mu.Unlock()

			continue
		}

		next := heap.Pop(&s.heap).(*ticket)
		s.mu.Unlock()

		close(next.ready)
	}
}
