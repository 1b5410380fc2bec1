// Package statstask periodically drains and logs request/queue statistics
// for one run, the Go counterpart of the original implementation's
// log_stats_every (providers/stripe/watch.rs): every 30 seconds it reports
// how many outbound requests completed, split by status code, alongside
// the scheduler's current queue depth. Unlike the original's ad hoc log
// line, every figure is also exposed as a Prometheus gauge/counter so it
// can be scraped instead of grepped.
package statstask

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// logInterval matches the original implementation's 30-second cadence.
const logInterval = 30 * time.Second

// QueueLenFunc reports the current scheduler queue depth, sampled once per
// tick rather than pushed, since the scheduler's queue changes far more
// often than it's worth logging.
type QueueLenFunc func() int

// Recorder accumulates outbound request outcomes between ticks and
// implements providerclient.Recorder, so an HTTPClient can report directly
// into it via WithRecorder.
type Recorder struct {
	mu        sync.Mutex
	total     int
	totalOK   int
	totalMS   time.Duration
	byStatus  map[string]int
	requests  prometheus.Counter
	durations prometheus.Histogram
}

// NewRecorder builds a Recorder and registers its collectors. reg may be
// nil, in which case the default Prometheus registry is used.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		byStatus: make(map[string]int),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdog_provider_requests_total",
			Help: "Outbound provider API requests completed, across every status.",
		}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tdog_provider_request_duration_seconds",
			Help:    "Outbound provider API request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.requests, r.durations)

	return r
}

// RecordRequest implements providerclient.Recorder.
func (r *Recorder) RecordRequest(status int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests.Inc()
	r.durations.Observe(d.Seconds())

	r.total++

	code := "net_error"

	if status != 0 {
		code = statusBucket(status)
	}

	if status == 200 {
		r.totalOK++
		r.totalMS += d
	}

	r.byStatus[code]++
}

func statusBucket(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// drain returns the accumulated counts since the last drain and resets
// them, matching the original's per-tick stats.req_log.clear() idiom.
func (r *Recorder) drain() (total, totalOK int, avgMS float64, byStatus map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus = r.byStatus
	total = r.total
	totalOK = r.totalOK

	if r.totalOK > 0 {
		avgMS = float64(r.totalMS.Milliseconds()) / float64(r.totalOK)
	}

	r.total, r.totalOK, r.totalMS = 0, 0, 0
	r.byStatus = make(map[string]int)

	return total, totalOK, avgMS, byStatus
}

// Run logs a stats line every 30 seconds until ctx is cancelled, at which
// point it returns ctx.Err(). Intended to run in its own goroutine for the
// lifetime of one download or apply-events run, alongside scheduler.Run.
func Run(ctx context.Context, recorder *Recorder, queueLen QueueLenFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			total, totalOK, avgMS, byStatus := recorder.drain()

			logger.Info("request stats",
				slog.Int("queue_len", queueLen()),
				slog.Int("requests_total", total),
				slog.Int("requests_ok", totalOK),
				slog.Float64("avg_ok_latency_ms", avgMS),
				slog.Any("by_status", byStatus),
			)
		}
	}
}
