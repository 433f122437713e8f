package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scholarfin/be-fund-requests/internal/logger"
)

// job is one delivery attempt: a transport publish or an adapter call.
type job struct {
	channel   string
	requestID string
	version   int64
	run       func(ctx context.Context) error
}

// WorkerConfig bounds the delivery worker pool.
type WorkerConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
}

// Worker drains delivery jobs on background goroutines with bounded
// exponential-backoff retry. Failures never reach the transition path; after
// the attempt budget is spent the job is dropped and logged.
type Worker struct {
	cfg   WorkerConfig
	queue chan job
	log   *logger.Logger

	mu     sync.Mutex
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a stopped worker pool.
func NewWorker(cfg WorkerConfig, log *logger.Logger) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	return &Worker{
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
		log:   log,
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

// Stop closes intake and waits for the workers to drain everything already
// queued, each job keeping its full retry budget. The context is released
// only after the drain so in-flight retries are not cut short.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	if w.cancel != nil {
		w.cancel()
	}
}

// enqueue hands a job to the pool without blocking the caller. A full queue
// or a stopped worker drops the job; delivery is best-effort by contract.
func (w *Worker) enqueue(j job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Warn().
			Str("channel", j.channel).
			Str("request_id", j.requestID).
			Int64("version", j.version).
			Msg("delivery worker stopped, dropping notification")
		return
	}
	select {
	case w.queue <- j:
	default:
		w.log.Warn().
			Str("channel", j.channel).
			Str("request_id", j.requestID).
			Int64("version", j.version).
			Msg("delivery queue full, dropping notification")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for j := range w.queue {
		w.deliver(ctx, j)
	}
}

// deliver retries the job with exponential backoff until it succeeds, the
// attempt budget is spent, or the worker is stopped.
func (w *Worker) deliver(ctx context.Context, j job) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.RetryBase
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := 0
	operation := func() error {
		attempts++
		return j.run(ctx)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(w.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		w.log.Warn().Err(err).
			Str("channel", j.channel).
			Str("request_id", j.requestID).
			Int64("version", j.version).
			Int("attempts", attempts).
			Msg("notification delivery failed, dropping after retries")
		return
	}

	w.log.Debug().
		Str("channel", j.channel).
		Str("request_id", j.requestID).
		Int64("version", j.version).
		Msg("notification delivered")
}
