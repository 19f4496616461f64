package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
)

type PoolConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	// PerSecond paces Paced jobs; 0 disables pacing.
	PerSecond float64
}

type envelope struct {
	job     Job
	attempt int
}

// WorkerPool is the in-process Queue.
type WorkerPool struct {
	cfg     PoolConfig
	ch      chan envelope
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	pending sync.WaitGroup
	cancel  context.CancelFunc
}

func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	p := &WorkerPool{
		cfg: cfg,
		ch:  make(chan envelope, cfg.QueueSize),
		log: logger.For("jobs"),
	}
	if cfg.PerSecond > 0 {
		burst := int(cfg.PerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)
	}
	return p
}

func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	p.log.Info().Int("workers", p.cfg.Workers).Msg("worker pool started")
}

// Stop refuses new jobs, waits for queued ones (including scheduled retries)
// until ctx expires, then stops the workers.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn().Msg("worker pool stopped with jobs still queued")
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) Enqueue(_ context.Context, job Job) error {
	return p.push(envelope{job: job, attempt: 1})
}

func (p *WorkerPool) push(e envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed && e.attempt == 1 {
		return ErrQueueClosed
	}
	p.pending.Add(1)
	select {
	case p.ch <- e:
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

func (p *WorkerPool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.ch:
			p.run(ctx, e)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, e envelope) {
	defer p.pending.Done()

	if paced, ok := e.job.(Paced); ok && paced.Paced() && p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
	}

	err := safeRun(ctx, e.job)
	metrics.RecordJobRun(e.job.Name(), err == nil)
	if err == nil {
		return
	}

	l := p.log.With().Str("job", e.job.Name()).Int("attempt", e.attempt).Logger()
	if e.attempt >= p.cfg.MaxAttempts {
		l.Error().Err(err).Msg("job failed, giving up")
		return
	}
	l.Warn().Err(err).Msg("job failed, retrying")

	next := envelope{job: e.job, attempt: e.attempt + 1}
	p.pending.Add(1)
	time.AfterFunc(p.cfg.Backoff*time.Duration(e.attempt), func() {
		defer p.pending.Done()
		if err := p.push(next); err != nil {
			l.Error().Err(err).Msg("job retry dropped")
		}
	})
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return job.Run(ctx)
}
