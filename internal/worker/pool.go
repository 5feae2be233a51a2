// Package worker runs queued jobs against the store and supervises the workers doing it.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/queue"
	"go.uber.org/zap"
)

// Liveness flag values of a worker.
const (
	FlagReady   int32 = 0
	FlagStop    int32 = 1
	FlagStopped int32 = -1
)

// Pool defaults.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultStuckAfter   = 30 * time.Second
)

// HandlerFunc executes one job and returns its result. The pool publishes the outcome.
type HandlerFunc func(ctx context.Context, job queue.Job) (any, error)

// Stuck describes a worker busy on one job for too long.
type Stuck struct {
	Slot  int
	Tag   int64
	Type  queue.JobType
	Since time.Time
}

type slot struct {
	index int
	flag  atomic.Int32
	busy  atomic.Int64 // unix nanos the current job started, 0 when idle
	tag   atomic.Int64
	typ   atomic.Uint32
}

// Pool is a fixed set of workers pulling jobs from a queue.
type Pool struct {
	q          *queue.Queue
	handlers   map[queue.JobType]HandlerFunc
	log        *zap.Logger
	poll       time.Duration
	stuckAfter time.Duration
	now        func() time.Time

	mu    sync.Mutex
	ctx   context.Context
	slots []*slot
	wg    sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPollInterval sets how long an idle worker sleeps between queue polls.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithStuckAfter sets the busy time after which Watch reports a worker.
func WithStuckAfter(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.stuckAfter = d
		}
	}
}

// NewPool constructs a pool of n workers. Workers start with Start.
func NewPool(q *queue.Queue, n int, handlers map[queue.JobType]HandlerFunc, log *zap.Logger, opts ...PoolOption) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		q:          q,
		handlers:   handlers,
		log:        log,
		poll:       DefaultPollInterval,
		stuckAfter: DefaultStuckAfter,
		now:        time.Now,
		slots:      make([]*slot, n),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. ctx is passed to every handler.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	for i := range p.slots {
		p.spawnLocked(i)
	}
	p.log.Info("worker pool started", zap.Int("workers", len(p.slots)))
}

func (p *Pool) spawnLocked(i int) {
	s := &slot{index: i}
	p.slots[i] = s
	p.wg.Add(1)
	go p.run(p.ctx, s)
}

// Stop requests every worker to stop and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	for _, s := range p.slots {
		if s != nil {
			s.flag.CompareAndSwap(FlagReady, FlagStop)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

// Restart retires the worker in slot i and starts a fresh one in its place.
// The retired worker exits after its current job.
func (p *Pool) Restart(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.slots) || p.ctx == nil {
		return fmt.Errorf("restart worker %d: %w", i, errs.ErrInvalidArgument)
	}
	p.slots[i].flag.CompareAndSwap(FlagReady, FlagStop)
	p.spawnLocked(i)
	return nil
}

// Flags returns the liveness flag of every slot.
func (p *Pool) Flags() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int32, len(p.slots))
	for i, s := range p.slots {
		if s != nil {
			out[i] = s.flag.Load()
		}
	}
	return out
}

// Watch reports workers busy on one job longer than the stuck threshold.
func (p *Pool) Watch() []Stuck {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	var out []Stuck
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		started := s.busy.Load()
		if started == 0 {
			continue
		}
		since := time.Unix(0, started)
		if now.Sub(since) > p.stuckAfter {
			out = append(out, Stuck{Slot: s.index, Tag: s.tag.Load(), Type: queue.JobType(s.typ.Load()), Since: since})
		}
	}
	return out
}

func (p *Pool) run(ctx context.Context, s *slot) {
	defer p.wg.Done()
	defer s.flag.Store(FlagStopped)
	idle := time.NewTimer(p.poll)
	defer idle.Stop()

	for {
		if s.flag.Load() == FlagStop {
			return
		}
		job, ok := p.q.TakeNext()
		if !ok {
			idle.Reset(p.poll)
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		s.tag.Store(job.Tag)
		s.typ.Store(uint32(job.Type))
		s.busy.Store(p.now().UnixNano())
		p.process(ctx, s.index, job)
		s.busy.Store(0)
	}
}

// process runs one job and publishes exactly one response for its tag.
func (p *Pool) process(ctx context.Context, worker int, job queue.Job) {
	start := p.now()
	var resp queue.Response
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("job", job.Type.String()),
				)
				resp = queue.Response{Err: fmt.Errorf("%s: internal error", job.Type)}
			}
		}()
		h, ok := p.handlers[job.Type]
		if !ok {
			resp = queue.Response{Err: fmt.Errorf("%s: %w", job.Type, errs.ErrUnsupported)}
			return
		}
		res, err := h(ctx, job)
		resp = queue.Response{Result: res, Err: err}
	}()
	p.q.Publish(job.Tag, resp)

	// metadata only, never arguments
	fields := []zap.Field{
		zap.Int("worker", worker),
		zap.String("job", job.Type.String()),
		zap.Int64("tag", job.Tag),
		zap.Duration("dur", p.now().Sub(start)),
		zap.Duration("queued", start.Sub(job.RequestedAt)),
	}
	if resp.Err != nil {
		p.log.Debug("job failed", append(fields, zap.Error(resp.Err))...)
		return
	}
	p.log.Debug("job done", fields...)
}
