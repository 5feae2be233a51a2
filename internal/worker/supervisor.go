package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultWatchInterval is how often the supervisor inspects the pool.
const DefaultWatchInterval = 500 * time.Millisecond

// ErrKillRequested is passed to the fatal callback on EventKillRequested.
var ErrKillRequested = errors.New("kill requested")

// EventKind classifies a health event.
type EventKind uint8

const (
	EventStoreUnreachable EventKind = iota + 1
	EventWorkerStuck
	EventKillRequested
)

func (k EventKind) String() string {
	switch k {
	case EventStoreUnreachable:
		return "store_unreachable"
	case EventWorkerStuck:
		return "worker_stuck"
	case EventKillRequested:
		return "kill_requested"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is a typed health signal sent to the supervisor.
type Event struct {
	Kind   EventKind
	Worker int
	Err    error
}

// Supervisor restarts stuck workers and escalates store loss to the fatal callback.
type Supervisor struct {
	events   chan Event
	interval time.Duration
	fatal    func(error)
	log      *zap.Logger
	flag     atomic.Int32
	restarts atomic.Int64
}

// NewSupervisor constructs a supervisor. fatal is called at most once, with the reason
// the process should stop.
func NewSupervisor(log *zap.Logger, interval time.Duration, fatal func(error)) *Supervisor {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Supervisor{events: make(chan Event, 64), interval: interval, fatal: fatal, log: log}
}

// Report delivers ev without blocking. Events are dropped when the buffer is full.
func (s *Supervisor) Report(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("supervisor event dropped", zap.String("kind", ev.Kind.String()))
	}
}

// Stop asks Run to return on its next tick.
func (s *Supervisor) Stop() { s.flag.CompareAndSwap(FlagReady, FlagStop) }

// Restarts returns how many workers were restarted.
func (s *Supervisor) Restarts() int64 { return s.restarts.Load() }

// Run watches pool until ctx ends, Stop is called, or a fatal event fires.
func (s *Supervisor) Run(ctx context.Context, pool *Pool) {
	defer s.flag.Store(FlagStopped)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if s.handle(pool, ev) {
				return
			}
		case <-t.C:
			if s.flag.Load() == FlagStop {
				return
			}
			for _, st := range pool.Watch() {
				s.handle(pool, Event{Kind: EventWorkerStuck, Worker: st.Slot,
					Err: fmt.Errorf("%s job %d busy since %s", st.Type, st.Tag, st.Since.Format(time.RFC3339))})
			}
		}
	}
}

// handle reacts to ev and reports whether the supervisor must stop.
func (s *Supervisor) handle(pool *Pool, ev Event) bool {
	switch ev.Kind {
	case EventWorkerStuck:
		s.log.Warn("worker stuck, restarting", zap.Int("worker", ev.Worker), zap.Error(ev.Err))
		if err := pool.Restart(ev.Worker); err != nil {
			s.log.Error("restart worker", zap.Int("worker", ev.Worker), zap.Error(err))
			return false
		}
		s.restarts.Add(1)
		return false
	case EventStoreUnreachable:
		s.log.Error("store unreachable", zap.Error(ev.Err))
		s.escalate(fmt.Errorf("store unreachable: %w", ev.Err))
		return true
	case EventKillRequested:
		s.log.Warn("kill requested")
		s.escalate(ErrKillRequested)
		return true
	default:
		s.log.Warn("unknown supervisor event", zap.String("kind", ev.Kind.String()))
		return false
	}
}

func (s *Supervisor) escalate(err error) {
	if s.fatal != nil {
		s.fatal(err)
	}
}
