// Package queue hands jobs from connection goroutines to workers and correlates results by tag.
package queue

import (
	"context"
	"sync"
	"time"
)

// Default await budgets.
const (
	DefaultTimeout     = 15 * time.Second
	BulkTimeout        = 60 * time.Second
	DefaultPollBackoff = 100 * time.Millisecond
	// DefaultResponseTTL bounds how long an unconsumed response is kept.
	DefaultResponseTTL = 5 * time.Minute
)

// JobType selects the worker handler.
type JobType uint8

const (
	JobUnknown JobType = iota
	JobLogin
	JobRegister
	JobUserTag
	JobFetchUnread
	JobChatIDs
	JobGetChats
	JobCreateChat
	JobSendMessage
	JobSetStatus
	JobLastSeen
	JobMarkDelivered
)

var jobNames = [...]string{
	"unknown", "login", "register", "user_tag", "fetch_unread", "chat_ids",
	"get_chats", "create_chat", "send_message", "set_status", "last_seen", "mark_delivered",
}

func (t JobType) String() string {
	if int(t) < len(jobNames) {
		return jobNames[t]
	}
	return "invalid"
}

// Job is a unit of work. Tag and RequestedAt are stamped by Submit.
type Job struct {
	Type        JobType
	Args        any
	Tag         int64
	RequestedAt time.Time
}

// Response is the outcome of a job, keyed by the job's tag.
type Response struct {
	Tag    int64
	Result any
	Err    error
}

// Queue is a FIFO of pending jobs plus a tag-keyed map of responses.
// All methods are safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	pending   []Job
	responses map[int64]stored
	forgotten map[int64]struct{}
	lastTag   int64
	changed   chan struct{}
	poll      time.Duration
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type stored struct {
	resp Response
	at   time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithResponseTTL sets how long an unconsumed response survives.
func WithResponseTTL(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		responses: make(map[int64]stored),
		forgotten: make(map[int64]struct{}),
		changed:   make(chan struct{}),
		poll:      DefaultPollBackoff,
		ttl:       DefaultResponseTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	q.lastSweep = q.now()
	return q
}

// Submit assigns the next tag, stamps the request time, enqueues the job and returns the tag.
func (q *Queue) Submit(job Job) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTag++
	job.Tag = q.lastTag
	job.RequestedAt = q.now()
	q.pending = append(q.pending, job)
	return job.Tag
}

// TakeNext pops the oldest pending job.
func (q *Queue) TakeNext() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Job{}, false
	}
	job := q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]
	return job, true
}

// Publish stores resp under tag, replacing any unconsumed value, and wakes waiters.
// Responses for forgotten tags are dropped. Responses left unconsumed for longer than
// the TTL are swept.
func (q *Queue) Publish(tag int64, resp Response) {
	resp.Tag = tag
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.sweepLocked(now)
	if _, ok := q.forgotten[tag]; ok {
		delete(q.forgotten, tag)
		return
	}
	q.responses[tag] = stored{resp: resp, at: now}
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue) sweepLocked(now time.Time) {
	if now.Sub(q.lastSweep) < q.ttl {
		return
	}
	q.lastSweep = now
	for tag, st := range q.responses {
		if now.Sub(st.at) >= q.ttl {
			delete(q.responses, tag)
		}
	}
}

// Forget declares that nobody will await tag. A stored response is removed and a
// later one is dropped on Publish. Use it for fire-and-forget jobs.
func (q *Queue) Forget(tag int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.responses[tag]; ok {
		delete(q.responses, tag)
		return
	}
	q.forgotten[tag] = struct{}{}
}

// SubmitDetached submits a fire-and-forget job whose response is discarded.
func (q *Queue) SubmitDetached(job Job) int64 {
	tag := q.Submit(job)
	q.Forget(tag)
	return tag
}

// Await waits up to timeout for the response of tag. ok is false when no response
// arrived in time or ctx ended; that is the "not ready" outcome, not an error, and the
// tag can be awaited again. With consume the stored response is removed.
func (q *Queue) Await(ctx context.Context, tag int64, timeout time.Duration, consume bool) (Response, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(q.poll)
	defer poll.Stop()

	for {
		q.mu.Lock()
		st, ok := q.responses[tag]
		if ok && consume {
			delete(q.responses, tag)
		}
		changed := q.changed
		q.mu.Unlock()
		if ok {
			return st.resp, true
		}

		select {
		case <-changed:
		case <-poll.C:
		case <-deadline.C:
			return q.giveUp(tag, consume)
		case <-ctx.Done():
			return q.giveUp(tag, consume)
		}
	}
}

// giveUp runs the last check of an expired Await.
func (q *Queue) giveUp(tag int64, consume bool) (Response, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.responses[tag]
	if ok && consume {
		delete(q.responses, tag)
	}
	return st.resp, ok
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Outstanding returns the number of responses not yet consumed.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.responses)
}
