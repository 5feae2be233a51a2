package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startPool(t *testing.T, n int, handlers map[queue.JobType]HandlerFunc, opts ...PoolOption) (*queue.Queue, *Pool) {
	t.Helper()
	q := queue.New()
	opts = append([]PoolOption{WithPollInterval(time.Millisecond)}, opts...)
	p := NewPool(q, n, handlers, zaptest.NewLogger(t), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
	return q, p
}

func await(t *testing.T, q *queue.Queue, tag int64) queue.Response {
	t.Helper()
	resp, ok := q.Await(context.Background(), tag, 2*time.Second, true)
	require.True(t, ok, "no response for tag %d", tag)
	return resp
}

func TestPool_PublishesOneResponsePerJob(t *testing.T) {
	var calls atomic.Int64
	q, _ := startPool(t, 4, map[queue.JobType]HandlerFunc{
		queue.JobUserTag: func(_ context.Context, job queue.Job) (any, error) {
			calls.Add(1)
			return int(job.Args.(UserArgs).UserID) * 10, nil
		},
	})

	tags := make([]int64, 50)
	for i := range tags {
		tags[i] = q.Submit(queue.Job{Type: queue.JobUserTag, Args: UserArgs{UserID: int64(i)}})
	}
	for i, tag := range tags {
		resp := await(t, q, tag)
		require.NoError(t, resp.Err)
		require.Equal(t, i*10, resp.Result)
	}
	require.Equal(t, int64(50), calls.Load())
	require.Zero(t, q.Outstanding())
}

func TestPool_UnknownJobType(t *testing.T) {
	q, _ := startPool(t, 1, map[queue.JobType]HandlerFunc{})
	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobLastSeen}))
	require.ErrorIs(t, resp.Err, errs.ErrUnsupported)
}

func TestPool_PanicBecomesErrorResponse(t *testing.T) {
	q, _ := startPool(t, 1, map[queue.JobType]HandlerFunc{
		queue.JobChatIDs: func(context.Context, queue.Job) (any, error) { panic("boom") },
		queue.JobUserTag: func(context.Context, queue.Job) (any, error) { return 7, nil },
	})
	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobChatIDs}))
	require.Error(t, resp.Err)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobUserTag}))
	require.NoError(t, resp.Err)
	require.Equal(t, 7, resp.Result)
}

func TestPool_HandlerErrorIsPublished(t *testing.T) {
	boom := errors.New("boom")
	q, _ := startPool(t, 1, map[queue.JobType]HandlerFunc{
		queue.JobChatIDs: func(context.Context, queue.Job) (any, error) { return nil, boom },
	})
	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobChatIDs}))
	require.ErrorIs(t, resp.Err, boom)
}

func TestPool_StopMarksWorkersStopped(t *testing.T) {
	q := queue.New()
	p := NewPool(q, 3, nil, zaptest.NewLogger(t), WithPollInterval(time.Millisecond))
	p.Start(context.Background())
	require.Equal(t, []int32{FlagReady, FlagReady, FlagReady}, p.Flags())
	p.Stop()
	require.Equal(t, []int32{FlagStopped, FlagStopped, FlagStopped}, p.Flags())
}

func TestPool_WatchAndRestart(t *testing.T) {
	release := make(chan struct{})
	q, p := startPool(t, 1, map[queue.JobType]HandlerFunc{
		queue.JobChatIDs: func(context.Context, queue.Job) (any, error) {
			<-release
			return nil, nil
		},
		queue.JobUserTag: func(context.Context, queue.Job) (any, error) { return 1, nil },
	}, WithStuckAfter(10*time.Millisecond))
	defer close(release)

	blocked := q.Submit(queue.Job{Type: queue.JobChatIDs})
	require.Eventually(t, func() bool { return len(p.Watch()) == 1 }, time.Second, 5*time.Millisecond)
	st := p.Watch()[0]
	require.Equal(t, 0, st.Slot)
	require.Equal(t, blocked, st.Tag)
	require.Equal(t, queue.JobChatIDs, st.Type)

	require.NoError(t, p.Restart(0))
	require.Empty(t, p.Watch())
	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobUserTag}))
	require.Equal(t, 1, resp.Result)

	require.Error(t, p.Restart(5))
}
