package worker

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/repository"
	"github.com/and161185/chitchat/internal/repository/memstore"
	"github.com/and161185/chitchat/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHandlers_RegisterLoginAndChat(t *testing.T) {
	st := repository.NewStore(memstore.New())
	h := NewHandlers(service.NewAuth(st), service.NewChats(st, zaptest.NewLogger(t)))
	q, _ := startPool(t, 2, h)

	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobRegister, Args: RegisterArgs{Username: "alice", Password: "Str0ngPassw0rd!", PublicKey: []byte("k")}}))
	require.NoError(t, resp.Err)
	id := resp.Result.(int64)
	require.Positive(t, id)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobUserTag, Args: UserArgs{UserID: id}}))
	require.NoError(t, resp.Err)
	tag := resp.Result.(int)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobLogin, Args: LoginArgs{Username: "alice", Tag: tag, Password: "wrong"}}))
	require.ErrorIs(t, resp.Err, errs.ErrUnauthorized)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobLogin, Args: LoginArgs{Username: "alice", Tag: tag, Password: "Str0ngPassw0rd!"}}))
	require.NoError(t, resp.Err)
	u := resp.Result.(*model.User)
	require.Equal(t, id, u.ID)

	me := model.Participant{ID: u.ID, Username: u.Username, Tag: u.Tag}
	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobCreateChat, Args: CreateChatArgs{Creator: me, Name: "solo"}}))
	require.NoError(t, resp.Err)
	c := resp.Result.(*model.Chat)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobSendMessage, Args: SendArgs{AuthorID: id, ChatID: c.ID, Content: "note"}}))
	require.NoError(t, resp.Err)
	require.Equal(t, int64(1), resp.Result.(model.ChatMessage).Seq)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobChatIDs, Args: UserArgs{UserID: id}}))
	require.Equal(t, []int64{c.ID}, resp.Result)

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobSetStatus, Args: StatusArgs{UserID: id, Status: model.StatusAway}}))
	require.NoError(t, resp.Err)
}

func TestHandlers_WrongArgs(t *testing.T) {
	st := repository.NewStore(memstore.New())
	h := NewHandlers(service.NewAuth(st), service.NewChats(st, zaptest.NewLogger(t)))
	q, _ := startPool(t, 1, h)

	resp := await(t, q, q.Submit(queue.Job{Type: queue.JobLogin, Args: UserArgs{}}))
	require.ErrorIs(t, resp.Err, errs.ErrInvalidArgument)
}

func TestHandlers_FetchWaitsForAcknowledge(t *testing.T) {
	ctx := context.Background()
	st := repository.NewStore(memstore.New())
	chats := service.NewChats(st, zaptest.NewLogger(t))
	h := NewHandlers(service.NewAuth(st), chats)

	alice, err := st.CreateUser(ctx, "alice", []byte("h"), []byte("s"), []byte("k"))
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", []byte("h"), []byte("s"), []byte("k"))
	require.NoError(t, err)
	bobTag, err := st.UserTag(ctx, bob)
	require.NoError(t, err)
	aliceTag, err := st.UserTag(ctx, alice)
	require.NoError(t, err)
	c, err := chats.CreateChat(ctx, model.Participant{ID: alice, Username: "alice", Tag: aliceTag}, "pair", "",
		[]model.Participant{{ID: bob, Username: "bob", Tag: bobTag}})
	require.NoError(t, err)
	_, err = chats.Send(ctx, alice, c.ID, "hi")
	require.NoError(t, err)

	q := queue.New()
	tag := q.Submit(queue.Job{Type: queue.JobFetchUnread, Args: UserArgs{UserID: bob}})
	_, ok := q.Await(ctx, tag, 10*time.Millisecond, true)
	require.False(t, ok)

	p := NewPool(q, 1, h, zaptest.NewLogger(t), WithPollInterval(time.Millisecond))
	pctx, cancel := context.WithCancel(ctx)
	p.Start(pctx)
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})

	resp := await(t, q, tag)
	require.NoError(t, resp.Err)
	fetched := resp.Result.([]*model.Chat)
	require.Len(t, fetched, 1)
	require.Equal(t, "hi", fetched[0].Messages[0].Content)

	unread, err := chats.FetchUnread(ctx, bob)
	require.NoError(t, err)
	require.Len(t, unread, 1, "fetching alone must not mark messages delivered")

	resp = await(t, q, q.Submit(queue.Job{Type: queue.JobMarkDelivered, Args: DeliveredArgs{UserID: bob, Delivered: service.DeliveredOf(fetched)}}))
	require.NoError(t, resp.Err)
	unread, err = chats.FetchUnread(ctx, bob)
	require.NoError(t, err)
	require.Empty(t, unread)
}
