package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/protocol"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/service"
	"github.com/and161185/chitchat/internal/worker"
	"go.uber.org/zap"
)

// Reply reasons.
const (
	reasonTimeout     = "timeout"
	reasonInternal    = "internal error"
	reasonUnsupported = "not supported"
	reasonInvalid     = "invalid request"
)

// itemHandler serves one item. Errors end the session; recoverable failures are sent
// to the client as reply items and reported as nil.
type itemHandler func(s *session, ctx context.Context, it protocol.Item) error

var handlers map[protocol.Kind]itemHandler

func init() {
	handlers = map[protocol.Kind]itemHandler{
		protocol.KindPing:        (*session).ping,
		protocol.KindLogout:      func(*session, context.Context, protocol.Item) error { return errLogout },
		protocol.KindMsgGet:      (*session).msgGet,
		protocol.KindUpdateChats: (*session).updateChats,
		protocol.KindGetChat:     (*session).getChat,
		protocol.KindGetChats:    (*session).getChats,
		protocol.KindCreateChat:  (*session).createChat,
		protocol.KindMsgSend:     (*session).msgSend,
		protocol.KindSetStatus:   (*session).setStatus,
		protocol.KindAddUser:     (*session).unsupported,
		protocol.KindRemoveUser:  (*session).unsupported,
		protocol.KindChatInfo:    (*session).unsupported,
	}
}

func (s *session) dispatch(ctx context.Context, it protocol.Item) error {
	h, ok := handlers[it.Kind]
	if !ok {
		return fmt.Errorf("unexpected item %s: %w", it.Kind, errs.ErrProtocol)
	}
	return h(s, ctx, it)
}

func (s *session) reply(items ...protocol.Item) error { return s.c.Send(protocol.Packet(items)) }

func (s *session) replyError(reason string) error { return s.reply(protocol.ErrorItem(reason)) }

// failure maps a worker error to a reply, escalating authorization violations.
func (s *session) failure(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrForbidden):
		return err
	case errors.Is(err, errs.ErrInvalidArgument):
		return s.replyError(reasonInvalid)
	default:
		s.log.Error(op, zap.Error(err))
		return s.replyError(reasonInternal)
	}
}

func (s *session) ping(_ context.Context, it protocol.Item) error {
	var p protocol.Ping
	if err := it.Decode(&p); err != nil {
		return err
	}
	return s.reply(protocol.MustItem(protocol.KindPong, protocol.Pong{Timestamp: p.Timestamp}))
}

func (s *session) msgGet(ctx context.Context, _ protocol.Item) error {
	resp, ok := s.call(ctx, queue.JobFetchUnread, worker.UserArgs{UserID: s.user.ID}, s.h.cfg.BulkTimeout)
	if !ok {
		return s.replyError(reasonTimeout)
	}
	if resp.Err != nil {
		return s.failure("fetch unread", resp.Err)
	}
	chats, _ := resp.Result.([]*model.Chat)
	var items protocol.Packet
	for _, c := range chats {
		for _, m := range c.Messages {
			items = append(items, protocol.MustItem(protocol.KindMsg, protocol.Msg{
				Author:    protocol.UserRef{Tag: m.Author.Tag, Username: m.Author.Username},
				ChatID:    m.ChatID,
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
				Seq:       m.Seq,
			}))
		}
	}
	if err := s.reply(items...); err != nil {
		return err
	}
	s.acknowledge(ctx, service.DeliveredOf(chats))
	return nil
}

// acknowledge marks sent messages delivered. On failure they are fetched again by the
// next msg_get.
func (s *session) acknowledge(ctx context.Context, marks []service.Delivered) {
	if len(marks) == 0 {
		return
	}
	resp, ok := s.call(ctx, queue.JobMarkDelivered, worker.DeliveredArgs{UserID: s.user.ID, Delivered: marks}, s.h.cfg.AwaitTimeout)
	switch {
	case !ok:
		s.log.Warn("mark delivered: timeout", zap.Int("chats", len(marks)))
	case resp.Err != nil:
		s.log.Warn("mark delivered", zap.Error(resp.Err))
	}
}

func (s *session) updateChats(ctx context.Context, _ protocol.Item) error {
	resp, ok := s.call(ctx, queue.JobChatIDs, worker.UserArgs{UserID: s.user.ID}, s.h.cfg.AwaitTimeout)
	if !ok {
		return s.replyError(reasonTimeout)
	}
	if resp.Err != nil {
		return s.failure("chat ids", resp.Err)
	}
	ids, _ := resp.Result.([]int64)
	if ids == nil {
		ids = []int64{}
	}
	return s.reply(protocol.MustItem(protocol.KindUpdateChats, protocol.UpdateChats{ChatIDs: ids}))
}

func (s *session) getChat(ctx context.Context, it protocol.Item) error {
	var p protocol.GetChat
	if err := it.Decode(&p); err != nil {
		return err
	}
	return s.sendChats(ctx, []int64{p.ChatID}, s.h.cfg.AwaitTimeout)
}

func (s *session) getChats(ctx context.Context, it protocol.Item) error {
	var p protocol.GetChats
	if err := it.Decode(&p); err != nil {
		return err
	}
	return s.sendChats(ctx, p.ChatIDs, s.h.cfg.BulkTimeout)
}

// sendChats replies one get_chat item per chat visible to the user.
func (s *session) sendChats(ctx context.Context, ids []int64, timeout time.Duration) error {
	resp, ok := s.call(ctx, queue.JobGetChats, worker.GetChatsArgs{UserID: s.user.ID, ChatIDs: ids}, timeout)
	if !ok {
		return s.replyError(reasonTimeout)
	}
	if resp.Err != nil {
		return s.failure("get chats", resp.Err)
	}
	chats, _ := resp.Result.([]model.Chat)
	items := make(protocol.Packet, 0, len(chats))
	for i := range chats {
		items = append(items, protocol.MustItem(protocol.KindGetChat, chatInfo(&chats[i])))
	}
	return s.reply(items...)
}

func (s *session) createChat(ctx context.Context, it protocol.Item) error {
	var p protocol.CreateChat
	if err := it.Decode(&p); err != nil {
		return err
	}
	invitees := make([]model.Participant, 0, len(p.Invitees))
	for _, r := range p.Invitees {
		invitees = append(invitees, model.Participant{Username: r.Username, Tag: r.Tag})
	}
	args := worker.CreateChatArgs{Creator: s.me, Name: p.Name, Description: p.Description, Invitees: invitees}
	resp, ok := s.call(ctx, queue.JobCreateChat, args, s.h.cfg.BulkTimeout)
	fail := func(reason string) error {
		return s.reply(protocol.MustItem(protocol.KindCreateChatFail, protocol.CreateChatFail{Reason: reason}))
	}
	switch {
	case !ok:
		return fail(reasonTimeout)
	case errors.Is(resp.Err, errs.ErrNotFound):
		return fail("unknown invitee")
	case errors.Is(resp.Err, errs.ErrInvalidArgument):
		return fail(reasonInvalid)
	case resp.Err != nil:
		s.log.Error("create chat", zap.Error(resp.Err))
		return fail(reasonInternal)
	}
	c, _ := resp.Result.(*model.Chat)
	if c == nil {
		return fail(reasonInternal)
	}
	return s.reply(protocol.MustItem(protocol.KindCreateChatSuccess, chatInfo(c)))
}

func (s *session) msgSend(ctx context.Context, it protocol.Item) error {
	var p protocol.MsgSend
	if err := it.Decode(&p); err != nil {
		return err
	}
	resp, ok := s.call(ctx, queue.JobSendMessage, worker.SendArgs{AuthorID: s.user.ID, ChatID: p.ChatID, Content: p.Content}, s.h.cfg.AwaitTimeout)
	if !ok {
		return s.replyError(reasonTimeout)
	}
	if resp.Err != nil {
		return s.failure("send message", resp.Err)
	}
	m, _ := resp.Result.(model.ChatMessage)
	return s.reply(protocol.MustItem(protocol.KindMsgSent, protocol.MsgSent{ChatID: m.ChatID, Seq: m.Seq}))
}

func (s *session) setStatus(_ context.Context, it protocol.Item) error {
	var p protocol.SetStatus
	if err := it.Decode(&p); err != nil {
		return err
	}
	st := model.Status(p.Status)
	if !st.Valid() {
		return s.replyError(reasonInvalid)
	}
	s.h.q.SubmitDetached(queue.Job{Type: queue.JobSetStatus, Args: worker.StatusArgs{UserID: s.user.ID, Status: st}})
	return nil
}

func (s *session) unsupported(_ context.Context, it protocol.Item) error {
	return s.replyError(fmt.Sprintf("%s: %s", it.Kind, reasonUnsupported))
}

func chatInfo(c *model.Chat) protocol.ChatInfo {
	ps := make([]protocol.UserRef, 0, len(c.Participants))
	for _, p := range c.Participants {
		ps = append(ps, protocol.UserRef{Tag: p.Tag, Username: p.Username})
	}
	return protocol.ChatInfo{
		CreatedAt:    c.CreatedAt,
		Description:  c.Description,
		ID:           c.ID,
		Name:         c.Name,
		Participants: ps,
	}
}
