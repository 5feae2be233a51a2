package worker

import (
	"context"
	"fmt"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/service"
)

// Job arguments, one type per job kind.

type LoginArgs struct {
	Username string
	Tag      int
	Password string
}

type RegisterArgs struct {
	Username  string
	Password  string
	PublicKey []byte
}

// UserArgs serves jobs that only need the caller: user tag, fetch unread, chat ids, last seen.
type UserArgs struct {
	UserID int64
}

type GetChatsArgs struct {
	UserID  int64
	ChatIDs []int64
}

type CreateChatArgs struct {
	Creator     model.Participant
	Name        string
	Description string
	Invitees    []model.Participant
}

type SendArgs struct {
	AuthorID int64
	ChatID   int64
	Content  string
}

type StatusArgs struct {
	UserID int64
	Status model.Status
}

type DeliveredArgs struct {
	UserID    int64
	Delivered []service.Delivered
}

// NewHandlers builds the job dispatch table.
//
// Results by job type: login *model.User, register int64, user_tag int,
// fetch_unread []*model.Chat, chat_ids []int64, get_chats []model.Chat,
// create_chat *model.Chat, send_message model.ChatMessage, set_status, last_seen and
// mark_delivered nil.
func NewHandlers(auth *service.Auth, chats *service.Chats) map[queue.JobType]HandlerFunc {
	return map[queue.JobType]HandlerFunc{
		queue.JobLogin: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[LoginArgs](job)
			if err != nil {
				return nil, err
			}
			return auth.Login(ctx, a.Username, a.Tag, a.Password)
		},
		queue.JobRegister: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[RegisterArgs](job)
			if err != nil {
				return nil, err
			}
			return auth.Register(ctx, a.Username, a.Password, a.PublicKey)
		},
		queue.JobUserTag: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[UserArgs](job)
			if err != nil {
				return nil, err
			}
			return auth.UserTag(ctx, a.UserID)
		},
		queue.JobFetchUnread: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[UserArgs](job)
			if err != nil {
				return nil, err
			}
			return chats.FetchUnread(ctx, a.UserID)
		},
		queue.JobChatIDs: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[UserArgs](job)
			if err != nil {
				return nil, err
			}
			return chats.ChatIDs(ctx, a.UserID)
		},
		queue.JobGetChats: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[GetChatsArgs](job)
			if err != nil {
				return nil, err
			}
			return chats.GetChats(ctx, a.UserID, a.ChatIDs)
		},
		queue.JobCreateChat: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[CreateChatArgs](job)
			if err != nil {
				return nil, err
			}
			return chats.CreateChat(ctx, a.Creator, a.Name, a.Description, a.Invitees)
		},
		queue.JobSendMessage: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[SendArgs](job)
			if err != nil {
				return nil, err
			}
			return chats.Send(ctx, a.AuthorID, a.ChatID, a.Content)
		},
		queue.JobSetStatus: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[StatusArgs](job)
			if err != nil {
				return nil, err
			}
			return nil, chats.SetStatus(ctx, a.UserID, a.Status)
		},
		queue.JobLastSeen: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[UserArgs](job)
			if err != nil {
				return nil, err
			}
			return nil, chats.LastSeen(ctx, a.UserID)
		},
		queue.JobMarkDelivered: func(ctx context.Context, job queue.Job) (any, error) {
			a, err := argsOf[DeliveredArgs](job)
			if err != nil {
				return nil, err
			}
			return nil, chats.Acknowledge(ctx, a.UserID, a.Delivered)
		},
	}
}

func argsOf[T any](job queue.Job) (T, error) {
	a, ok := job.Args.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: args %T: %w", job.Type, job.Args, errs.ErrInvalidArgument)
	}
	return a, nil
}
