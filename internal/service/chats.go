package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"go.uber.org/zap"
)

// ChatStore is the chat part of the store.
type ChatStore interface {
	CreateChat(ctx context.Context, name, description string, creatorID int64) (int64, time.Time, error)
	InsertParticipant(ctx context.Context, chatID int64, username string, tag int) (int64, error)
	ChatParticipants(ctx context.Context, chatID int64) ([]model.Participant, error)
	UserChats(ctx context.Context, userID int64) ([]int64, error)
	Chat(ctx context.Context, chatID, userID int64) (*model.Chat, error)
	CreateMessage(ctx context.Context, chatID, authorID int64, content string) (int64, time.Time, error)
	UnreadMessages(ctx context.Context, userID int64) ([]model.ChatMessage, error)
	MarkDelivered(ctx context.Context, userID, chatID, seq int64) error
	SetStatus(ctx context.Context, userID int64, st model.Status) error
	SetLastSeen(ctx context.Context, userID int64) error
	DeleteChat(ctx context.Context, chatID int64) error
}

// Chats runs chat operations on behalf of an authenticated user.
type Chats struct {
	store ChatStore
	log   *zap.Logger
}

// NewChats constructs Chats.
func NewChats(store ChatStore, log *zap.Logger) *Chats {
	return &Chats{store: store, log: log}
}

// Send appends content to a chat. errs.ErrForbidden means the author is not a member.
func (s *Chats) Send(ctx context.Context, authorID, chatID int64, content string) (model.ChatMessage, error) {
	if chatID <= 0 {
		return model.ChatMessage{}, fmt.Errorf("send: chat id %d: %w", chatID, errs.ErrInvalidArgument)
	}
	seq, created, err := s.store.CreateMessage(ctx, chatID, authorID, content)
	if err != nil {
		return model.ChatMessage{}, err
	}
	return model.ChatMessage{ChatID: chatID, Seq: seq, Author: model.Participant{ID: authorID}, CreatedAt: created, Content: content}, nil
}

// FetchUnread returns messages not yet acknowledged by userID. The result holds one chat
// per source chat, ordered by id, each with messages ascending by Seq. Nothing is marked
// delivered; see Acknowledge.
func (s *Chats) FetchUnread(ctx context.Context, userID int64) ([]*model.Chat, error) {
	msgs, err := s.store.UnreadMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := map[int64]*model.Chat{}
	for _, m := range msgs {
		c, ok := byID[m.ChatID]
		if !ok {
			c = &model.Chat{ID: m.ChatID}
			byID[m.ChatID] = c
		}
		c.AppendMessage(m)
	}

	out := make([]*model.Chat, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delivered is the highest sequence number of a chat the client has received.
type Delivered struct {
	ChatID int64
	Seq    int64
}

// DeliveredOf lists the last seq of every non-empty chat.
func DeliveredOf(chats []*model.Chat) []Delivered {
	out := make([]Delivered, 0, len(chats))
	for _, c := range chats {
		if seq := c.LastSeq(); seq > 0 {
			out = append(out, Delivered{ChatID: c.ID, Seq: seq})
		}
	}
	return out
}

// Acknowledge records messages as delivered to userID. Until then FetchUnread keeps
// returning them.
func (s *Chats) Acknowledge(ctx context.Context, userID int64, marks []Delivered) error {
	for _, d := range marks {
		if err := s.store.MarkDelivered(ctx, userID, d.ChatID, d.Seq); err != nil {
			return fmt.Errorf("mark delivered chat %d: %w", d.ChatID, err)
		}
	}
	return nil
}

// ChatIDs lists the chats userID belongs to.
func (s *Chats) ChatIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.UserChats(ctx, userID)
}

// GetChats loads metadata and participants of the given chats. Ids the user is not a
// member of, or that do not exist, are skipped.
func (s *Chats) GetChats(ctx context.Context, userID int64, chatIDs []int64) ([]model.Chat, error) {
	out := make([]model.Chat, 0, len(chatIDs))
	for _, id := range chatIDs {
		c, err := s.store.Chat(ctx, id, userID)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ps, err := s.store.ChatParticipants(ctx, id)
		if err != nil {
			return nil, err
		}
		c.Update(c.Name, c.Description, ps)
		out = append(out, *c)
	}
	return out, nil
}

// SetStatus stores the user's presence.
func (s *Chats) SetStatus(ctx context.Context, userID int64, st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("status %d: %w", int(st), errs.ErrInvalidArgument)
	}
	return s.store.SetStatus(ctx, userID, st)
}

// LastSeen stamps the user's last-seen time.
func (s *Chats) LastSeen(ctx context.Context, userID int64) error {
	return s.store.SetLastSeen(ctx, userID)
}

// CreateChat creates a chat with creator and invitees as members. It either returns the
// complete chat or an error; a partially created chat is deleted.
func (s *Chats) CreateChat(ctx context.Context, creator model.Participant, name, description string, invitees []model.Participant) (*model.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create chat: empty name: %w", errs.ErrInvalidArgument)
	}
	f := &createChatFlow{store: s.store, creator: creator, name: name, description: description, invitees: invitees}
	c, err := f.run(ctx)
	if err != nil && f.chatID > 0 {
		if derr := s.store.DeleteChat(context.WithoutCancel(ctx), f.chatID); derr != nil {
			s.log.Warn("create chat: compensation failed",
				zap.Int64("chat", f.chatID),
				zap.String("step", f.step),
				zap.Error(derr),
			)
		}
	}
	return c, err
}

// createChatFlow sequences the store calls of one chat creation.
type createChatFlow struct {
	store       ChatStore
	creator     model.Participant
	name        string
	description string
	invitees    []model.Participant

	step   string
	chatID int64
}

func (f *createChatFlow) run(ctx context.Context) (*model.Chat, error) {
	f.step = "create"
	id, created, err := f.store.CreateChat(ctx, f.name, f.description, f.creator.ID)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	f.chatID = id

	f.step = "add creator"
	if _, err := f.store.InsertParticipant(ctx, id, f.creator.Username, f.creator.Tag); err != nil {
		return nil, fmt.Errorf("create chat: add creator: %w", err)
	}

	f.step = "add invitees"
	seen := map[string]bool{handle(f.creator): true}
	for _, inv := range f.invitees {
		h := handle(inv)
		if seen[h] {
			continue
		}
		seen[h] = true
		if _, err := f.store.InsertParticipant(ctx, id, inv.Username, inv.Tag); err != nil {
			return nil, fmt.Errorf("create chat: invitee %s: %w", h, err)
		}
	}

	f.step = "participants"
	ps, err := f.store.ChatParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create chat: participants: %w", err)
	}
	return &model.Chat{ID: id, Name: f.name, Description: f.description, CreatedAt: created, Participants: ps}, nil
}

func handle(p model.Participant) string { return fmt.Sprintf("%s#%d", p.Username, p.Tag) }
