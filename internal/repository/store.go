package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
)

// Store maps named procedures and their positional rows onto domain types.
type Store struct{ exec Executor }

// NewStore constructs a Store over an executor.
func NewStore(exec Executor) *Store { return &Store{exec: exec} }

// CheckLogIn loads the credential row for (username, tag).
// Row: (id, username, tag, pwd_hash, salt, public_key). No row: ErrNotFound.
func (s *Store) CheckLogIn(ctx context.Context, username string, tag int) (*model.User, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcCheckLogIn, username, tag))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	r := rows[0]
	if err := checkWidth(r, 6, ProcCheckLogIn); err != nil {
		return nil, err
	}
	var u model.User
	if u.ID, err = asInt64(r[0]); err != nil {
		return nil, err
	}
	if u.Username, err = asString(r[1]); err != nil {
		return nil, err
	}
	tg, err := asInt64(r[2])
	if err != nil {
		return nil, err
	}
	u.Tag = int(tg)
	if u.PwdHash, err = asBytes(r[3]); err != nil {
		return nil, err
	}
	if u.Salt, err = asBytes(r[4]); err != nil {
		return nil, err
	}
	if u.PublicKey, err = asBytes(r[5]); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user and returns its id. Row: (id); id <= 0 means every
// discriminator for the username is taken (ErrExhausted).
func (s *Store) CreateUser(ctx context.Context, username string, pwdHash, salt, publicKey []byte) (int64, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcCreateUser, username, pwdHash, salt, publicKey))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("%s: no id returned", ProcCreateUser)
	}
	id, err := asInt64(rows[0][0])
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errs.ErrExhausted
	}
	return id, nil
}

// UserTag returns the discriminator assigned to a user. Row: (tag).
func (s *Store) UserTag(ctx context.Context, userID int64) (int, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcGetUserTag, userID))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, errs.ErrNotFound
	}
	tag, err := asInt64(rows[0][0])
	return int(tag), err
}

// CreateChat inserts a chat row. Row: (chat id, created_at).
func (s *Store) CreateChat(ctx context.Context, name, description string, creatorID int64) (int64, time.Time, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcCreateChat, name, description, creatorID))
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(rows) == 0 {
		return 0, time.Time{}, fmt.Errorf("%s: no row returned", ProcCreateChat)
	}
	if err := checkWidth(rows[0], 2, ProcCreateChat); err != nil {
		return 0, time.Time{}, err
	}
	id, err := asInt64(rows[0][0])
	if err != nil {
		return 0, time.Time{}, err
	}
	created, err := asTime(rows[0][1])
	if err != nil {
		return 0, time.Time{}, err
	}
	if id <= 0 {
		return 0, time.Time{}, fmt.Errorf("%s: invalid id %d", ProcCreateChat, id)
	}
	return id, created, nil
}

// InsertParticipant adds (username, tag) to a chat. Row: (user id); none when the user does not exist.
func (s *Store) InsertParticipant(ctx context.Context, chatID int64, username string, tag int) (int64, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcInsertParticipant, chatID, username, tag))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("%s#%d: %w", username, tag, errs.ErrNotFound)
	}
	return asInt64(rows[0][0])
}

// ChatParticipants lists members in insertion order. Rows: (user id, username, tag).
func (s *Store) ChatParticipants(ctx context.Context, chatID int64) ([]model.Participant, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcGetChatParticipants, chatID))
	if err != nil {
		return nil, err
	}
	out := make([]model.Participant, 0, len(rows))
	for _, r := range rows {
		if err := checkWidth(r, 3, ProcGetChatParticipants); err != nil {
			return nil, err
		}
		p, err := participant(r[0], r[1], r[2])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UserChats returns the ids of the chats the user belongs to. Rows: (chat id).
func (s *Store) UserChats(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcGetUserChats, userID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if err := checkWidth(r, 1, ProcGetUserChats); err != nil {
			return nil, err
		}
		id, err := asInt64(r[0])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Chat loads chat metadata visible to userID. Row: (id, name, description, created_at);
// none when the chat does not exist or the user is not a member (ErrNotFound).
func (s *Store) Chat(ctx context.Context, chatID, userID int64) (*model.Chat, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcGetChat, chatID, userID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	r := rows[0]
	if err := checkWidth(r, 4, ProcGetChat); err != nil {
		return nil, err
	}
	var c model.Chat
	if c.ID, err = asInt64(r[0]); err != nil {
		return nil, err
	}
	if c.Name, err = asString(r[1]); err != nil {
		return nil, err
	}
	if c.Description, err = asString(r[2]); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = asTime(r[3]); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateMessage appends a message and returns its sequence number. Row: (seq, created_at);
// none when the author is not a member of the chat (ErrForbidden).
func (s *Store) CreateMessage(ctx context.Context, chatID, authorID int64, content string) (int64, time.Time, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcCreateMessage, chatID, authorID, content))
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(rows) == 0 {
		return 0, time.Time{}, errs.ErrForbidden
	}
	if err := checkWidth(rows[0], 2, ProcCreateMessage); err != nil {
		return 0, time.Time{}, err
	}
	seq, err := asInt64(rows[0][0])
	if err != nil {
		return 0, time.Time{}, err
	}
	created, err := asTime(rows[0][1])
	return seq, created, err
}

// UnreadMessages lists messages not yet delivered to userID, in no particular order.
// Rows: (chat id, seq, author username, author tag, created_at, content).
func (s *Store) UnreadMessages(ctx context.Context, userID int64) ([]model.ChatMessage, error) {
	rows, err := s.exec.Execute(ctx, Proc(ProcMessagesNotReceived, userID))
	if err != nil {
		return nil, err
	}
	out := make([]model.ChatMessage, 0, len(rows))
	for _, r := range rows {
		if err := checkWidth(r, 6, ProcMessagesNotReceived); err != nil {
			return nil, err
		}
		var m model.ChatMessage
		if m.ChatID, err = asInt64(r[0]); err != nil {
			return nil, err
		}
		if m.Seq, err = asInt64(r[1]); err != nil {
			return nil, err
		}
		if m.Author, err = participant(int64(0), r[2], r[3]); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = asTime(r[4]); err != nil {
			return nil, err
		}
		if m.Content, err = asString(r[5]); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// MarkDelivered records seq as the last message of chatID delivered to userID.
func (s *Store) MarkDelivered(ctx context.Context, userID, chatID, seq int64) error {
	_, err := s.exec.Execute(ctx, ProcExec(ProcUpdateLastMessage, userID, chatID, seq))
	return err
}

// SetStatus stores the user's presence.
func (s *Store) SetStatus(ctx context.Context, userID int64, st model.Status) error {
	_, err := s.exec.Execute(ctx, ProcExec(ProcSetStatus, userID, int(st)))
	return err
}

// SetLastSeen stamps the user's last-seen time with the store clock.
func (s *Store) SetLastSeen(ctx context.Context, userID int64) error {
	_, err := s.exec.Execute(ctx, ProcExec(ProcSetLastSeen, userID))
	return err
}

// DeleteChat removes a chat and everything attached to it.
func (s *Store) DeleteChat(ctx context.Context, chatID int64) error {
	_, err := s.exec.Execute(ctx, ProcExec(ProcDeleteChat, chatID))
	return err
}

func participant(id, name, tag any) (model.Participant, error) {
	var p model.Participant
	var err error
	if p.ID, err = asInt64(id); err != nil {
		return p, err
	}
	if p.Username, err = asString(name); err != nil {
		return p, err
	}
	t, err := asInt64(tag)
	p.Tag = int(t)
	return p, err
}
