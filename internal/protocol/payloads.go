package protocol

import "time"

// Payload structs declare their fields in sorted json key order so that
// re-serialization is byte-for-byte deterministic.

type PubKey struct {
	Key []byte `json:"key"`
}

type Backoff struct {
	Until time.Time `json:"until"`
}

type Login struct {
	Password string `json:"password"`
	Tag      int    `json:"tag"`
	Username string `json:"username"`
}

type Register struct {
	Password string `json:"password"`
	Username string `json:"username"`
}

type Success struct {
	Message string `json:"message,omitempty"`
}

type Error struct {
	Reason string `json:"reason"`
}

// TagInfo tells a freshly registered client its discriminator.
type TagInfo struct {
	Tag      int    `json:"tag"`
	Username string `json:"username"`
}

type Ping struct {
	Timestamp time.Time `json:"timestamp"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}

// UserRef identifies a user by (username, tag).
type UserRef struct {
	Tag      int    `json:"tag"`
	Username string `json:"username"`
}

type Msg struct {
	Author    UserRef   `json:"author"`
	ChatID    int64     `json:"chat_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq"`
}

type MsgSend struct {
	ChatID  int64  `json:"chat_id"`
	Content string `json:"content"`
}

type MsgSent struct {
	ChatID int64 `json:"chat_id"`
	Seq    int64 `json:"seq"`
}

type CreateChat struct {
	Description string    `json:"description"`
	Invitees    []UserRef `json:"invitees"`
	Name        string    `json:"name"`
}

// ChatInfo is the payload of get_chat replies and create_chat_success.
type ChatInfo struct {
	CreatedAt    time.Time `json:"created_at"`
	Description  string    `json:"description"`
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Participants []UserRef `json:"participants"`
}

type CreateChatFail struct {
	Reason string `json:"reason"`
}

type UpdateChats struct {
	ChatIDs []int64 `json:"chat_ids"`
}

type GetChat struct {
	ChatID int64 `json:"chat_id"`
}

type GetChats struct {
	ChatIDs []int64 `json:"chat_ids"`
}

type SetStatus struct {
	Status int `json:"status"`
}
