// Package model defines domain entities shared by the store, workers and connection handlers.
package model

import (
	"fmt"
	"time"
)

// User represents an account. Usernames are not unique; (Username, Tag) is.
type User struct {
	ID        int64
	Username  string
	Tag       int
	PwdHash   []byte // Argon2id(password, Salt)
	Salt      []byte // per-user auth salt
	PublicKey []byte // exported PKIX public key of the client
}

// Handle returns the display form "name#tag".
func (u User) Handle() string { return fmt.Sprintf("%s#%d", u.Username, u.Tag) }

// Participant is the public view of a chat member.
type Participant struct {
	ID       int64
	Username string
	Tag      int
}

// Status is a user's presence.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusBusy
	StatusAway
	StatusInvisible
)

var statusNames = [...]string{"offline", "online", "busy", "away", "invisible"}

// Valid reports whether s is one of the known presence values.
func (s Status) Valid() bool { return s >= StatusOffline && s <= StatusInvisible }

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ChatMessage is a single message; Seq is assigned by the server per chat.
type ChatMessage struct {
	ChatID    int64
	Seq       int64
	Author    Participant
	CreatedAt time.Time
	Content   string
}
