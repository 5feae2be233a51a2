package model

import (
	"sort"
	"time"
)

// Chat is a conversation with an ordered participant list and messages kept sorted by Seq.
type Chat struct {
	ID           int64
	Name         string
	Description  string
	CreatedAt    time.Time
	Participants []Participant
	Messages     []ChatMessage
}

// AppendMessage inserts m at the unique position that keeps Messages ascending by Seq.
// Messages with an equal Seq go after the existing ones.
func (c *Chat) AppendMessage(msgs ...ChatMessage) {
	for _, m := range msgs {
		i := sort.Search(len(c.Messages), func(i int) bool { return c.Messages[i].Seq > m.Seq })
		c.Messages = append(c.Messages, ChatMessage{})
		copy(c.Messages[i+1:], c.Messages[i:])
		c.Messages[i] = m
	}
}

// LastSeq returns the highest sequence number held, or 0 for an empty chat.
func (c *Chat) LastSeq() int64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].Seq
}

// HasMember reports whether the user id is in the participant list.
func (c *Chat) HasMember(userID int64) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Update replaces the chat metadata and participant list.
func (c *Chat) Update(name, description string, participants []Participant) {
	c.Name = name
	c.Description = description
	c.Participants = participants
}
