// Package memstore serves the named-procedure contract from memory.
// It backs development mode and end-to-end tests.
package memstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/and161185/chitchat/internal/repository"
)

// MaxTag is the largest discriminator handed out per username.
const MaxTag = 9999

type user struct {
	id       int64
	username string
	tag      int
	pwdHash  []byte
	salt     []byte
	pubKey   []byte
	status   int
	lastSeen time.Time
}

type message struct {
	seq     int64
	author  int64
	created time.Time
	content string
}

type chat struct {
	id          int64
	name        string
	description string
	created     time.Time
	creator     int64
	members     []int64
	messages    []message
	nextSeq     int64
}

// Store is an in-memory executor. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	maxTag   int
	nextUser int64
	nextChat int64
	users    map[int64]*user
	chats    map[int64]*chat
	// lastRead[user][chat] is the highest delivered seq.
	lastRead map[int64]map[int64]int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithMaxTag shrinks the discriminator space.
func WithMaxTag(n int) Option { return func(s *Store) { s.maxTag = n } }

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		maxTag:   MaxTag,
		users:    map[int64]*user{},
		chats:    map[int64]*chat{},
		lastRead: map[int64]map[int64]int64{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ repository.Executor = (*Store)(nil)

// Execute runs a named procedure. Raw SQL is not supported.
func (s *Store) Execute(ctx context.Context, q repository.Query) (repository.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !q.Procedure {
		return nil, fmt.Errorf("memstore: raw sql not supported")
	}
	fn, ok := procs[q.Name]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown procedure %q", q.Name)
	}
	a := args(q.Args)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := fn(s, a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.Name, err)
	}
	if !q.WantResults {
		return nil, nil
	}
	return rows, nil
}

type procFunc func(s *Store, a args) (repository.Rows, error)

var procs = map[string]procFunc{
	repository.ProcCheckLogIn:          (*Store).checkLogIn,
	repository.ProcCreateUser:          (*Store).createUser,
	repository.ProcGetUserTag:          (*Store).userTag,
	repository.ProcCreateChat:          (*Store).createChat,
	repository.ProcInsertParticipant:   (*Store).insertParticipant,
	repository.ProcGetChatParticipants: (*Store).chatParticipants,
	repository.ProcGetUserChats:        (*Store).userChats,
	repository.ProcGetChat:             (*Store).getChat,
	repository.ProcCreateMessage:       (*Store).createMessage,
	repository.ProcMessagesNotReceived: (*Store).messagesNotReceived,
	repository.ProcUpdateLastMessage:   (*Store).updateLastMessage,
	repository.ProcSetStatus:           (*Store).setStatus,
	repository.ProcSetLastSeen:         (*Store).setLastSeen,
	repository.ProcDeleteChat:          (*Store).deleteChat,
}

func (s *Store) findUser(username string, tag int) *user {
	for _, u := range s.users {
		if u.username == username && u.tag == tag {
			return u
		}
	}
	return nil
}

func (s *Store) checkLogIn(a args) (repository.Rows, error) {
	name, err := a.text(0)
	if err != nil {
		return nil, err
	}
	tag, err := a.num(1)
	if err != nil {
		return nil, err
	}
	u := s.findUser(name, int(tag))
	if u == nil {
		return nil, nil
	}
	return repository.Rows{{u.id, u.username, int64(u.tag), u.pwdHash, u.salt, u.pubKey}}, nil
}

func (s *Store) createUser(a args) (repository.Rows, error) {
	name, err := a.text(0)
	if err != nil {
		return nil, err
	}
	hash, err := a.blob(1)
	if err != nil {
		return nil, err
	}
	salt, err := a.blob(2)
	if err != nil {
		return nil, err
	}
	pub, err := a.blob(3)
	if err != nil {
		return nil, err
	}

	taken := map[int]bool{}
	for _, u := range s.users {
		if u.username == name {
			taken[u.tag] = true
		}
	}
	if len(taken) >= s.maxTag {
		return repository.Rows{{int64(0)}}, nil
	}
	tag := 1 + rand.IntN(s.maxTag)
	for taken[tag] {
		tag = tag%s.maxTag + 1
	}

	s.nextUser++
	s.users[s.nextUser] = &user{
		id: s.nextUser, username: name, tag: tag,
		pwdHash: hash, salt: salt, pubKey: pub,
	}
	return repository.Rows{{s.nextUser}}, nil
}

func (s *Store) userTag(a args) (repository.Rows, error) {
	id, err := a.num(0)
	if err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return repository.Rows{{int64(u.tag)}}, nil
}

func (s *Store) createChat(a args) (repository.Rows, error) {
	name, err := a.text(0)
	if err != nil {
		return nil, err
	}
	desc, err := a.text(1)
	if err != nil {
		return nil, err
	}
	creator, err := a.num(2)
	if err != nil {
		return nil, err
	}
	if _, ok := s.users[creator]; !ok {
		return nil, fmt.Errorf("creator %d does not exist", creator)
	}
	s.nextChat++
	c := &chat{id: s.nextChat, name: name, description: desc, created: s.now(), creator: creator}
	s.chats[c.id] = c
	return repository.Rows{{c.id, c.created}}, nil
}

func (s *Store) insertParticipant(a args) (repository.Rows, error) {
	chatID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	name, err := a.text(1)
	if err != nil {
		return nil, err
	}
	tag, err := a.num(2)
	if err != nil {
		return nil, err
	}
	c, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d does not exist", chatID)
	}
	u := s.findUser(name, int(tag))
	if u == nil {
		return nil, nil
	}
	if !c.member(u.id) {
		c.members = append(c.members, u.id)
	}
	return repository.Rows{{u.id}}, nil
}

func (s *Store) chatParticipants(a args) (repository.Rows, error) {
	chatID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	c, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	out := make(repository.Rows, 0, len(c.members))
	for _, id := range c.members {
		u := s.users[id]
		out = append(out, []any{u.id, u.username, int64(u.tag)})
	}
	return out, nil
}

func (s *Store) userChats(a args) (repository.Rows, error) {
	userID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	var out repository.Rows
	for id := int64(1); id <= s.nextChat; id++ {
		if c, ok := s.chats[id]; ok && c.member(userID) {
			out = append(out, []any{c.id})
		}
	}
	return out, nil
}

func (s *Store) getChat(a args) (repository.Rows, error) {
	chatID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	userID, err := a.num(1)
	if err != nil {
		return nil, err
	}
	c, ok := s.chats[chatID]
	if !ok || !c.member(userID) {
		return nil, nil
	}
	return repository.Rows{{c.id, c.name, c.description, c.created}}, nil
}

func (s *Store) createMessage(a args) (repository.Rows, error) {
	chatID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	author, err := a.num(1)
	if err != nil {
		return nil, err
	}
	content, err := a.text(2)
	if err != nil {
		return nil, err
	}
	c, ok := s.chats[chatID]
	if !ok || !c.member(author) {
		return nil, nil
	}
	c.nextSeq++
	m := message{seq: c.nextSeq, author: author, created: s.now(), content: content}
	c.messages = append(c.messages, m)
	return repository.Rows{{m.seq, m.created}}, nil
}

func (s *Store) messagesNotReceived(a args) (repository.Rows, error) {
	userID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	var out repository.Rows
	for _, c := range s.chats {
		if !c.member(userID) {
			continue
		}
		last := s.lastRead[userID][c.id]
		for _, m := range c.messages {
			if m.seq <= last || m.author == userID {
				continue
			}
			au := s.users[m.author]
			out = append(out, []any{c.id, m.seq, au.username, int64(au.tag), m.created, m.content})
		}
	}
	return out, nil
}

func (s *Store) updateLastMessage(a args) (repository.Rows, error) {
	userID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	chatID, err := a.num(1)
	if err != nil {
		return nil, err
	}
	seq, err := a.num(2)
	if err != nil {
		return nil, err
	}
	m := s.lastRead[userID]
	if m == nil {
		m = map[int64]int64{}
		s.lastRead[userID] = m
	}
	if seq > m[chatID] {
		m[chatID] = seq
	}
	return nil, nil
}

func (s *Store) setStatus(a args) (repository.Rows, error) {
	userID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	st, err := a.num(1)
	if err != nil {
		return nil, err
	}
	if u, ok := s.users[userID]; ok {
		u.status = int(st)
	}
	return nil, nil
}

func (s *Store) setLastSeen(a args) (repository.Rows, error) {
	userID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	if u, ok := s.users[userID]; ok {
		u.lastSeen = s.now()
	}
	return nil, nil
}

func (s *Store) deleteChat(a args) (repository.Rows, error) {
	chatID, err := a.num(0)
	if err != nil {
		return nil, err
	}
	delete(s.chats, chatID)
	for _, m := range s.lastRead {
		delete(m, chatID)
	}
	return nil, nil
}

// Status reports the stored presence and last-seen time of a user.
func (s *Store) Status(userID int64) (status int, lastSeen time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, time.Time{}, false
	}
	return u.status, u.lastSeen, true
}

// ChatCount returns the number of live chats.
func (s *Store) ChatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (c *chat) member(userID int64) bool {
	for _, id := range c.members {
		if id == userID {
			return true
		}
	}
	return false
}
