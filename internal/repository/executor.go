// Package repository defines the named-query contract of the store and a typed facade over it.
package repository

import (
	"context"
	"fmt"
	"strings"
)

// Named procedures of the store. Their positional row contracts are documented on the
// Store methods that call them.
const (
	ProcCheckLogIn          = "Check_Log_In"
	ProcCreateUser          = "create_user"
	ProcGetUserTag          = "GET_USER_TAG"
	ProcCreateChat          = "create_chat"
	ProcInsertParticipant   = "Insert_participant"
	ProcGetChatParticipants = "GET_CHAT_PARTICIPANTS"
	ProcGetUserChats        = "GET_USER_CHATS"
	ProcGetChat             = "GET_CHAT"
	ProcCreateMessage       = "create_message"
	ProcMessagesNotReceived = "messages_not_received"
	ProcUpdateLastMessage   = "update_last_message"
	ProcSetStatus           = "SET_STATUS"
	ProcSetLastSeen         = "SET_LAST_SEEN"
	ProcDeleteChat          = "DELETE_CHAT"
)

// Rows is a flattened, ordered sequence of positional result rows.
type Rows [][]any

// Query is one call against the store: either a stored procedure by Name, or raw SQL.
type Query struct {
	Name        string
	SQL         string
	Args        []any
	Procedure   bool
	WantResults bool
}

// Proc builds a procedure call that fetches results.
func Proc(name string, args ...any) Query {
	return Query{Name: name, Args: args, Procedure: true, WantResults: true}
}

// ProcExec builds a write-only procedure call.
func ProcExec(name string, args ...any) Query {
	return Query{Name: name, Args: args, Procedure: true}
}

// Statement returns the SQL text sent to a SQL store.
func (q Query) Statement() string {
	if !q.Procedure {
		return q.SQL
	}
	ph := make([]string, len(q.Args))
	for i := range q.Args {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", q.Name, strings.Join(ph, ", "))
}

// Executor runs queries. Implementations do not hold a connection across calls.
type Executor interface {
	Execute(ctx context.Context, q Query) (Rows, error)
}
