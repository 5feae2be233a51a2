// Package protocol defines the chat wire items, their typed payloads and the encrypted envelope.
package protocol

import (
	"fmt"

	"github.com/and161185/chitchat/internal/errs"
)

// Kind is the closed set of protocol item types.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPubKey
	KindBackoff
	KindLogin
	KindRegister
	KindSuccess
	KindError
	KindTag
	KindPing
	KindPong
	KindLogout
	KindMsgGet
	KindMsg
	KindMsgSend
	KindMsgSent
	KindCreateChat
	KindCreateChatSuccess
	KindCreateChatFail
	KindUpdateChats
	KindGetChat
	KindGetChats
	KindSetStatus
	KindAddUser
	KindRemoveUser
	KindChatInfo
)

var kindNames = map[Kind]string{
	KindPubKey:            "pub_key",
	KindBackoff:           "backoff",
	KindLogin:             "login",
	KindRegister:          "register",
	KindSuccess:           "success",
	KindError:             "error",
	KindTag:               "tag",
	KindPing:              "ping",
	KindPong:              "pong",
	KindLogout:            "logout",
	KindMsgGet:            "msg_get",
	KindMsg:               "msg",
	KindMsgSend:           "msg_send",
	KindMsgSent:           "msg_sent",
	KindCreateChat:        "create_chat",
	KindCreateChatSuccess: "create_chat_success",
	KindCreateChatFail:    "create_chat_fail",
	KindUpdateChats:       "update_chats",
	KindGetChat:           "get_chat",
	KindGetChats:          "get_chats",
	KindSetStatus:         "set_status",
	KindAddUser:           "add_user",
	KindRemoveUser:        "remove_user",
	KindChatInfo:          "chat_info",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a wire name to its Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindByName[s]
	if !ok {
		return KindUnknown, fmt.Errorf("unknown item type %q: %w", s, errs.ErrProtocol)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("marshal %s: %w", k, errs.ErrProtocol)
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
