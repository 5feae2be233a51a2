package client

import (
	"testing"

	"github.com/and161185/chitchat/internal/model"
	"github.com/stretchr/testify/require"
)

func TestClient_RedeliveredMessagesAreMergedOnce(t *testing.T) {
	c := &Client{chats: map[int64]*model.Chat{}}

	c.store(7).AppendMessage(model.ChatMessage{ChatID: 7, Seq: 2, Content: "b"})
	c.store(7).AppendMessage(
		model.ChatMessage{ChatID: 7, Seq: 1, Content: "a"},
		model.ChatMessage{ChatID: 7, Seq: 2, Content: "b"},
		model.ChatMessage{ChatID: 7, Seq: 3, Content: "c"},
	)

	ch, ok := c.Chat(7)
	require.True(t, ok)
	require.Len(t, ch.Messages, 3)
	for i, want := range []string{"a", "b", "c"} {
		require.Equal(t, want, ch.Messages[i].Content)
	}
	require.Equal(t, []int64{7}, c.Chats())
}
