package protocol

import (
	"encoding/json"
	"testing"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_SealOpen(t *testing.T) {
	t.Parallel()
	server, err := crypto.NewIdentity()
	require.NoError(t, err)
	peerView, err := crypto.PeerFromPublicBytes(server.PublicBytes())
	require.NoError(t, err)

	in := Packet{MustItem(KindMsgSend, MsgSend{ChatID: 3, Content: "hi"})}
	raw, err := Seal(peerView, in)
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal(raw, &env))
	for _, k := range []string{"ciphertext", "key", "nonce", "tag"} {
		require.NotEmpty(t, env[k], k)
	}

	out, err := Open(server, raw)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, KindMsgSend, out[0].Kind)

	_, err = Open(peerView, raw)
	require.ErrorIs(t, err, errs.ErrNoPrivateKey)

	_, err = Open(server, []byte("not json"))
	require.ErrorIs(t, err, errs.ErrProtocol)
}
