package gatewayclient_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/parley-dev/parley/gatewayclient"
	"github.com/parley-dev/parley/libbus"
	"github.com/stretchr/testify/require"
)

func TestUnit_CallDecodesEnvelope(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	sub, err := ps.Serve(ctx, "call.sessions.list", func(ctx context.Context, data []byte) ([]byte, error) {
		return []byte(`{"ok":true,"payload":{"sessions":[{"key":"main","version":3}]}}`), nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := gatewayclient.New(ps)
	res, err := client.Call(ctx, gatewayclient.OpSessionsList, struct{}{})
	require.NoError(t, err)
	require.True(t, res.OK)

	var reply gatewayclient.ListReply
	require.NoError(t, json.Unmarshal(res.Payload, &reply))
	require.Len(t, reply.Sessions, 1)
	require.Equal(t, "main", reply.Sessions[0].Key)
	require.Equal(t, uint64(3), reply.Sessions[0].Version)
}

func TestUnit_CallPassesParams(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	sub, err := ps.Serve(ctx, "call.chat.send", func(ctx context.Context, data []byte) ([]byte, error) {
		var params gatewayclient.SendParams
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, err
		}
		if params.SessionKey != "s1" || params.Message != "hello" || params.Seq != 7 {
			return []byte(`{"ok":false,"error":"unexpected params"}`), nil
		}
		return []byte(`{"ok":true,"payload":{"queued":true}}`), nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := gatewayclient.New(ps)
	res, err := client.Call(ctx, gatewayclient.OpChatSend, gatewayclient.SendParams{
		SessionKey: "s1",
		Message:    "hello",
		Seq:        7,
	})
	require.NoError(t, err)

	var reply gatewayclient.SendReply
	require.NoError(t, json.Unmarshal(res.Payload, &reply))
	require.True(t, reply.Queued)
}

func TestUnit_CallRejectedCarriesGatewayError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	sub, err := ps.Serve(ctx, "call.chat.send", func(ctx context.Context, data []byte) ([]byte, error) {
		return []byte(`{"ok":false,"error":"model unavailable"}`), nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := gatewayclient.New(ps)
	res, err := client.Call(ctx, gatewayclient.OpChatSend, gatewayclient.SendParams{SessionKey: "s1"})
	require.ErrorIs(t, err, gatewayclient.ErrRejected)
	require.Equal(t, "model unavailable", res.Error)
}

func TestUnit_CallTransportFailure(t *testing.T) {
	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	client := gatewayclient.New(ps)
	_, err = client.Call(ctx, gatewayclient.OpChatAbort, gatewayclient.SessionParams{SessionKey: "s1"})
	require.ErrorIs(t, err, gatewayclient.ErrTransport)
}

func TestUnit_CallMalformedReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	sub, err := ps.Serve(ctx, "call.chat.history", func(ctx context.Context, data []byte) ([]byte, error) {
		return []byte("not json"), nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := gatewayclient.New(ps)
	_, err = client.Call(ctx, gatewayclient.OpChatHistory, gatewayclient.SessionParams{SessionKey: "s1"})
	require.ErrorIs(t, err, gatewayclient.ErrMalformedReply)
}
