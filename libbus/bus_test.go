package libbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parley-dev/parley/libbus"
	"github.com/stretchr/testify/require"
)

func TestUnit_Stream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	subject := "push.session.updated"
	message := []byte(`{"key":"s1"}`)

	streamCh := make(chan []byte, 1)
	sub, err := ps.Stream(ctx, subject, streamCh)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	err = ps.Publish(ctx, subject, message)
	require.NoError(t, err)

	select {
	case received := <-streamCh:
		require.Equal(t, message, received)
	case <-ctx.Done():
		t.Fatal("timed out waiting for streamed message")
	}
}

func TestUnit_PublishWithClosedConnection(t *testing.T) {
	ctx := context.Background()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, ps.Close())

	err = ps.Publish(ctx, "push.closed", []byte("data"))
	require.Error(t, err)
	require.Equal(t, libbus.ErrConnectionClosed, err)
}

func TestUnit_RequestReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	subject := "call.chat.send"
	requestMessage := []byte(`{"sessionKey":"s1","message":"hi"}`)
	responseMessage := []byte(`{"ok":true}`)

	handler := func(ctx context.Context, data []byte) ([]byte, error) {
		require.Equal(t, requestMessage, data)
		return responseMessage, nil
	}

	sub, err := ps.Serve(ctx, subject, handler)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reply, err := ps.Request(ctx, subject, requestMessage)
	require.NoError(t, err)
	require.Equal(t, responseMessage, reply)
}

func TestUnit_RequestWithoutResponder(t *testing.T) {
	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err = ps.Request(ctx, "call.nobody.home", []byte("anyone there"))
	require.Error(t, err)
	require.Equal(t, libbus.ErrRequestTimeout, err)
}

func TestUnit_ServeWithHandlerError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	subject := "call.handler.error"
	wantErr := errors.New("handler failed")

	sub, err := ps.Serve(ctx, subject, func(ctx context.Context, data []byte) ([]byte, error) {
		return nil, wantErr
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = ps.Request(ctx, subject, []byte("boom"))
	require.Error(t, err)
}

func TestUnit_UnsubscribeStopsStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	subject := "push.history.updated"
	streamCh := make(chan []byte, 4)
	sub, err := ps.Stream(ctx, subject, streamCh)
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, subject, []byte("one")))
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, ps.Publish(ctx, subject, []byte("two")))

	require.Equal(t, []byte("one"), <-streamCh)
	select {
	case data := <-streamCh:
		t.Fatalf("expected no further delivery, got %q", data)
	default:
	}
}
