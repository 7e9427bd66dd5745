package libbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultRequestTimeout = 10 * time.Second

// natsMessenger implements Messenger over a NATS connection.
type natsMessenger struct {
	nc *nats.Conn
}

// NewNATS connects to the NATS server named in cfg.
func NewNATS(ctx context.Context, cfg *Config) (Messenger, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	if cfg.NATSUser != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsMessenger{nc: nc}, nil
}

func (m *natsMessenger) Publish(ctx context.Context, subject string, data []byte) error {
	if m.nc.IsClosed() {
		return ErrConnectionClosed
	}
	if err := m.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (m *natsMessenger) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	if m.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := m.nc.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case ch <- msg.Data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return natsSubscription{sub: sub}, nil
}

func (m *natsMessenger) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if m.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}
	msg, err := m.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("nats request: %w", err)
	}
	return msg.Data, nil
}

func (m *natsMessenger) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	if m.nc.IsClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := m.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply, err := handler(ctx, msg.Data)
		if err != nil {
			// No reply on handler error; the requester times out.
			return
		}
		_ = msg.Respond(reply)
	})
	if err != nil {
		return nil, fmt.Errorf("nats serve: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return natsSubscription{sub: sub}, nil
}

func (m *natsMessenger) Close() error {
	if err := m.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		m.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

var _ Messenger = (*natsMessenger)(nil)
