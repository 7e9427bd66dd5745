package libbus

import (
	"context"
	"sync"
)

// InMem is an in-memory Messenger for single-process mode and tests.
// Publish delivers to local Stream subscribers; Request/Serve work as
// same-process request-reply. It intentionally mimics the push channel's
// lack of guarantees: a full subscriber channel blocks until the context
// is cancelled.
type InMem struct {
	mu       sync.RWMutex
	closed   bool
	streams  map[string][]chan<- []byte
	handlers map[string]Handler
}

// NewInMem returns a new in-memory Messenger.
func NewInMem() *InMem {
	return &InMem{
		streams:  make(map[string][]chan<- []byte),
		handlers: make(map[string]Handler),
	}
}

// Publish sends a fire-and-forget message to all Stream subscribers for
// the subject.
func (m *InMem) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrConnectionClosed
	}
	// Copy the subscriber list so the lock is not held while sending.
	subs := make([]chan<- []byte, len(m.streams[subject]))
	copy(subs, m.streams[subject])
	m.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stream subscribes ch to the subject until the subscription is revoked
// or ctx is cancelled.
func (m *InMem) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	m.streams[subject] = append(m.streams[subject], ch)
	sub := &inmemSubscription{subject: subject, ch: ch, inmem: m}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return sub, nil
}

// Request invokes the Serve handler registered for the subject and
// returns its reply. A missing handler reports ErrRequestTimeout, the
// same failure mode an unanswered network request would produce.
func (m *InMem) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	handler := m.handlers[subject]
	m.mu.RUnlock()

	if handler == nil {
		return nil, ErrRequestTimeout
	}
	return handler(ctx, data)
}

// Serve registers a handler for the subject. Request calls invoke it.
func (m *InMem) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	m.handlers[subject] = handler
	m.mu.Unlock()

	sub := &inmemServeSubscription{subject: subject, inmem: m}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return sub, nil
}

// Close marks the messenger closed and drops all registrations.
func (m *InMem) Close() error {
	m.mu.Lock()
	m.closed = true
	m.streams = make(map[string][]chan<- []byte)
	m.handlers = make(map[string]Handler)
	m.mu.Unlock()
	return nil
}

type inmemSubscription struct {
	subject string
	ch      chan<- []byte
	inmem   *InMem
}

func (s *inmemSubscription) Unsubscribe() error {
	s.inmem.mu.Lock()
	defer s.inmem.mu.Unlock()
	subs := s.inmem.streams[s.subject]
	for i, c := range subs {
		if c == s.ch {
			s.inmem.streams[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

type inmemServeSubscription struct {
	subject string
	inmem   *InMem
}

func (s *inmemServeSubscription) Unsubscribe() error {
	s.inmem.mu.Lock()
	delete(s.inmem.handlers, s.subject)
	s.inmem.mu.Unlock()
	return nil
}

var _ Messenger = (*InMem)(nil)
