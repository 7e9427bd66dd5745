package libbus

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
)

// NewTestPubSub returns an in-memory Messenger and a cleanup func.
// Use in unit tests that exercise bus semantics without a broker.
func NewTestPubSub() (Messenger, func(), error) {
	ps := NewInMem()
	return ps, func() { _ = ps.Close() }, nil
}

// SetupNatsInstance starts a disposable NATS container for integration
// tests and returns its client URL.
func SetupNatsInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		return "", nil, cleanup, err
	}
	cleanup = func() {
		timeout := 5 * time.Second
		_ = container.Stop(ctx, &timeout)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return "", container, cleanup, err
	}
	return url, container, cleanup, nil
}
