// Package libtracker provides lightweight activity tracking for service
// decorators: each tracked operation reports start, error, state change,
// and end, carrying request/trace IDs through context.
package libtracker

import (
	"context"
	"log/slog"
	"time"
)

// ActivityTracker observes service operations. Start returns three
// callbacks: report an error, report a committed state change
// (identified by the mutated entity), and end the span.
type ActivityTracker interface {
	Start(ctx context.Context, operation string, subject string, kvArgs ...any) (reportErr func(error), reportChange func(id string, data any), end func())
}

// LogActivityTracker writes activity to a slog logger.
type LogActivityTracker struct {
	logger *slog.Logger
}

// NewLogActivityTracker creates an ActivityTracker backed by logger.
func NewLogActivityTracker(logger *slog.Logger) *LogActivityTracker {
	return &LogActivityTracker{logger: logger}
}

func (t *LogActivityTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(id string, data any), func()) {
	started := time.Now()
	base := []any{
		slog.String("operation", operation),
		slog.String("subject", subject),
	}
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok && reqID != "" {
		base = append(base, slog.String("request_id", reqID))
	}
	base = append(base, kvArgs...)

	reportErr := func(err error) {
		t.logger.ErrorContext(ctx, "activity failed", append(base, slog.Any("error", err))...)
	}
	reportChange := func(id string, data any) {
		t.logger.DebugContext(ctx, "activity change", append(base, slog.String("entity", id), slog.Any("data", data))...)
	}
	end := func() {
		t.logger.DebugContext(ctx, "activity end", append(base, slog.Duration("took", time.Since(started)))...)
	}
	return reportErr, reportChange, end
}

// ChainedTracker fans every report out to each tracker in order.
type ChainedTracker []ActivityTracker

func (c ChainedTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(id string, data any), func()) {
	errFns := make([]func(error), 0, len(c))
	changeFns := make([]func(string, any), 0, len(c))
	endFns := make([]func(), 0, len(c))
	for _, t := range c {
		e, ch, end := t.Start(ctx, operation, subject, kvArgs...)
		errFns = append(errFns, e)
		changeFns = append(changeFns, ch)
		endFns = append(endFns, end)
	}
	reportErr := func(err error) {
		for _, f := range errFns {
			f(err)
		}
	}
	reportChange := func(id string, data any) {
		for _, f := range changeFns {
			f(id, data)
		}
	}
	end := func() {
		for _, f := range endFns {
			f()
		}
	}
	return reportErr, reportChange, end
}

// NoopTracker discards all activity.
type NoopTracker struct{}

func (NoopTracker) Start(context.Context, string, string, ...any) (func(error), func(string, any), func()) {
	return func(error) {}, func(string, any) {}, func() {}
}

var (
	_ ActivityTracker = (*LogActivityTracker)(nil)
	_ ActivityTracker = ChainedTracker(nil)
	_ ActivityTracker = NoopTracker{}
)
