package historycache

import (
	"context"

	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessiontype"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Replace(ctx context.Context, key string, messages []sessiontype.Message) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"replace",
		"history",
		"key", key,
		"count", len(messages),
	)
	defer endFn()

	d.service.Replace(ctx, key, messages)
	reportChangeFn(key, len(messages))
}

func (d *activityTrackerDecorator) Upsert(ctx context.Context, key string, message sessiontype.Message, explicitIndex *int) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"upsert",
		"history",
		"key", key,
		"role", string(message.Role),
	)
	defer endFn()

	d.service.Upsert(ctx, key, message, explicitIndex)
	reportChangeFn(key, message.Role)
}

func (d *activityTrackerDecorator) RemoveTransient(ctx context.Context, key string, seq uint64) (sessiontype.Message, bool) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"remove_transient",
		"history",
		"key", key,
		"seq", seq,
	)
	defer endFn()

	removed, ok := d.service.RemoveTransient(ctx, key, seq)
	reportChangeFn(key, ok)
	return removed, ok
}

func (d *activityTrackerDecorator) Purge(ctx context.Context, key string) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"purge",
		"history",
		"key", key,
	)
	defer endFn()

	d.service.Purge(ctx, key)
	reportChangeFn(key, nil)
}

func (d *activityTrackerDecorator) PurgeAll(ctx context.Context) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"purge_all",
		"history",
	)
	defer endFn()

	d.service.PurgeAll(ctx)
	reportChangeFn("", nil)
}

func (d *activityTrackerDecorator) RevisionOf(key string) uint64 {
	return d.service.RevisionOf(key)
}

func (d *activityTrackerDecorator) Messages(key string) []sessiontype.Message {
	return d.service.Messages(key)
}

func (d *activityTrackerDecorator) Len(key string) int {
	return d.service.Len(key)
}

// WithActivityTracker wraps a history cache Service with activity tracking.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
