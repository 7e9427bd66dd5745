package sessionregistry

import (
	"context"

	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessiontype"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) ReplaceAll(ctx context.Context, records []sessiontype.SessionRecord) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"replace_all",
		"session",
		"count", len(records),
	)
	defer endFn()

	d.service.ReplaceAll(ctx, records)
	reportChangeFn("sessions", len(records))
}

func (d *activityTrackerDecorator) UpsertOne(ctx context.Context, record sessiontype.SessionRecord) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"upsert",
		"session",
		"key", record.Key,
		"version", record.Version,
	)
	defer endFn()

	d.service.UpsertOne(ctx, record)
	reportChangeFn(record.Key, record.Version)
}

func (d *activityTrackerDecorator) BumpCount(ctx context.Context, key string, delta int) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"bump_count",
		"session",
		"key", key,
		"delta", delta,
	)
	defer endFn()

	d.service.BumpCount(ctx, key, delta)
	reportChangeFn(key, delta)
}

func (d *activityTrackerDecorator) SyncCounts(ctx context.Context, key string, messageCount, lastSeen int) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"sync_counts",
		"session",
		"key", key,
	)
	defer endFn()

	d.service.SyncCounts(ctx, key, messageCount, lastSeen)
	reportChangeFn(key, messageCount)
}

func (d *activityTrackerDecorator) MarkSeen(ctx context.Context, key string) {
	_, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"mark_seen",
		"session",
		"key", key,
	)
	defer endFn()

	d.service.MarkSeen(ctx, key)
	reportChangeFn(key, nil)
}

func (d *activityTrackerDecorator) SetActive(ctx context.Context, key string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"set_active",
		"session",
		"key", key,
	)
	defer endFn()

	err := d.service.SetActive(ctx, key)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(key, nil)
	}
	return err
}

func (d *activityTrackerDecorator) ActiveKey() string {
	return d.service.ActiveKey()
}

func (d *activityTrackerDecorator) SetReplying(ctx context.Context, key string, replying bool) {
	d.service.SetReplying(ctx, key, replying)
}

func (d *activityTrackerDecorator) SetStreamText(ctx context.Context, key string, text string) {
	d.service.SetStreamText(ctx, key, text)
}

func (d *activityTrackerDecorator) SetTokens(ctx context.Context, key string, sessionTokens, contextWindow int) {
	d.service.SetTokens(ctx, key, sessionTokens, contextWindow)
}

func (d *activityTrackerDecorator) BumpLocalUnread(ctx context.Context, key string) {
	d.service.BumpLocalUnread(ctx, key)
}

func (d *activityTrackerDecorator) Get(key string) (sessiontype.Session, bool) {
	return d.service.Get(key)
}

func (d *activityTrackerDecorator) List() []sessiontype.Session {
	return d.service.List()
}

func (d *activityTrackerDecorator) DataVersionOf(key string) uint64 {
	return d.service.DataVersionOf(key)
}

// WithActivityTracker wraps a registry Service with activity tracking.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
