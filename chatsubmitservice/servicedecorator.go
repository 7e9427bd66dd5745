package chatsubmitservice

import (
	"context"

	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessiontype"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) Submit(ctx context.Context, sessionKey string, input Input) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"submit",
		"chat_message",
		"key", sessionKey,
		"chars", len(input.Text),
	)
	defer endFn()

	err := d.service.Submit(ctx, sessionKey, input)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(sessionKey, nil)
	}
	return err
}

func (d *activityTrackerDecorator) CancelQueued(ctx context.Context, sessionKey string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"cancel_queued",
		"chat_message",
		"key", sessionKey,
	)
	defer endFn()

	err := d.service.CancelQueued(ctx, sessionKey)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(sessionKey, nil)
	}
	return err
}

func (d *activityTrackerDecorator) QueuedItems(sessionKey string) []sessiontype.Message {
	return d.service.QueuedItems(sessionKey)
}

func (d *activityTrackerDecorator) TrayVisible(sessionKey string) bool {
	return d.service.TrayVisible(sessionKey)
}

// WithActivityTracker wraps a coordinator Service with activity tracking.
func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
