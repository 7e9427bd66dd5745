// Package libkvstore provides a small JSON-value key-value interface
// backed by Valkey, used for best-effort warm-start snapshots.
package libkvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

var ErrNotFound = errors.New("libkvstore: key not found")

// Config holds the connection settings for the kv backend.
type Config struct {
	KVAddr     string
	KVPassword string
}

// KVExec is the operation surface handed to store code.
type KVExec interface {
	Set(ctx context.Context, key string, value json.RawMessage) error
	SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	ListPush(ctx context.Context, key string, value json.RawMessage) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error)
	ListRPop(ctx context.Context, key string) (json.RawMessage, error)
	ListLength(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key string, member json.RawMessage) error
	SetMembers(ctx context.Context, key string) ([]json.RawMessage, error)
}

// Manager owns the client connection and hands out executors.
type Manager struct {
	client     valkey.Client
	defaultTTL time.Duration
}

// NewManager connects to the kv backend. defaultTTL applies to plain
// Set calls; zero disables expiry.
func NewManager(cfg Config, defaultTTL time.Duration) (*Manager, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.KVAddr},
		Password:    cfg.KVPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("libkvstore: connect %s: %w", cfg.KVAddr, err)
	}
	return &Manager{client: client, defaultTTL: defaultTTL}, nil
}

// Executor returns the operation surface. The context is checked so a
// cancelled caller fails fast instead of issuing commands.
func (m *Manager) Executor(ctx context.Context) (KVExec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &executor{client: m.client, defaultTTL: m.defaultTTL}, nil
}

func (m *Manager) Close() error {
	m.client.Close()
	return nil
}

type executor struct {
	client     valkey.Client
	defaultTTL time.Duration
}

func (e *executor) Set(ctx context.Context, key string, value json.RawMessage) error {
	return e.SetWithTTL(ctx, key, value, e.defaultTTL)
}

func (e *executor) SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	cmd := e.client.B().Set().Key(key).Value(string(value))
	if ttl > 0 {
		return e.client.Do(ctx, cmd.Ex(ttl).Build()).Error()
	}
	return e.client.Do(ctx, cmd.Build()).Error()
}

func (e *executor) Get(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := e.client.Do(ctx, e.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (e *executor) Exists(ctx context.Context, key string) (bool, error) {
	n, err := e.client.Do(ctx, e.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *executor) Delete(ctx context.Context, key string) error {
	return e.client.Do(ctx, e.client.B().Del().Key(key).Build()).Error()
}

func (e *executor) Keys(ctx context.Context, pattern string) ([]string, error) {
	return e.client.Do(ctx, e.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
}

func (e *executor) ListPush(ctx context.Context, key string, value json.RawMessage) error {
	return e.client.Do(ctx, e.client.B().Lpush().Key(key).Element(string(value)).Build()).Error()
}

func (e *executor) ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error) {
	items, err := e.client.Do(ctx, e.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	return rawMessages(items), nil
}

func (e *executor) ListRPop(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := e.client.Do(ctx, e.client.B().Rpop().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (e *executor) ListLength(ctx context.Context, key string) (int64, error) {
	return e.client.Do(ctx, e.client.B().Llen().Key(key).Build()).AsInt64()
}

func (e *executor) SetAdd(ctx context.Context, key string, member json.RawMessage) error {
	return e.client.Do(ctx, e.client.B().Sadd().Key(key).Member(string(member)).Build()).Error()
}

func (e *executor) SetMembers(ctx context.Context, key string) ([]json.RawMessage, error) {
	members, err := e.client.Do(ctx, e.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	return rawMessages(members), nil
}

func rawMessages(items []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out
}
