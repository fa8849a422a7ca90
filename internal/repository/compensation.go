package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCompensationNotQueued is returned when rescheduling an unknown handle.
var ErrCompensationNotQueued = errors.New("compensation not queued")

// PendingCompensation is an identity whose compensating delete has not yet
// succeeded.
type PendingCompensation struct {
	Handle      string
	Reason      string
	Attempts    int
	EnqueuedAt  time.Time
	NextAttempt time.Time
}

// CompensationQueue persists pending compensations so they survive the
// request that produced them.
type CompensationQueue interface {
	Enqueue(ctx context.Context, handle, reason string) error
	Due(ctx context.Context, now time.Time, limit int) ([]PendingCompensation, error)
	Reschedule(ctx context.Context, handle string, attempts int, next time.Time) error
	Remove(ctx context.Context, handle string) error
	Len(ctx context.Context) (int64, error)
}

// =============================================================================
// Redis
// =============================================================================

const defaultCompensationPrefix = "qola:compensation"

// RedisCompensationQueue keeps a sorted set of handles scored by next attempt
// time plus one hash per handle.
type RedisCompensationQueue struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisCompensationQueue creates a queue under prefix (default "qola:compensation").
func NewRedisCompensationQueue(client redis.Cmdable, prefix string) *RedisCompensationQueue {
	if prefix == "" {
		prefix = defaultCompensationPrefix
	}
	return &RedisCompensationQueue{client: client, prefix: prefix, now: time.Now}
}

func (q *RedisCompensationQueue) dueKey() string {
	return q.prefix + ":due"
}

func (q *RedisCompensationQueue) entryKey(handle string) string {
	return q.prefix + ":entry:" + handle
}

func (q *RedisCompensationQueue) Enqueue(ctx context.Context, handle, reason string) error {
	now := q.now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, q.dueKey(), redis.Z{Score: float64(now.UnixMilli()), Member: handle})
		pipe.HSetNX(ctx, q.entryKey(handle), "enqueued_at", now.UnixMilli())
		pipe.HSetNX(ctx, q.entryKey(handle), "attempts", 0)
		pipe.HSet(ctx, q.entryKey(handle), "reason", reason)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue compensation: %w", err)
	}
	return nil
}

func (q *RedisCompensationQueue) Due(ctx context.Context, now time.Time, limit int) ([]PendingCompensation, error) {
	zs, err := q.client.ZRangeByScoreWithScores(ctx, q.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due compensations: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(zs))
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range zs {
			cmds[i] = pipe.HGetAll(ctx, q.entryKey(fmt.Sprint(z.Member)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load due compensations: %w", err)
	}

	out := make([]PendingCompensation, 0, len(zs))
	for i, z := range zs {
		fields := cmds[i].Val()
		attempts, _ := strconv.Atoi(fields["attempts"])
		enqueued, _ := strconv.ParseInt(fields["enqueued_at"], 10, 64)
		out = append(out, PendingCompensation{
			Handle:      fmt.Sprint(z.Member),
			Reason:      fields["reason"],
			Attempts:    attempts,
			EnqueuedAt:  time.UnixMilli(enqueued),
			NextAttempt: time.UnixMilli(int64(z.Score)),
		})
	}
	return out, nil
}

func (q *RedisCompensationQueue) Reschedule(ctx context.Context, handle string, attempts int, next time.Time) error {
	exists, err := q.client.Exists(ctx, q.entryKey(handle)).Result()
	if err != nil {
		return fmt.Errorf("reschedule compensation: %w", err)
	}
	if exists == 0 {
		return ErrCompensationNotQueued
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddXX(ctx, q.dueKey(), redis.Z{Score: float64(next.UnixMilli()), Member: handle})
		pipe.HSet(ctx, q.entryKey(handle), "attempts", attempts)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reschedule compensation: %w", err)
	}
	return nil
}

func (q *RedisCompensationQueue) Remove(ctx context.Context, handle string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.dueKey(), handle)
		pipe.Del(ctx, q.entryKey(handle))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove compensation: %w", err)
	}
	return nil
}

func (q *RedisCompensationQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.dueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count compensations: %w", err)
	}
	return n, nil
}

// =============================================================================
// Memory
// =============================================================================

// MemoryCompensationQueue is an in-process CompensationQueue.
type MemoryCompensationQueue struct {
	mu      sync.Mutex
	entries map[string]*PendingCompensation
	now     func() time.Time
}

// NewMemoryCompensationQueue creates an empty queue.
func NewMemoryCompensationQueue() *MemoryCompensationQueue {
	return &MemoryCompensationQueue{entries: make(map[string]*PendingCompensation), now: time.Now}
}

func (q *MemoryCompensationQueue) Enqueue(ctx context.Context, handle, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[handle]; ok {
		e.Reason = reason
		return nil
	}
	now := q.now()
	q.entries[handle] = &PendingCompensation{Handle: handle, Reason: reason, EnqueuedAt: now, NextAttempt: now}
	return nil
}

func (q *MemoryCompensationQueue) Due(ctx context.Context, now time.Time, limit int) ([]PendingCompensation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []PendingCompensation
	for _, e := range q.entries {
		if !e.NextAttempt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttempt.Before(out[j].NextAttempt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryCompensationQueue) Reschedule(ctx context.Context, handle string, attempts int, next time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[handle]
	if !ok {
		return ErrCompensationNotQueued
	}
	e.Attempts = attempts
	e.NextAttempt = next
	return nil
}

func (q *MemoryCompensationQueue) Remove(ctx context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, handle)
	return nil
}

func (q *MemoryCompensationQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}
