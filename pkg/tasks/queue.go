package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis sorted set holding pending tasks.
const DefaultQueueKey = "callcenter:tasks"

// claimScript atomically pops up to ARGV[2] members due at or before ARGV[1].
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #due > 0 then
	redis.call('ZREM', KEYS[1], unpack(due))
end
return due
`)

// Queue is a delayed task queue on a Redis sorted set.
type Queue struct {
	rdb    redis.Cmdable
	key    string
	logger *slog.Logger
}

// NewQueue creates a Queue on DefaultQueueKey.
func NewQueue(rdb redis.Cmdable, logger *slog.Logger) *Queue {
	return &Queue{rdb: rdb, key: DefaultQueueKey, logger: logger}
}

// Schedule makes the task due after delay. Rescheduling an already queued
// task replaces its due time.
func (q *Queue) Schedule(ctx context.Context, t Task, delay time.Duration) error {
	due := time.Now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.key, redis.Z{Score: float64(due), Member: t.Member()}).Err(); err != nil {
		return fmt.Errorf("scheduling %s: %w", t.Member(), err)
	}
	q.logger.Debug("task scheduled", "task", t.Member(), "delay", delay)
	return nil
}

// ScheduleCollect schedules an AI collection turn.
func (q *Queue) ScheduleCollect(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error {
	return q.Schedule(ctx, Task{Kind: KindCollect, TicketID: ticketID}, delay)
}

// ScheduleDispatch schedules a tenant API dispatch attempt.
func (q *Queue) ScheduleDispatch(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error {
	return q.Schedule(ctx, Task{Kind: KindDispatch, TicketID: ticketID}, delay)
}

// EnsureDispatch queues a dispatch due now unless one is already queued for
// the ticket, in which case the queued due time is kept. It reports whether
// a task was added.
func (q *Queue) EnsureDispatch(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	t := Task{Kind: KindDispatch, TicketID: ticketID}
	added, err := q.rdb.ZAddArgs(ctx, q.key, redis.ZAddArgs{
		NX:      true,
		Members: []redis.Z{{Score: float64(time.Now().UnixMilli()), Member: t.Member()}},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("ensuring %s: %w", t.Member(), err)
	}
	return added > 0, nil
}

// Claim removes and returns up to limit tasks due at now. Malformed members
// are dropped with a warning.
func (q *Queue) Claim(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := claimScript.Run(ctx, q.rdb, []string{q.key},
		strconv.FormatInt(now.UnixMilli(), 10), limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming tasks: %w", err)
	}

	out := make([]Task, 0, len(members))
	for _, m := range members {
		t, err := ParseMember(m)
		if err != nil {
			q.logger.Warn("dropping malformed task", "member", m, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
