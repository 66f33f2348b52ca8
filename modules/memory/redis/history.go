package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flemzord/mimir/internal/memory"
)

// historyStore implements memory.HistoryStore on Redis lists. Each user's
// turns live in a capped list; a sorted set indexes users by their last
// turn so idle histories can be pruned.
type historyStore struct {
	rdb    goredis.UniversalClient
	prefix string
	limit  int
	ttl    time.Duration
	now    func() time.Time
}

// Compile-time interface check.
var _ memory.HistoryStore = (*historyStore)(nil)

func (h *historyStore) key(userID string) string {
	return h.prefix + "history:" + userID
}

func (h *historyStore) activeKey() string {
	return h.prefix + "history_active"
}

// Append implements memory.HistoryStore.
func (h *historyStore) Append(ctx context.Context, userID string, turn memory.Turn) error {
	if turn.At.IsZero() {
		turn.At = h.now()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("redis: marshal turn: %w", err)
	}

	key := h.key(userID)
	_, err = h.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, data)
		p.LTrim(ctx, key, int64(-h.limit), -1)
		if h.ttl > 0 {
			p.Expire(ctx, key, h.ttl)
		}
		p.ZAdd(ctx, h.activeKey(), goredis.Z{Score: float64(turn.At.Unix()), Member: userID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: append turn: %w", err)
	}
	return nil
}

// Recent implements memory.HistoryStore.
func (h *historyStore) Recent(ctx context.Context, userID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := h.rdb.LRange(ctx, h.key(userID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent turns: %w", err)
	}

	turns := make([]memory.Turn, 0, len(raw))
	for _, r := range raw {
		var t memory.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("redis: unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Purge implements memory.HistoryStore.
func (h *historyStore) Purge(ctx context.Context, userID string) error {
	_, err := h.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, h.key(userID))
		p.ZRem(ctx, h.activeKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: purge turns: %w", err)
	}
	return nil
}

// Prune implements memory.HistoryStore.
func (h *historyStore) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := h.now().Add(-maxIdle).Unix()

	users, err := h.rdb.ZRangeByScore(ctx, h.activeKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: list idle users: %w", err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	keys := make([]string, len(users))
	members := make([]any, len(users))
	for i, u := range users {
		keys[i] = h.key(u)
		members[i] = u
	}

	_, err = h.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, h.activeKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: prune turns: %w", err)
	}
	return len(users), nil
}
