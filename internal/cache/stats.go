package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"roulette/internal/game"
)

const (
	REDIS_KEY_STATS         = "roulette:stats"
	REDIS_KEY_POCKET_COUNTS = "roulette:stats:pockets"
)

// Stats are table-wide totals across every session.
type Stats struct {
	Spins   int64         `json:"spins"`
	Wins    int64         `json:"wins"`
	Wagered int64         `json:"wagered"`
	Paid    int64         `json:"paid"`
	Pockets map[int]int64 `json:"pockets"`
}

// StatsRecorder keeps aggregate spin counters in Redis hashes.
type StatsRecorder struct {
	client redis.Cmdable
	prefix string
}

func NewStatsRecorder(client redis.Cmdable) *StatsRecorder {
	return &StatsRecorder{client: client}
}

// WithPrefix namespaces the keys, mainly so tests can share a database.
func (r *StatsRecorder) WithPrefix(prefix string) *StatsRecorder {
	return &StatsRecorder{client: r.client, prefix: prefix}
}

func (r *StatsRecorder) Name() string { return "redis-stats" }

func (r *StatsRecorder) RecordSpin(ctx context.Context, rec game.SpinRecord) error {
	statsKey := r.prefix + REDIS_KEY_STATS
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, statsKey, "spins", 1)
		pipe.HIncrBy(ctx, statsKey, "wagered", rec.Bet)
		if rec.Won() {
			pipe.HIncrBy(ctx, statsKey, "wins", 1)
			pipe.HIncrBy(ctx, statsKey, "paid", rec.Payout)
		}
		pipe.HIncrBy(ctx, r.prefix+REDIS_KEY_POCKET_COUNTS, strconv.Itoa(rec.Number), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record spin stats: %w", err)
	}
	return nil
}

func (r *StatsRecorder) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Pockets: make(map[int]int64)}

	totals, err := r.client.HGetAll(ctx, r.prefix+REDIS_KEY_STATS).Result()
	if err != nil {
		return stats, fmt.Errorf("load stats: %w", err)
	}
	stats.Spins = parseInt(totals["spins"])
	stats.Wins = parseInt(totals["wins"])
	stats.Wagered = parseInt(totals["wagered"])
	stats.Paid = parseInt(totals["paid"])

	pockets, err := r.client.HGetAll(ctx, r.prefix+REDIS_KEY_POCKET_COUNTS).Result()
	if err != nil {
		return stats, fmt.Errorf("load pocket counts: %w", err)
	}
	for k, v := range pockets {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		stats.Pockets[n] = parseInt(v)
	}
	return stats, nil
}

// Reset deletes the counters.
func (r *StatsRecorder) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.prefix+REDIS_KEY_STATS, r.prefix+REDIS_KEY_POCKET_COUNTS).Err()
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
