package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roulette/internal/config"
)

type Service interface {
	GetClient() *redis.Client
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

var (
	redisAddr     = config.GetEnv("REDIS_URL", "localhost:6379")
	redisPassword = config.GetEnv("REDIS_PASSWORD", "")
	redisDB       = config.GetEnvAsInt("REDIS_DB", 0)
)

// clientOptions accepts either a redis:// URL or a bare host:port.
func clientOptions(addr, password string, db int) (*redis.Options, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
		if password != "" {
			opts.Password = password
		}
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

// New connects to Redis. It returns nil when Redis is unreachable; the
// tables keep running without aggregate stats.
func New(log *zap.SugaredLogger) Service {
	opts, err := clientOptions(redisAddr, redisPassword, redisDB)
	if err != nil {
		log.Warnf("[CACHE] %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[CACHE] Redis at %s unreachable, running without stats: %v", opts.Addr, err)
		client.Close()
		return nil
	}

	log.Infof("[CACHE] Redis connected at %s db=%d", opts.Addr, opts.DB)
	return &service{client: client, log: log}
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]string{
			"status": "down",
			"error":  fmt.Sprintf("redis down: %v", err),
		}
	}

	pool := s.client.PoolStats()
	return map[string]string{
		"status":      "up",
		"latency":     time.Since(start).String(),
		"total_conns": fmt.Sprint(pool.TotalConns),
		"idle_conns":  fmt.Sprint(pool.IdleConns),
		"timeouts":    fmt.Sprint(pool.Timeouts),
	}
}

func (s *service) Close() error {
	s.log.Info("[CACHE] Disconnecting from Redis")
	return s.client.Close()
}
