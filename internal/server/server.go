package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"roulette/internal/cache"
	"roulette/internal/config"
	"roulette/internal/database"
	"roulette/internal/game"
	"roulette/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options assembles a FiberServer. Cache, Stats, DB and History are optional.
type Options struct {
	Sessions  *game.SessionManager
	Hub       *game.Hub
	Metrics   *metrics.Metrics
	Cache     cache.Service
	Stats     *cache.StatsRecorder
	DB        database.Service
	History   *database.SpinStore
	Log       *zap.SugaredLogger
	RateLimit int
}

type FiberServer struct {
	*fiber.App

	db       database.Service
	cache    cache.Service
	stats    *cache.StatsRecorder
	history  *database.SpinStore
	sessions *game.SessionManager
	hub      *game.Hub
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

// New wires the tables to whatever stores are reachable and returns a
// server ready to Listen.
func New(log *zap.SugaredLogger) (*FiberServer, error) {
	cfg := game.Config{
		StartBalance:    config.GetEnvAsInt64("ROULETTE_START_BALANCE", game.DEFAULT_START_BALANCE),
		SpinDelay:       config.GetEnvAsDuration("ROULETTE_SPIN_DELAY", game.DEFAULT_SPIN_DELAY),
		SessionIdleTTL:  config.GetEnvAsDuration("ROULETTE_SESSION_IDLE_TTL", game.DEFAULT_SESSION_IDLE_TTL),
		RecorderWorkers: config.GetEnvAsInt("RECORDER_WORKERS", game.DEFAULT_RECORDER_WORKERS),
		RNG:             config.GetEnv("ROULETTE_RNG", game.RNG_CRYPTO),
	}

	hub := game.NewHub(log)
	opts := Options{
		Hub:       hub,
		Log:       log,
		RateLimit: config.GetEnvAsInt("RATE_LIMIT_MAX", 300),
	}
	var recorders []game.Recorder

	if redisService := cache.New(log); redisService != nil {
		opts.Cache = redisService
		opts.Stats = cache.NewStatsRecorder(redisService.GetClient())
		recorders = append(recorders, opts.Stats)
	}

	db, err := database.New(log)
	if err != nil {
		log.Warnf("[DB] %v", err)
		log.Warn("[DB] Running without spin history")
	} else {
		opts.DB = db
		if config.GetEnvAsBool("ROULETTE_DB_AUTO_MIGRATE", true) {
			path := config.GetEnv("MIGRATIONS_PATH", "./migrations")
			if err := database.RunMigrations(db.DB(), path); err != nil {
				log.Errorf("[DB] Migrations failed: %v", err)
			}
		}
		opts.History = database.NewSpinStore(db.DB())
		recorders = append(recorders, opts.History)
	}

	var sessions *game.SessionManager
	opts.Metrics = metrics.New(func() int {
		if sessions == nil {
			return 0
		}
		return sessions.Count()
	}, hub.GetClientCount)
	recorders = append(recorders, opts.Metrics)

	sessions, err = game.NewSessionManager(cfg,
		game.WithRenderer(hub),
		game.WithRecorders(recorders...),
		game.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	opts.Sessions = sessions

	return NewFiberServer(opts), nil
}

// NewFiberServer builds the app around already constructed components and
// starts the hub and the session janitor.
func NewFiberServer(opts Options) *FiberServer {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 300
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "roulette",
			AppName:       "roulette",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
			JSONEncoder:   json.Marshal,
			JSONDecoder:   json.Unmarshal,
		}),

		db:       opts.DB,
		cache:    opts.Cache,
		stats:    opts.Stats,
		history:  opts.History,
		sessions: opts.Sessions,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        opts.RateLimit,
		Expiration: 1 * time.Minute,
	}))

	server.RegisterFiberRoutes()

	go server.hub.Run()
	server.sessions.Start()

	server.log.Info("[SERVER] Roulette tables ready")
	return server
}

// Shutdown stops accepting requests, closes every session and disconnects
// the stores.
func (s *FiberServer) Shutdown(ctx context.Context) error {
	s.log.Info("[SERVER] Shutting down...")

	err := s.App.ShutdownWithContext(ctx)

	s.sessions.Stop()
	s.hub.Stop()

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return err
}
