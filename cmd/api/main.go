package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"roulette/internal/config"
	"roulette/internal/logger"
	"roulette/internal/server"
)

func gracefulShutdown(srv *server.FiberServer, log *zap.SugaredLogger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown with error: %v", err)
	}

	log.Info("Server exiting")
	done <- true
}

func main() {
	base := logger.New(logger.FromEnv())
	defer base.Sync()
	log := base.Sugar()

	srv, err := server.New(log)
	if err != nil {
		log.Fatalf("cannot start server: %v", err)
	}

	done := make(chan bool, 1)

	go func() {
		port := config.GetEnvAsInt("PORT", 8080)
		if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
			log.Errorf("http server error: %v", err)
		}
	}()

	go gracefulShutdown(srv, log, done)

	<-done
	log.Info("Graceful shutdown complete.")
}
