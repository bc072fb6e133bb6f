package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)
	if s.metrics != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := s.App.Group("/api/v1/roulette")

	api.Get("/wheel", s.wheelHandler)
	api.Get("/stats", s.statsHandler)
	api.Get("/verify", s.verifyHandler)

	sessions := api.Group("/sessions")
	sessions.Post("/", s.createSessionHandler)
	sessions.Get("/:id", s.getSessionHandler)
	sessions.Delete("/:id", s.closeSessionHandler)
	sessions.Post("/:id/bet", s.placeBetHandler)
	sessions.Post("/:id/spin", s.spinHandler)
	sessions.Post("/:id/dismiss", s.dismissHandler)
	sessions.Get("/:id/history", s.historyHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}
