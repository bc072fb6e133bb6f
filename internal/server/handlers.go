package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"roulette/internal/game"
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": disabled(),
		"cache":    disabled(),
		"game": fiber.Map{
			"status":            "running",
			"open_sessions":     s.sessions.Count(),
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

func disabled() map[string]string {
	return map[string]string{"status": "disabled"}
}

func (s *FiberServer) wheelHandler(c *fiber.Ctx) error {
	cfg := s.sessions.Config()
	return c.JSON(fiber.Map{
		"pockets":       game.Layout(),
		"rules":         game.Rules,
		"payout_ratio":  game.ZERO_PAYOUT_RATIO,
		"start_balance": cfg.StartBalance,
		"spin_delay_ms": cfg.SpinDelay.Milliseconds(),
		"rng":           cfg.RNG,
	})
}

func (s *FiberServer) statsHandler(c *fiber.Ctx) error {
	if s.stats == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Stats are not available",
		})
	}
	stats, err := s.stats.Stats(c.UserContext())
	if err != nil {
		s.log.Errorf("[CACHE] Loading stats failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}
	return c.JSON(stats)
}

func (s *FiberServer) createSessionHandler(c *fiber.Ctx) error {
	sess, err := s.sessions.Create(c.UserContext())
	if err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	snap, err := sess.Snapshot(c.UserContext())
	if err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	return c.Status(fiber.StatusCreated).JSON(game.ActionResponse{
		Success:  true,
		Message:  "Session created",
		Snapshot: snap,
	})
}

func (s *FiberServer) getSessionHandler(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	snap, err := sess.Snapshot(c.UserContext())
	if err != nil {
		return s.actionError(c, err, snap)
	}
	return c.JSON(snap)
}

func (s *FiberServer) closeSessionHandler(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	if err := s.sessions.Close(sess.ID()); err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	resp := fiber.Map{
		"success": true,
		"message": "Session closed",
	}
	if seed, ok := sess.RevealSeed(); ok {
		resp["server_seed"] = seed
	}
	return c.JSON(resp)
}

// verifyHandler recomputes the pocket of a seeded draw from revealed seeds.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	serverSeed := c.Query("server_seed")
	clientSeed := c.Query("client_seed")
	nonce := c.QueryInt("nonce", 0)
	if serverSeed == "" || clientSeed == "" || nonce <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "server_seed, client_seed and a positive nonce are required",
		})
	}
	number := game.PocketFor(serverSeed, clientSeed, nonce)
	return c.JSON(fiber.Map{
		"server_seed_hash": game.HashCommitment(serverSeed),
		"client_seed":      clientSeed,
		"nonce":            nonce,
		"number":           number,
		"color":            game.PocketColor(number),
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	amount, _, err := parseAmount(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return s.sessionAction(c, "Bet placed", func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.PlaceBet(ctx, amount)
	})
}

// spinHandler spins the pending bet, or places and spins amount when the
// request carries one. A rejected amount never falls back to the pending bet.
func (s *FiberServer) spinHandler(c *fiber.Ctx) error {
	amount, present, err := parseAmount(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return s.sessionAction(c, "Spinning...", func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		if present {
			return sess.PlaceAndSpin(ctx, amount)
		}
		return sess.Spin(ctx)
	})
}

func (s *FiberServer) dismissHandler(c *fiber.Ctx) error {
	return s.sessionAction(c, "Result dismissed", func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.DismissResult(ctx)
	})
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Spin history is not available",
		})
	}
	spins, err := s.history.RecentSpins(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		s.log.Errorf("[DB] Loading history for %s failed: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	return c.JSON(fiber.Map{
		"session_id": c.Params("id"),
		"spins":      spins,
	})
}

func (s *FiberServer) sessionAction(c *fiber.Ctx, okMessage string, action func(context.Context, *game.Session) (game.Snapshot, error)) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.actionError(c, err, game.Snapshot{})
	}
	snap, err := action(c.UserContext(), sess)
	if err != nil {
		return s.actionError(c, err, snap)
	}
	return c.JSON(game.ActionResponse{
		Success:  true,
		Message:  okMessage,
		Snapshot: snap,
	})
}

// actionError maps game errors to statuses. Guard rejections carry the
// unchanged snapshot so the view can re-render.
func (s *FiberServer) actionError(c *fiber.Ctx, err error, snap game.Snapshot) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.log.Errorf("[SERVER] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(game.ActionResponse{
		Success:  false,
		Message:  err.Error(),
		Snapshot: snap,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidBet):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrSpinInProgress):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrSessionClosed):
		return fiber.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// parseAmount reads the bet from a JSON body, a form body or the amount
// query parameter. Form and query input is coerced like the bet field.
// present reports whether the request named an amount at all.
func parseAmount(c *fiber.Ctx) (amount int64, present bool, err error) {
	if len(c.Body()) == 0 {
		raw := c.Query("amount")
		return game.ParseBet(raw), raw != "", nil
	}
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var req game.SpinRequest
		if err := c.BodyParser(&req); err != nil {
			return 0, false, err
		}
		if req.Amount == nil {
			return 0, false, nil
		}
		return *req.Amount, true, nil
	}
	raw := c.FormValue("amount")
	return game.ParseBet(raw), raw != "", nil
}
