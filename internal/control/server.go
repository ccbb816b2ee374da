// Package control exposes the read-only operator surface over HTTP:
// health, aggregate stats, open positions, risk state, and a manual
// pause/resume override. It deliberately offers no way to place a
// trade; the only inbound channel for trading decisions is the data
// feed.
package control

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"memecore/internal/core"
	"memecore/internal/position"
	"memecore/internal/risk"
	"memecore/internal/watchlist"
)

// Config holds the server's bind address.
type Config struct {
	Host string
	Port int
}

// Server is the fiber app plus the snapshots it serves.
type Server struct {
	app   *fiber.App
	cfg   Config
	clock core.Clock
	log   zerolog.Logger

	watchlist *watchlist.Watchlist
	positions *position.Tracker
	riskState *risk.State
	riskCfg   risk.Config
	started   time.Time
}

// New builds the server and registers its routes.
func New(cfg Config, clock core.Clock, wl *watchlist.Watchlist, positions *position.Tracker, riskState *risk.State, riskCfg risk.Config, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:       app,
		cfg:       cfg,
		clock:     clock,
		log:       log.With().Str("component", "control").Logger(),
		watchlist: wl,
		positions: positions,
		riskState: riskState,
		riskCfg:   riskCfg,
		started:   time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/stats", s.stats)
	s.app.Get("/positions", s.listPositions)
	s.app.Get("/risk", s.riskSnapshot)
	s.app.Post("/pause", s.pause)
	s.app.Post("/resume", s.resume)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"time":    time.Now().Unix(),
	})
}

func (s *Server) stats(c *fiber.Ctx) error {
	snap := s.riskState.Snapshot()
	return c.JSON(fiber.Map{
		"watched_tokens":  s.watchlist.Count(),
		"open_positions":  s.positions.Count(),
		"daily_pnl_sol":   snap.DailyPnLSOL,
		"drawdown":        snap.CurrentDrawdown,
		"paused":          snap.Paused,
		"pause_reason":    snap.PauseReason,
	})
}

func (s *Server) listPositions(c *fiber.Ctx) error {
	snaps := s.positions.Snapshots()
	out := make([]fiber.Map, 0, len(snaps))
	for _, p := range snaps {
		out = append(out, fiber.Map{
			"id":                 p.ID.String(),
			"mint":               p.Mint.String(),
			"symbol":             p.Symbol,
			"entry_price_sol":    p.EntryPriceSOL,
			"size_sol":           p.SizeSOL,
			"last_price_sol":     p.LastPrice,
			"remaining_fraction": p.RemainingFraction,
			"unrealized_pnl_sol": p.UnrealizedPnLSOL,
			"unrealized_pnl_pct": p.UnrealizedPnLPct,
			"trailing_active":    p.TrailingActive,
			"status":             p.Status.String(),
		})
	}
	return c.JSON(out)
}

func (s *Server) riskSnapshot(c *fiber.Ctx) error {
	snap := s.riskState.Snapshot()
	return c.JSON(fiber.Map{
		"paused":             snap.Paused,
		"pause_reason":       snap.PauseReason,
		"daily_pnl_sol":      snap.DailyPnLSOL,
		"high_water_mark":    snap.HighWaterMarkSOL,
		"current_drawdown":   snap.CurrentDrawdown,
		"consecutive_losses": snap.ConsecutiveLosses,
		"consecutive_wins":   snap.ConsecutiveWins,
		"open_positions":     snap.OpenPositions,
	})
}

type pauseRequest struct {
	Reason  string `json:"reason"`
	Minutes int    `json:"minutes"`
}

func (s *Server) pause(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.Reason == "" {
		req.Reason = "operator pause"
	}
	if req.Minutes <= 0 {
		req.Minutes = 60
	}
	until := s.clock.Now().Add(time.Duration(req.Minutes) * time.Minute)
	s.riskState.ForcePause(req.Reason, until)
	s.log.Warn().Str("reason", req.Reason).Int("minutes", req.Minutes).Msg("operator paused trading")
	return c.JSON(fiber.Map{"paused": true, "until": int64(until)})
}

func (s *Server) resume(c *fiber.Ctx) error {
	s.riskState.ForceResume()
	s.log.Warn().Msg("operator resumed trading")
	return c.JSON(fiber.Map{"paused": false})
}

// Listen serves until the app is shut down.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info().Str("addr", addr).Msg("control surface listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
