package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"signal-tracker/internal/health"
	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host           string
	Port           int
	RateLimit      int // requests per RateWindow per client on /message
	RateWindow     time.Duration
	RequestTimeout time.Duration
}

// Server runs the HTTP server for receiving messages
type Server struct {
	app        *fiber.App
	dispatcher *Dispatcher
	store      storage.Store
	checker    *health.Checker
	cfg        ServerConfig
}

// NewServer creates a new ingest server. checker may be nil.
func NewServer(cfg ServerConfig, dispatcher *Dispatcher, store storage.Store, checker *health.Checker) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:        app,
		dispatcher: dispatcher,
		store:      store,
		checker:    checker,
		cfg:        cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals("requestID", id)
		return c.Next()
	})

	// Health check
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	s.app.Get("/signals", s.handleRecent)

	s.app.Post("/message", limiter.New(limiter.Config{
		Max:        s.cfg.RateLimit,
		Expiration: s.cfg.RateWindow,
		LimitReached: func(c *fiber.Ctx) error {
			log.Warn().Str("ip", c.IP()).Msg("message rate limit reached")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	}), s.handleMessage)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{
		"status": "ok",
		"time":   time.Now().Unix(),
	}
	if s.checker == nil {
		return c.JSON(body)
	}
	body["components"] = s.checker.GetStatuses()
	if !s.checker.Healthy() {
		body["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	var msg Message
	if err := c.BodyParser(&msg); err != nil {
		log.Error().Err(err).Msg("failed to parse message payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if strings.TrimSpace(msg.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
	defer cancel()

	res := s.dispatcher.Handle(ctx, msg)
	log.Debug().
		Interface("requestID", c.Locals("requestID")).
		Str("kind", res.Kind).
		Str("outcome", string(res.Outcome)).
		Msg("message handled")
	return c.JSON(res)
}

// signalView is the JSON shape of a stored Signal
type signalView struct {
	RowID          int64         `json:"row_id"`
	Token          string        `json:"token"`
	Address        string        `json:"address"`
	Chain          string        `json:"chain"`
	Channel        string        `json:"channel"`
	ReceivedAt     time.Time     `json:"received_at"`
	EntryMC        float64       `json:"entry_mc"`
	CurrentMC      float64       `json:"current_mc"`
	PeakMC         float64       `json:"peak_mc"`
	PeakMultiplier float64       `json:"peak_multiplier"`
	LastAlert      float64       `json:"last_alert"`
	Updates        int           `json:"updates"`
	Status         signal.Status `json:"status"`
	DexURL         string        `json:"dex_url,omitempty"`
}

func (s *Server) handleRecent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 500"})
	}
	rows, err := s.store.Recent(c.UserContext(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list recent signals")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store unavailable"})
	}
	out := make([]signalView, 0, len(rows))
	for _, r := range rows {
		out = append(out, signalView{
			RowID:          r.RowID,
			Token:          r.TokenName,
			Address:        r.Address,
			Chain:          r.Chain,
			Channel:        r.ChannelName,
			ReceivedAt:     r.ReceivedAt,
			EntryMC:        r.EntryMC,
			CurrentMC:      r.CurrentMC(),
			PeakMC:         r.PeakMC,
			PeakMultiplier: r.PeakMultiplier,
			LastAlert:      r.LastAlert,
			Updates:        r.UpdateCount,
			Status:         r.Status,
			DexURL:         r.DexURL,
		})
	}
	return c.JSON(out)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("starting ingest server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
