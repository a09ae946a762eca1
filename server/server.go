// Package server exposes the comment channel over websocket plus a small
// REST surface for history and liveness.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"activity-hub/auth"
	"activity-hub/domain"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	app         *fiber.App
	log         *slog.Logger
	guard       *auth.Guard
	handlers    *Handlers
	addr        string
	corsOrigins string
}

func New(log *slog.Logger, guard *auth.Guard, handlers *Handlers,
	addr, corsOrigins string) *Server {
	return &Server{
		log:         log,
		guard:       guard,
		handlers:    handlers,
		addr:        addr,
		corsOrigins: corsOrigins,
	}
}

// Start builds the fiber app and begins serving. It returns an error if the
// listener fails immediately; later failures surface through the app's
// lifecycle.
func (s *Server) Start() error {
	s.app = fiber.New(fiber.Config{
		AppName:               "activity-hub",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.corsOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	s.registerRoutes()

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errCh <- err
		}
	}()

	// Catch immediate startup errors (port in use, bad address).
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.log.Info("Server started", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	s.log.Info("Server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handlers.HealthCheck)

	// The guard runs in the upgrade middleware so a bad credential is
	// refused before the connection is admitted to any room. The
	// access_token query fallback is accepted on this path only.
	s.app.Use("/chat", s.chatUpgrade)
	s.app.Get("/chat", websocket.New(s.handlers.HandleChat))

	api := s.app.Group("/api")
	api.Get("/activities/:activityId/comments", s.handlers.GetComments)
}

// chatUpgrade authenticates the connection attempt and resolves its activity
// room before the websocket upgrade happens.
func (s *Server) chatUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	identity, err := s.guard.Authenticate(c.Get(fiber.HeaderAuthorization), c.Query("access_token"))
	if err != nil {
		s.log.Warn("Connection refused", "error", err)
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing credential")
	}

	activityID, err := domain.ParseActivityID(c.Query("activityId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "activityId must be a valid uuid")
	}

	c.Locals(localIdentity, identity)
	c.Locals(localActivity, activityID)
	return c.Next()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	s.log.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
