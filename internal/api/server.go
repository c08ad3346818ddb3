// Package api serves the dashboard and favorites over HTTP for serve mode.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/favorites"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

// Session is the dashboard the server drives.
type Session interface {
	State() refresh.DashboardState
	Resolve(ctx context.Context, place refresh.Place) (refresh.DashboardState, error)
	Refresh(ctx context.Context) (refresh.DashboardState, error)
}

// FavoritesStore is the favorites list.
type FavoritesStore interface {
	List(ctx context.Context) ([]models.Favorite, error)
	Add(ctx context.Context, loc models.Location, name, searchQuery, customName string) (models.Favorite, error)
	Remove(ctx context.Context, identifier string) error
	Rename(ctx context.Context, identifier, newName string) error
}

// AutoRefresh is the toggleable auto-refresh timer.
type AutoRefresh interface {
	Enabled() bool
	SetEnabled(on bool)
	Interval() time.Duration
}

// Server holds the handlers' collaborators. AutoRefresh may be nil.
type Server struct {
	Session     Session
	Favorites   FavoritesStore
	AutoRefresh AutoRefresh

	now func() time.Time
}

// NewServer creates a Server.
func NewServer(session Session, favs FavoritesStore, auto AutoRefresh) *Server {
	return &Server{Session: session, Favorites: favs, AutoRefresh: auto, now: time.Now}
}

// NewApp builds the fiber app with middleware, error handling and routes.
func NewApp(s *Server) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "weather-terminal",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          time.Minute,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestLogger)

	RegisterRoutes(app, s)
	return app
}

// errorHandler maps domain errors to status codes.
func errorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, favorites.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, identity.ErrInvalidLocation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, refresh.ErrFetchFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Int("status", statusFor(err)), zap.Error(err))
	} else {
		fields = append(fields, zap.Int("status", c.Response().StatusCode()))
	}
	zap.L().Debug("api: request", fields...)
	return err
}
