// Package http provides the HTTP API for townsq.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/quota"
	"github.com/fyrsmithlabs/townsq/internal/registry"
)

// Server provides HTTP endpoints for townsq.
type Server struct {
	echo    *echo.Echo
	reg     *registry.Registry
	limiter *quota.Limiter
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// WriteRatePerSecond throttles message posts per client IP. Zero
	// disables throttling.
	WriteRatePerSecond float64
	WriteRateBurst     int
}

// NewServer creates a new HTTP server.
func NewServer(reg *registry.Registry, limiter *quota.Limiter, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("quota limiter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		reg:     reg,
		limiter: limiter,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")

	v1.GET("/topics", s.handleListTopics)
	v1.POST("/topics", s.handleCreateTopic)
	v1.DELETE("/topics/:topic", s.handleDeleteTopic)

	post := v1.Group("")
	if s.config.WriteRatePerSecond > 0 {
		post.Use(newWriteThrottle(s.config.WriteRatePerSecond, s.config.WriteRateBurst))
	}
	post.POST("/topics/:topic/messages", s.handlePostMessage)

	v1.GET("/topics/:topic/messages", s.handleListMessages)
	v1.GET("/topics/:topic/search", s.handleSearch)
	v1.GET("/topics/:topic/users/:id/messages", s.handleUserMessages)
	v1.GET("/users/:id/message-count", s.handleUserMessageCount)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
