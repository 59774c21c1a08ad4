// Package health serves liveness and status endpoints for hosted
// deployments.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scipunch/tgrelay/store"
)

// Source provides the data shown on /health and /status. *store.Store
// implements it.
type Source interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context, since time.Time) (store.Stats, error)
}

// Response is the JSON envelope of / and /status. /health answers with a
// flat body for load balancer checks.
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// Server is the HTTP health server
type Server struct {
	addr    string
	source  Source
	started time.Time
	engine  *gin.Engine
}

// NewServer creates a server listening on addr
func NewServer(addr string, source Source) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:    addr,
		source:  source,
		started: time.Now(),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(loggingMiddleware())

	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.engine,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("health server listening", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health server failed with %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down health server with %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "took", time.Since(start))
	}
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.started).Round(time.Second)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"service": "tgrelay", "status": "running"},
		Message: "telegram relay is running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.source.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": s.uptime().String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	stats, err := s.source.Stats(c.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Data:    nil,
			Message: err.Error(),
		})
		return
	}

	data := gin.H{
		"uptime":   s.uptime().String(),
		"total":    stats.Total,
		"success":  stats.Success,
		"failed":   stats.Failed,
		"statuses": stats.ByStatus,
		"channels": stats.Channels,
	}
	if !stats.LastRelayAt.IsZero() {
		data["last_relay_at"] = stats.LastRelayAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    data,
		Message: "relay statistics for the last 24h",
	})
}
