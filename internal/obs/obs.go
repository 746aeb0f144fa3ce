// Package obs exposes a read-only operator HTTP surface (health, roster
// snapshot, counters) on a port separate from the chat listener.
package obs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatserver/internal/roster"
)

// Counters tracks the lightweight metrics surfaced at /metrics. All fields
// are updated with atomic operations by the caller's components; obs only
// reads them.
type Counters struct {
	Connections          func() int64
	BroadcastSubscribers func() int
	RateLimitHits        func() int64
	BackpressureDrops    func() int64
}

// Server is the Echo application serving the observability routes.
type Server struct {
	echo     *echo.Echo
	roster   *roster.Roster
	counters Counters
}

// New builds an observability server reading live state from r and c.
func New(r *roster.Roster, c Counters) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, roster: r, counters: c}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/roster", s.handleRoster)
	e.GET("/metrics", s.handleMetrics)
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Debug("obs http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Run starts the server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type rosterResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

func (s *Server) handleRoster(c echo.Context) error {
	users := s.roster.List()
	return c.JSON(http.StatusOK, rosterResponse{Users: users, Count: len(users)})
}

func (s *Server) handleMetrics(c echo.Context) error {
	var body string
	if s.counters.Connections != nil {
		body += fmt.Sprintf("connections %d\n", s.counters.Connections())
	}
	if s.counters.BroadcastSubscribers != nil {
		body += fmt.Sprintf("broadcast_subscribers %d\n", s.counters.BroadcastSubscribers())
	}
	if s.counters.RateLimitHits != nil {
		body += fmt.Sprintf("rate_limit_hits %d\n", s.counters.RateLimitHits())
	}
	if s.counters.BackpressureDrops != nil {
		body += fmt.Sprintf("backpressure_drops %d\n", s.counters.BackpressureDrops())
	}
	return c.String(http.StatusOK, body)
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }
