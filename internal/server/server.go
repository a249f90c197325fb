package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dingeii/binance-signal-bot/internal/report"
)

const DefaultListenAddr = ":9090"

// ReportSource exposes the most recent cycle report.
type ReportSource interface {
	LatestReport() (report.Report, bool)
}

// Options configure the status server.
type Options struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	Gatherer        prometheus.Gatherer
}

// Server serves health, metrics and the latest report over HTTP.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger zerolog.Logger
}

func New(opts Options, reports ReportSource, logger zerolog.Logger) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		opts:   opts,
		logger: logger.With().Str("component", "status_server").Logger(),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	e.GET("/api/report/latest", func(c echo.Context) error {
		if reports == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no report yet")
		}
		r, ok := reports.LatestReport()
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "no report yet")
		}
		if c.QueryParam("format") == "markdown" {
			return c.String(http.StatusOK, report.Render(r))
		}
		return c.JSON(http.StatusOK, r)
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("status server listening")
		if err := s.echo.Start(s.opts.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger.Info().Msg("status server stopped")
	return nil
}
