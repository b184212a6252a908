// Package httpapi serves the live monitor's state over HTTP.
package httpapi

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

	"github.com/rustyeddy/forecaster/monitor"
	"github.com/rustyeddy/forecaster/pkg/logger"
)

// Source is the monitor state the API reads.
type Source interface {
	Status() monitor.Status
	DriftHistory() []float64
}

// Server wraps an Echo instance.
type Server struct {
	echo *echo.Echo
	src  Source
	log  *logger.Logger
}

// New registers the routes. A nil gatherer serves the default registry
// on metricsPath; an empty metricsPath disables it.
func New(src Source, gatherer prometheus.Gatherer, metricsPath string, l *logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, src: src, log: l}
	e.GET("/healthz", s.health)
	e.GET("/api/live-metrics", s.liveMetrics)
	e.GET("/api/drift", s.drift)
	if metricsPath != "" {
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", logger.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// LiveMetrics is the /api/live-metrics body.
type LiveMetrics struct {
	At               time.Time        `json:"at"`
	Backfilled       int              `json:"backfilled"`
	Metrics          *monitor.Metrics `json:"metrics"`
	Recent           *monitor.Recent  `json:"recent"`
	Threshold        *float64         `json:"threshold"`
	ThresholdChanged bool             `json:"threshold_changed"`
}

func (s *Server) liveMetrics(c echo.Context) error {
	st := s.src.Status()
	if st.At.IsZero() {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "no monitoring cycle has run yet"})
	}
	return c.JSON(http.StatusOK, LiveMetrics{
		At:               st.At,
		Backfilled:       st.Backfilled,
		Metrics:          st.Metrics,
		Recent:           st.Recent,
		Threshold:        st.Threshold,
		ThresholdChanged: st.ThresholdChanged,
	})
}

// DriftBody is the /api/drift body.
type DriftBody struct {
	Drift   *monitor.DriftReport `json:"drift"`
	Top     []string             `json:"top,omitempty"`
	Alert   bool                 `json:"alert"`
	History []float64            `json:"history"`
}

func (s *Server) drift(c echo.Context) error {
	st := s.src.Status()
	body := DriftBody{Drift: st.Drift, Alert: st.DriftAlert, History: s.src.DriftHistory()}
	if body.History == nil {
		body.History = []float64{}
	}
	if st.Drift != nil {
		body.Top = st.Drift.Top(5)
	}
	return c.JSON(http.StatusOK, body)
}
