// Package api serves the operator HTTP surface: health, dispatcher status,
// recent deliveries, channel test sends and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bandwatch/internal/alerts"
	"bandwatch/internal/dispatch"
	"bandwatch/internal/logging"
	"bandwatch/internal/metrics"
	"bandwatch/internal/model"
	"bandwatch/internal/notify"
	"bandwatch/internal/version"
)

type Dispatcher interface {
	Stats() dispatch.Stats
	TestSend(ctx context.Context, kinds []model.ChannelKind, ev model.AlertEvent) map[model.ChannelKind]model.ChannelResult
}

type Channels interface {
	Kinds() []model.ChannelKind
	Enabled() []model.ChannelKind
}

type Server struct {
	dispatcher Dispatcher
	channels   Channels
	recent     *alerts.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	configPath string
	started    time.Time
	now        func() time.Time
	echo       *echo.Echo
}

type Options struct {
	Dispatcher Dispatcher
	Channels   Channels
	Recent     *alerts.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	ConfigPath string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		dispatcher: opts.Dispatcher,
		channels:   opts.Channels,
		recent:     opts.Recent,
		metrics:    opts.Metrics,
		logger:     logger,
		configPath: opts.ConfigPath,
		started:    time.Now(),
		now:        time.Now,
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(s.logger))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	apiGroup := e.Group("/api")
	apiGroup.GET("/status", s.handleStatus)
	apiGroup.GET("/deliveries", s.handleDeliveries)
	apiGroup.POST("/notifications/test", s.handleTestSend)
	return e
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is done, then shuts down with a 5s grace period.
func (s *Server) Start(ctx context.Context, addr string) {
	s.logger.Info("api enabled", "addr", addr)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "err", err)
		}
	}()
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			logger.Debug("api request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote", c.RealIP(),
			)
			return nil
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	Uptime     string          `json:"uptime"`
	ConfigPath string          `json:"config_path,omitempty"`
	Dispatcher dispatch.Stats  `json:"dispatcher"`
	Channels   channelsSection `json:"channels"`
}

type channelsSection struct {
	Registered []model.ChannelKind `json:"registered"`
	Enabled    []model.ChannelKind `json:"enabled"`
}

func (s *Server) handleStatus(c echo.Context) error {
	now := s.now()
	resp := statusResponse{
		Status:     "ok",
		Time:       now.UTC().Format(time.RFC3339),
		Version:    version.String(),
		Uptime:     now.Sub(s.started).Truncate(time.Second).String(),
		ConfigPath: s.configPath,
	}
	if s.dispatcher != nil {
		resp.Dispatcher = s.dispatcher.Stats()
	}
	if s.channels != nil {
		resp.Channels = channelsSection{Registered: s.channels.Kinds(), Enabled: s.channels.Enabled()}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeliveries(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	list := []model.DeliverySummary{}
	if s.recent != nil {
		if since := c.QueryParam("since"); since != "" {
			ts, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
			}
			list = s.recent.Since(ts)
			if limit > 0 && len(list) > limit {
				list = list[:limit]
			}
		} else {
			list = s.recent.List(limit)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"deliveries": list,
		"count":      len(list),
	})
}

type testSendRequest struct {
	Channels []string `json:"channels"`
}

type testSendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type testSendResponse struct {
	TotalChannels int                                  `json:"total_channels"`
	SuccessCount  int                                  `json:"success_count"`
	Results       map[model.ChannelKind]testSendResult `json:"results"`
}

func (s *Server) handleTestSend(c echo.Context) error {
	if s.dispatcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dispatcher not available")
	}
	var req testSendRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	kinds := make([]model.ChannelKind, 0, len(req.Channels))
	for _, label := range req.Channels {
		kind, err := model.ParseChannelKind(label)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		kinds = append(kinds, kind)
	}
	results := s.dispatcher.TestSend(c.Request().Context(), kinds, notify.SyntheticEvent(s.now()))
	resp := testSendResponse{
		TotalChannels: len(results),
		Results:       make(map[model.ChannelKind]testSendResult, len(results)),
	}
	for kind, r := range results {
		if r.Success {
			resp.SuccessCount++
		}
		resp.Results[kind] = testSendResult{Success: r.Success, Message: r.Detail}
	}
	s.logger.Info("test notification sent", "success", resp.SuccessCount, "total", resp.TotalChannels)
	return c.JSON(http.StatusOK, resp)
}
