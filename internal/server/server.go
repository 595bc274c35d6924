package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jastats/statsgateway/internal/backend"
	"github.com/jastats/statsgateway/internal/config"
	"github.com/jastats/statsgateway/internal/handler"
	"github.com/jastats/statsgateway/internal/ingest"
	"github.com/jastats/statsgateway/internal/pipeline"
	"github.com/jastats/statsgateway/internal/response"
	"github.com/jastats/statsgateway/internal/storage"
	"github.com/jastats/statsgateway/internal/telemetry"
)

// ShutdownTimeout bounds how long in-flight requests may take to drain.
const ShutdownTimeout = 10 * time.Second

// Server holds the Echo app and dependencies.
type Server struct {
	Echo     *echo.Echo
	Config   *config.Config
	backends *backend.Clients
	metrics  *telemetry.Metrics
	slots    *semaphore.Weighted
	log      zerolog.Logger
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, log zerolog.Logger) *Server {
	metrics := telemetry.New()

	clients := backend.New(backend.Config{
		PushGatewayURL:      cfg.SaveStats.PushGatewayURL,
		LokiGatewayURL:      cfg.SaveStats.LokiGatewayURL,
		ZipkinURL:           cfg.SaveStats.ZipkinURL,
		InfluxURL:           cfg.SaveStats.InfluxdbURL,
		InfluxToken:         cfg.SaveStats.InfluxdbToken,
		InfluxOrg:           cfg.SaveStats.InfluxdbOrg,
		InfluxBucket:        cfg.SaveStats.InfluxdbBucket,
		Timeout:             cfg.BackendTimeout(),
		MaxIdleConnsPerHost: cfg.SaveStats.NumberOfThreads,
	}, log)
	clients.OnResult = func(name backend.Name, err error) {
		metrics.ObserveBackend(string(name), err)
	}

	appender := storage.NewAppender(cfg.PersistenceDir())
	pipe := pipeline.New(clients, appender, pipeline.Options{
		SaveStats:       cfg.SaveStatsEnabled(),
		DisableWarnings: cfg.WarningsDisabled(),
	})

	ingestHandler := &handler.IngestHandler{
		Pipeline: pipe,
		Options:  ingest.Options{RequireFileName: appender != nil},
		Metrics:  metrics,
		Logger:   log,
	}

	s := &Server{
		Config:   cfg,
		backends: clients,
		metrics:  metrics,
		slots:    semaphore.NewWeighted(int64(cfg.SaveStats.NumberOfThreads)),
		log:      log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return response.Text(c, http.StatusOK, "OK")
	})
	metricsPath := cfg.SaveStats.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	e.GET(metricsPath, echo.WrapHandler(metrics.Handler()))

	// Ingest: any path is accepted
	e.POST("/", ingestHandler.Ingest, s.limit)
	e.POST("/*", ingestHandler.Ingest, s.limit)

	s.Echo = e
	log.Info().
		Int("workers", cfg.SaveStats.NumberOfThreads).
		Str("persistence_dir", cfg.PersistenceDir()).
		Bool("influxdb", cfg.SaveStats.InfluxdbURL != "").
		Bool("zipkin", cfg.SaveStats.ZipkinURL != "").
		Msg("server configured")
	return s
}

// limit lets at most NumberOfThreads documents through the pipeline at once.
func (s *Server) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := s.slots.Acquire(c.Request().Context(), 1); err != nil {
			dur := time.Since(start)
			s.log.Warn().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("remote", c.RealIP()).
				Int("status", http.StatusServiceUnavailable).
				Str("reason", "no worker available: "+err.Error()).
				Dur("duration", dur).
				Msg("request")
			s.metrics.ObserveRequest("", http.StatusServiceUnavailable, dur)
			return response.ServiceUnavailable(c, "no worker available", err.Error())
		}
		defer s.slots.Release(1)
		return next(c)
	}
}

// Start serves until ctx is cancelled or the listener fails. On cancel,
// in-flight requests are drained before it returns.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", s.Config.ListenAddress).Msg("listening")
		if err := s.Echo.Start(s.Config.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the
// backend clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	s.backends.Close()
	return err
}
