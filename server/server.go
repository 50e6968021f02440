// Package server wires the golf data cache together and serves its optional HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/server/fetcher"
	"github.com/hrygo/fairway/server/internal/observability"
	apiv1 "github.com/hrygo/fairway/server/router/api/v1"
	"github.com/hrygo/fairway/server/service/freshness"
	"github.com/hrygo/fairway/server/service/golf"
	"github.com/hrygo/fairway/server/service/syncer"
	"github.com/hrygo/fairway/server/timezone"
	"github.com/hrygo/fairway/store"
)

type Server struct {
	Profile     *profile.Profile
	Store       *store.Store
	GolfService golf.Service
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry

	echoServer *echo.Echo
}

// NewServer builds the sync stack on top of store. It performs no network I/O.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	loc, err := timezone.ParseTimezone(profile.Timezone)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	pipeline := syncer.NewPipeline(fetcher.NewClient(fetcher.ConfigFromProfile(profile)), &syncer.Config{
		MaxConcurrentFetches: profile.MaxConcurrentFetches,
		Metrics:              metrics,
		Logger:               slog.Default(),
	})
	gate := freshness.NewGate(store, loc)
	golfService, err := golf.NewService(store, pipeline, gate, &golf.Config{
		RemoteBaseURL:  profile.RemoteBaseURL,
		EmbeddedRounds: profile.EmbeddedRounds,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create golf service")
	}

	s := &Server{
		Profile:     profile,
		Store:       store,
		GolfService: golfService,
		Metrics:     metrics,
		Registry:    observability.NewRegistry(metrics),
	}

	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
	}))
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	apiv1.NewAPIV1Service(profile, golfService, s.Registry).RegisterRoutes(echoServer)
	s.echoServer = echoServer

	return s, nil
}

// SetupTracing installs the OTLP tracer provider when the profile names an endpoint.
// The returned function flushes pending spans.
func SetupTracing(ctx context.Context, profile *profile.Profile) (func(context.Context) error, error) {
	return observability.SetupTracing(ctx, profile.OTelEndpoint, "fairway", profile.Version)
}

// Warmup refreshes every collection, as on a cold start.
func (s *Server) Warmup(ctx context.Context) {
	start := time.Now()
	results, err := s.GolfService.RefreshAll(ctx)
	if err != nil {
		slog.Error("startup refresh failed", slog.String("error", err.Error()))
		return
	}
	for name, result := range results {
		slog.Info("startup refresh",
			slog.String(observability.LogFieldResource, string(name)),
			slog.String(observability.LogFieldOutcome, result.Outcome.String()),
			slog.Int64(observability.LogFieldDuration, time.Since(start).Milliseconds()),
		)
	}
}

// Start refreshes the collections in the background and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	go s.Warmup(ctx)

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
	slog.Info("fairway stopped properly")
}

// Handler exposes the HTTP surface for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
