package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/server/service/golf"
)

// APIV1Service exposes the golf data cache over HTTP for local collaborators.
type APIV1Service struct {
	Profile     *profile.Profile
	GolfService golf.Service
	Registry    *prometheus.Registry
}

func NewAPIV1Service(profile *profile.Profile, golfService golf.Service, registry *prometheus.Registry) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		GolfService: golfService,
		Registry:    registry,
	}
}

// RegisterRoutes registers the v1 routes with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	group.GET("/collections/:name", s.GetCollection)
	group.POST("/collections/:name/refresh", s.RefreshCollection)
	group.GET("/players/:slug/rounds", s.GetPlayerRounds)
	group.POST("/players/:slug/rounds/load", s.LoadPlayerRounds)
	group.GET("/status", s.GetStatus)
	group.DELETE("/cache", s.ClearCache)

	if s.Registry != nil {
		echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	}
}
