package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	syncerrors "github.com/hrygo/fairway/server/internal/errors"
	"github.com/hrygo/fairway/server/service/golf"
	"github.com/hrygo/fairway/server/service/history"
	"github.com/hrygo/fairway/server/service/syncer"
	"github.com/hrygo/fairway/store"
)

// HeaderCached reports whether a collection has ever been fetched.
const HeaderCached = "X-Fairway-Cached"

// SyncResultResponse is the tri-state result of a fetch trigger.
type SyncResultResponse struct {
	Outcome   syncer.Outcome `json:"outcome"`
	Fetched   bool           `json:"fetched"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	ErrorCode string         `json:"errorCode,omitempty"`
}

// CollectionResponse lists the cached entities of a collection.
type CollectionResponse struct {
	Name   golf.Collection `json:"name"`
	Cached bool            `json:"cached"`
	Items  []store.Entity  `json:"items"`
}

// PlayerRoundsResponse is the history resolver view of one player.
type PlayerRoundsResponse struct {
	Slug   string         `json:"slug"`
	State  history.State  `json:"state"`
	Rounds []*store.Round `json:"rounds"`
}

func newSyncResultResponse(result *syncer.Result) *SyncResultResponse {
	response := &SyncResultResponse{Outcome: result.Outcome, Fetched: result.Fetched}
	if result.Header != nil {
		updatedAt := result.Header.UpdatedAt
		response.UpdatedAt = &updatedAt
	}
	if result.Err != nil {
		response.ErrorCode = string(syncerrors.GetCodeFromError(result.Err, syncerrors.ErrCodeIO))
	}
	return response
}

// GetCollection returns the cached entities of a collection without touching the network.
// GET /api/v1/collections/:name
func (s *APIV1Service) GetCollection(c echo.Context) error {
	name := golf.Collection(c.Param("name"))
	items, ok, err := s.GolfService.LookupCollection(name)
	if err != nil {
		if errors.Is(err, golf.ErrUnknownCollection) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return err
	}
	if ok {
		c.Response().Header().Set(HeaderCached, "true")
	} else {
		c.Response().Header().Set(HeaderCached, "false")
	}
	return c.JSON(http.StatusOK, &CollectionResponse{Name: name, Cached: ok, Items: items})
}

// RefreshCollection fetches a collection unconditionally.
// POST /api/v1/collections/:name/refresh
func (s *APIV1Service) RefreshCollection(c echo.Context) error {
	name := golf.Collection(c.Param("name"))
	result, err := s.GolfService.RefreshCollection(c.Request().Context(), name, "")
	if err != nil {
		if errors.Is(err, golf.ErrUnknownCollection) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		slog.Warn("Collection refresh rejected", "collection", name, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, newSyncResultResponse(result))
}

// GetPlayerRounds returns the rounds the resolver currently serves for a player.
// GET /api/v1/players/:slug/rounds
func (s *APIV1Service) GetPlayerRounds(c echo.Context) error {
	slug := c.Param("slug")
	if !store.ValidSlug(slug) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid player slug"})
	}
	state, rounds := s.GolfService.PlayerHistory(slug)
	return c.JSON(http.StatusOK, &PlayerRoundsResponse{Slug: slug, State: state, Rounds: rounds})
}

// LoadPlayerRounds upgrades a player to the full round set.
// POST /api/v1/players/:slug/rounds/load
func (s *APIV1Service) LoadPlayerRounds(c echo.Context) error {
	slug := c.Param("slug")
	if !store.ValidSlug(slug) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid player slug"})
	}
	result, err := s.GolfService.LoadFullHistory(c.Request().Context(), slug, "")
	if err != nil {
		slog.Warn("Full history load rejected", "slug", slug, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, newSyncResultResponse(result))
}

// GetStatus describes every cache slot.
// GET /api/v1/status
func (s *APIV1Service) GetStatus(c echo.Context) error {
	status, err := s.GolfService.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// ClearCache deletes every cache slot and freshness record.
// DELETE /api/v1/cache
func (s *APIV1Service) ClearCache(c echo.Context) error {
	if err := s.GolfService.ClearAllCaches(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
