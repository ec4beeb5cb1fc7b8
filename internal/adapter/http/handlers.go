package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/query"
	"github.com/couchcryptid/quake-search-service/internal/search"
)

// Searcher is the part of search.Service the API depends on.
type Searcher interface {
	Search(ctx context.Context, c domain.FilterCriteria) (search.Result, error)
	ClustersFor(ctx context.Context, c domain.FilterCriteria) ([]domain.Cluster, []domain.DataIntegrityWarning, error)
	CountLarge(ctx context.Context) (int64, error)
	CountLargeAtNight(ctx context.Context) (int64, error)
}

type handlers struct {
	svc    Searcher
	logger *slog.Logger
}

type searchResponse struct {
	Matches   []domain.SeismicEvent         `json:"matches"`
	Count     int                           `json:"count"`
	Skipped   int                           `json:"skipped"`
	Warnings  []domain.DataIntegrityWarning `json:"warnings"`
	Cached    bool                          `json:"cached"`
	ElapsedMS int64                         `json:"elapsed_ms"`
}

type clustersResponse struct {
	Clusters  []domain.Cluster              `json:"clusters"`
	Count     int                           `json:"count"`
	Warnings  []domain.DataIntegrityWarning `json:"warnings"`
	ElapsedMS int64                         `json:"elapsed_ms"`
}

type countResponse struct {
	Count        int64   `json:"count"`
	MinMagnitude float64 `json:"min_magnitude"`
	NightOnly    bool    `json:"night_only"`
}

// search handles GET|POST /api/v1/earthquakes.
func (h *handlers) search(c *gin.Context) {
	start := time.Now()
	criteria, ok := h.bindCriteria(c)
	if !ok {
		return
	}

	res, err := h.svc.Search(c.Request.Context(), criteria)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, searchResponse{
		Matches:   nonNil(res.Matches),
		Count:     len(res.Matches),
		Skipped:   res.Skipped,
		Warnings:  nonNil(res.Warnings),
		Cached:    res.Cached,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

// clusters handles GET /api/v1/clusters.
func (h *handlers) clusters(c *gin.Context) {
	start := time.Now()
	criteria, ok := h.bindCriteria(c)
	if !ok {
		return
	}

	clusters, warnings, err := h.svc.ClustersFor(c.Request.Context(), criteria)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, clustersResponse{
		Clusters:  nonNil(clusters),
		Count:     len(clusters),
		Warnings:  nonNil(warnings),
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

// countLarge handles GET /api/v1/stats/large.
func (h *handlers) countLarge(c *gin.Context) {
	n, err := h.svc.CountLarge(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, countResponse{Count: n, MinMagnitude: search.LargeMagnitude})
}

// countLargeAtNight handles GET /api/v1/stats/large-night.
func (h *handlers) countLargeAtNight(c *gin.Context) {
	n, err := h.svc.CountLargeAtNight(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, countResponse{Count: n, MinMagnitude: domain.NightMagnitudeFloor, NightOnly: true})
}

// bindCriteria reads the query string (GET), form body or JSON body (POST)
// and converts it to criteria, writing a 400 on failure.
func (h *handlers) bindCriteria(c *gin.Context) (domain.FilterCriteria, bool) {
	var form query.Form
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return domain.FilterCriteria{}, false
	}
	criteria, err := query.ParseCriteria(form)
	if err != nil {
		h.writeError(c, err)
		return domain.FilterCriteria{}, false
	}
	return criteria, true
}

// writeError maps service errors onto HTTP statuses.
func (h *handlers) writeError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, search.ErrTooManyCandidates):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	case domain.IsCollaborator(err):
		h.logger.Error("collaborator failure", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream store unavailable"})
	default:
		h.logger.Error("unexpected error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
	_ = c.Error(err)
}

// nonNil keeps empty lists as [] rather than null in responses.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
