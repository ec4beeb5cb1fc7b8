// Package search answers criteria searches against the record store, refines
// them by distance in process and groups the results into clusters.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/quake-search-service/internal/cluster"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/query"
)

// LargeMagnitude is the floor used by the large-event statistics.
const LargeMagnitude = 5.0

// ErrTooManyCandidates is returned when the store would hand back more rows
// than the configured candidate cap.
var ErrTooManyCandidates = errors.New("too many candidate records")

// RecordSource executes non-spatial predicates against the stored events.
type RecordSource interface {
	Query(ctx context.Context, p query.Predicate, limit int) ([]domain.SeismicEvent, error)
	Count(ctx context.Context, p query.Predicate) (int64, error)
}

// ResultCache is an advisory signature -> payload store with expiry.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Result is the outcome of a search.
type Result struct {
	Matches  []domain.SeismicEvent        `json:"matches"`
	Skipped  int                          `json:"skipped"`
	Warnings []domain.DataIntegrityWarning `json:"warnings,omitempty"`
	Cached   bool                         `json:"-"`
}

// Options tunes a Service.
type Options struct {
	// CacheTTL is the lifetime of cached results.
	CacheTTL time.Duration
	// MaxCandidates caps the rows fetched from the store per search; 0 disables the cap.
	MaxCandidates int
}

// Service runs searches, statistics and clustering.
type Service struct {
	source  RecordSource
	cache   ResultCache
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// NewService creates a Service. cache may be nil to disable result caching.
func NewService(source RecordSource, cache ResultCache, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	return &Service{
		source:  source,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// Search returns the events matching c. Validation errors are returned
// before the store or cache is touched; store failures come back as a
// *domain.CollaboratorError. Cache failures never fail a search.
func (s *Service) Search(ctx context.Context, c domain.FilterCriteria) (Result, error) {
	start := time.Now()
	defer func() { s.metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	res, err := s.search(ctx, c)
	s.metrics.SearchRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return Result{}, err
	}
	s.metrics.SearchSkipped.Add(float64(res.Skipped))
	return res, nil
}

func (s *Service) search(ctx context.Context, c domain.FilterCriteria) (Result, error) {
	pred, err := query.Build(c)
	if err != nil {
		return Result{}, err
	}

	key := c.Signature()
	if res, ok := s.cached(ctx, key); ok {
		return res, nil
	}

	limit := 0
	if s.opts.MaxCandidates > 0 {
		limit = s.opts.MaxCandidates + 1
	}
	rows, err := s.source.Query(ctx, pred, limit)
	if err != nil {
		s.metrics.StoreErrors.Inc()
		return Result{}, &domain.CollaboratorError{Collaborator: "record source", Op: "query", Err: err}
	}
	if s.opts.MaxCandidates > 0 && len(rows) > s.opts.MaxCandidates {
		return Result{}, fmt.Errorf("%w: more than %d records match, narrow the criteria", ErrTooManyCandidates, s.opts.MaxCandidates)
	}

	res := Result{Matches: rows}
	if c.HasProximity() {
		matches, warnings, err := FilterByProximity(rows, c.Reference.Point(), *c.RadiusKm)
		if err != nil {
			return Result{}, err
		}
		res = Result{Matches: matches, Skipped: len(warnings), Warnings: warnings}
	}

	s.store(ctx, key, res)
	return res, nil
}

// cached looks up a previous result. Any cache problem is logged and treated
// as a miss.
func (s *Service) cached(ctx context.Context, key string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("result cache lookup failed", "key", key, "error",
			&domain.CollaboratorError{Collaborator: "result cache", Op: "get", Err: err})
		return Result{}, false
	}
	if !ok {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("discarding undecodable cached result", "key", key, "error", err)
		return Result{}, false
	}
	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	res.Cached = true
	return res, true
}

func (s *Service) store(ctx context.Context, key string, res Result) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err == nil {
		err = s.cache.Set(ctx, key, data, s.opts.CacheTTL)
	}
	if err != nil {
		s.metrics.CacheWriteError.Inc()
		s.logger.Warn("result cache write failed", "key", key, "error",
			&domain.CollaboratorError{Collaborator: "result cache", Op: "set", Err: err})
	}
}

// FindClusters groups records into proximity clusters.
func (s *Service) FindClusters(records []domain.SeismicEvent) ([]domain.Cluster, []domain.DataIntegrityWarning) {
	start := time.Now()
	clusters, warnings := cluster.Find(records)
	s.metrics.ClusterDuration.Observe(time.Since(start).Seconds())
	s.metrics.ClustersFound.Observe(float64(len(clusters)))
	s.metrics.SearchSkipped.Add(float64(len(warnings)))
	return clusters, warnings
}

// ClustersFor searches with c and clusters the matches. Empty criteria
// cluster the whole record set.
func (s *Service) ClustersFor(ctx context.Context, c domain.FilterCriteria) ([]domain.Cluster, []domain.DataIntegrityWarning, error) {
	res, err := s.Search(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	clusters, warnings := s.FindClusters(res.Matches)
	return clusters, append(res.Warnings, warnings...), nil
}

// Count returns the number of events matching p.
func (s *Service) Count(ctx context.Context, p query.Predicate) (int64, error) {
	n, err := s.source.Count(ctx, p)
	if err != nil {
		s.metrics.StoreErrors.Inc()
		return 0, &domain.CollaboratorError{Collaborator: "record source", Op: "count", Err: err}
	}
	return n, nil
}

// CountLarge returns the number of events above LargeMagnitude.
func (s *Service) CountLarge(ctx context.Context) (int64, error) {
	return s.Count(ctx, query.MagnitudeAbove(LargeMagnitude))
}

// CountLargeAtNight returns the number of events matching the night-time filter.
func (s *Service) CountLargeAtNight(ctx context.Context) (int64, error) {
	p, err := query.Build(domain.FilterCriteria{NightTime: true})
	if err != nil {
		return 0, err
	}
	return s.Count(ctx, p)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsValidation(err):
		return "invalid"
	case errors.Is(err, ErrTooManyCandidates):
		return "too_many"
	default:
		return "error"
	}
}
