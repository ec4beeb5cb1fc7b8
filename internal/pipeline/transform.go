package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

// QuakeTransformer implements Transformer using the domain parsing and
// enrichment functions, with optional reverse geocoding.
type QuakeTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a QuakeTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *QuakeTransformer {
	return &QuakeTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *QuakeTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.SeismicEvent, error) {
	event, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.SeismicEvent{}, err
	}

	event = domain.EnrichSeismicEvent(event)
	event = domain.EnrichWithGeocoding(ctx, event, t.geocoder, t.logger)

	return event, nil
}
