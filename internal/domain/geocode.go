package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills in a missing place label from the event's
// coordinates. Events that already carry a label, or have no usable
// coordinates, are returned unchanged. Geocoding failures degrade gracefully:
// the event keeps an empty label and PlaceSource is set to "failed".
func EnrichWithGeocoding(ctx context.Context, event SeismicEvent, geocoder Geocoder, logger *slog.Logger) SeismicEvent {
	if geocoder == nil || event.Place != "" {
		return event
	}

	p, err := event.Point()
	if err != nil {
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, p.Lat, p.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", event.ID,
			"lat", p.Lat,
			"lon", p.Lon,
			"error", err,
		)
		event.PlaceSource = "failed"
		return event
	}
	if result.FormattedAddress == "" {
		return event
	}

	event.Place = result.FormattedAddress
	event.Location = Location{Name: result.PlaceName}
	event.PlaceSource = "reverse"
	return event
}
