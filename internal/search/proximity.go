package search

import (
	"math"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/geo"
)

// FilterByProximity keeps the records within radiusKm of ref, in input order.
// Records without usable coordinates are dropped and reported as warnings.
// An infinite radius keeps every record that has coordinates.
func FilterByProximity(records []domain.SeismicEvent, ref geo.Point, radiusKm float64) ([]domain.SeismicEvent, []domain.DataIntegrityWarning, error) {
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		return nil, nil, domain.NewValidationError("distance", "radius must be greater than 0, got %g", radiusKm)
	}
	if err := geo.Validate(ref.Lat, ref.Lon); err != nil {
		return nil, nil, domain.NewValidationError("latitude", "%v", err)
	}

	matches := make([]domain.SeismicEvent, 0, len(records))
	var warnings []domain.DataIntegrityWarning
	for i := range records {
		p, err := records[i].Point()
		if err != nil {
			warnings = append(warnings, domain.DataIntegrityWarning{EventID: records[i].ID, Reason: err.Error()})
			continue
		}
		if geo.DistanceKm(ref, p) <= radiusKm {
			matches = append(matches, records[i])
		}
	}
	return matches, warnings, nil
}
