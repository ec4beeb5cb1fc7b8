package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/geo"
)

// NightMagnitudeFloor is the magnitude the night-time filter requires events to exceed.
const NightMagnitudeFloor = 4.0

// FilterCriteria is a sparse set of search constraints. A nil field means
// "no constraint on this dimension".
//
// The magnitude and time ranges apply only when both of their bounds are set;
// a single bound is ignored. RadiusKm with a Reference point selects the
// proximity filter; RadiusKm alone constrains the distance parsed from the
// place label instead. A Reference without RadiusKm is ignored.
type FilterCriteria struct {
	MinMagnitude *float64
	MaxMagnitude *float64
	Start        *time.Time
	End          *time.Time
	Reference    *Geo
	RadiusKm     *float64
	Place        *string
	NightTime    bool
}

// HasMagnitudeRange reports whether both magnitude bounds are present.
func (c FilterCriteria) HasMagnitudeRange() bool {
	return c.MinMagnitude != nil && c.MaxMagnitude != nil
}

// HasTimeRange reports whether both time bounds are present.
func (c FilterCriteria) HasTimeRange() bool {
	return c.Start != nil && c.End != nil
}

// HasProximity reports whether the proximity filter must run.
func (c FilterCriteria) HasProximity() bool {
	return c.Reference != nil && c.RadiusKm != nil
}

// Validate checks the criteria for contradictory or out-of-range values.
func (c FilterCriteria) Validate() error {
	if c.HasMagnitudeRange() {
		if err := finite("min_mag", *c.MinMagnitude); err != nil {
			return err
		}
		if err := finite("max_mag", *c.MaxMagnitude); err != nil {
			return err
		}
		if *c.MinMagnitude > *c.MaxMagnitude {
			return NewValidationError("min_mag", "%g is greater than max_mag %g", *c.MinMagnitude, *c.MaxMagnitude)
		}
	}
	if c.HasTimeRange() && c.Start.After(*c.End) {
		return NewValidationError("start_date", "start %s is after end %s",
			c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339))
	}
	if c.RadiusKm != nil {
		if err := finite("distance", *c.RadiusKm); err != nil {
			return err
		}
		if *c.RadiusKm <= 0 {
			return NewValidationError("distance", "radius must be greater than 0, got %g", *c.RadiusKm)
		}
	}
	if c.HasProximity() {
		if err := geo.Validate(c.Reference.Lat, c.Reference.Lon); err != nil {
			return NewValidationError("latitude", "%v", err)
		}
	}
	return nil
}

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NewValidationError(field, "must be a finite number")
	}
	return nil
}

// Signature returns a deterministic cache key for the criteria. Criteria that
// select the same records produce the same signature regardless of how the
// value was constructed.
func (c FilterCriteria) Signature() string {
	sum := sha256.Sum256([]byte(c.canonical()))
	return "quake:search:" + hex.EncodeToString(sum[:16])
}

// canonical serializes the effective constraints in a fixed order. Ignored
// half-ranges and a reference point without a radius are left out so they do
// not split the cache.
func (c FilterCriteria) canonical() string {
	var parts []string
	if c.HasMagnitudeRange() {
		parts = append(parts, "mag="+formatFloat(*c.MinMagnitude)+","+formatFloat(*c.MaxMagnitude))
	}
	if c.HasTimeRange() {
		parts = append(parts, "time="+c.Start.UTC().Format(time.RFC3339Nano)+","+c.End.UTC().Format(time.RFC3339Nano))
	}
	if c.HasProximity() {
		parts = append(parts, "ref="+formatFloat(c.Reference.Lat)+","+formatFloat(c.Reference.Lon))
	}
	if c.RadiusKm != nil {
		parts = append(parts, "radius="+formatFloat(*c.RadiusKm))
	}
	if c.Place != nil {
		parts = append(parts, "place="+strconv.Quote(FoldPlace(*c.Place)))
	}
	if c.NightTime {
		parts = append(parts, "night=1")
	}
	return strings.Join(parts, "&")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FoldPlace is the case folding used for place matching. The stored folded
// column, the bound search pattern and the cache signature all go through
// it, so a cached result is always the one the store would return.
func FoldPlace(s string) string {
	return strings.ToLower(s)
}
