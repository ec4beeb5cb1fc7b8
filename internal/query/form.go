package query

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

const dateLayout = "2006-01-02"

// Form holds search inputs exactly as received from a query string, an HTML
// form or command-line flags. Blank fields mean "no constraint".
type Form struct {
	MinMag    string `form:"min_mag" json:"min_mag"`
	MaxMag    string `form:"max_mag" json:"max_mag"`
	StartDate string `form:"start_date" json:"start_date"`
	EndDate   string `form:"end_date" json:"end_date"`
	Latitude  string `form:"latitude" json:"latitude"`
	Longitude string `form:"longitude" json:"longitude"`
	Distance  string `form:"distance" json:"distance"`
	Place     string `form:"place" json:"place"`
	NightTime string `form:"night_time" json:"night_time"`
}

// ParseCriteria converts raw inputs into FilterCriteria. Malformed values
// fail fast with a *domain.ValidationError naming the field.
//
// A bare end date ("2020-12-31") covers that whole day. A latitude without a
// longitude (or the reverse) is dropped, as is a point without a distance.
func ParseCriteria(f Form) (domain.FilterCriteria, error) {
	var (
		c   domain.FilterCriteria
		err error
	)

	if c.MinMagnitude, err = optionalFloat("min_mag", f.MinMag); err != nil {
		return c, err
	}
	if c.MaxMagnitude, err = optionalFloat("max_mag", f.MaxMag); err != nil {
		return c, err
	}
	if c.Start, err = optionalTime("start_date", f.StartDate, false); err != nil {
		return c, err
	}
	if c.End, err = optionalTime("end_date", f.EndDate, true); err != nil {
		return c, err
	}
	if c.Reference, err = optionalPoint(f.Latitude, f.Longitude); err != nil {
		return c, err
	}
	if c.RadiusKm, err = optionalFloat("distance", f.Distance); err != nil {
		return c, err
	}
	if place := strings.TrimSpace(f.Place); place != "" {
		c.Place = &place
	}
	if c.NightTime, err = parseFlag("night_time", f.NightTime); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func optionalFloat(field, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domain.NewValidationError(field, "not a number: %q", s)
	}
	return &v, nil
}

func optionalTime(field, s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			d = d.Add(24*time.Hour - time.Millisecond)
		}
		return &d, nil
	}
	t, err := domain.ParseTime(s)
	if err != nil {
		return nil, domain.NewValidationError(field, "not a date: %q", s)
	}
	return &t, nil
}

func optionalPoint(latStr, lonStr string) (*domain.Geo, error) {
	lat, err := optionalFloat("latitude", latStr)
	if err != nil {
		return nil, err
	}
	lon, err := optionalFloat("longitude", lonStr)
	if err != nil {
		return nil, err
	}
	if lat == nil || lon == nil {
		return nil, nil
	}
	if *lat < -90 || *lat > 90 {
		return nil, domain.NewValidationError("latitude", "%g out of range [-90, 90]", *lat)
	}
	if *lon < -180 || *lon > 180 {
		return nil, domain.NewValidationError("longitude", "%g out of range [-180, 180]", *lon)
	}
	return &domain.Geo{Lat: *lat, Lon: *lon}, nil
}

func parseFlag(field, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "1", "true", "on", "yes":
		return true, nil
	default:
		return false, domain.NewValidationError(field, "not a boolean: %q", s)
	}
}
