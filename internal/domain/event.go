package domain

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/geo"
)

// RawQuakeRecord represents the flat JSON structure produced by upstream
// publishers. Field names mirror the USGS CSV header.
type RawQuakeRecord struct {
	Time      string `json:"time"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Depth     string `json:"depth"`
	Mag       string `json:"mag"`
	MagType   string `json:"magType"`
	Place     string `json:"place"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point converts the coordinate for distance calculations.
func (g Geo) Point() geo.Point {
	return geo.Point{Lat: g.Lat, Lon: g.Lon}
}

// Location holds the components parsed from a USGS place label.
type Location struct {
	Name      string   `json:"name,omitempty"`
	Distance  *float64 `json:"distance,omitempty"` // km from the named locality
	Direction *string  `json:"direction,omitempty"`
}

// SeismicEvent is the domain representation of a catalog record. Records are
// read-only once loaded from the store.
type SeismicEvent struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Geo       *Geo      `json:"geo,omitempty"`
	Depth     *float64  `json:"depth,omitempty"`
	Magnitude float64   `json:"magnitude"`
	MagType   string    `json:"mag_type,omitempty"`
	Place     string    `json:"place"`
	Location  Location  `json:"location"`

	// PlaceSource records how the place label was obtained: "original",
	// "reverse" (filled by reverse geocoding) or "failed".
	PlaceSource string `json:"place_source,omitempty"`

	RawPayload  []byte    `json:"-"`
	ProcessedAt time.Time `json:"processed_at"`
}

var errMissingCoordinates = errors.New("missing coordinates")

// Point returns the event's coordinate, or an error when the record has no
// usable latitude/longitude.
func (e SeismicEvent) Point() (geo.Point, error) {
	if e.Geo == nil {
		return geo.Point{}, errMissingCoordinates
	}
	if err := geo.Validate(e.Geo.Lat, e.Geo.Lon); err != nil {
		return geo.Point{}, err
	}
	return e.Geo.Point(), nil
}

// Cluster is a group of events lying within the proximity threshold of the
// seed event. Clusters are computed per request and never persisted.
type Cluster struct {
	Seed         string         `json:"seed"`
	Members      []SeismicEvent `json:"members"`
	Centroid     Geo            `json:"centroid"`
	Cell         string         `json:"cell,omitempty"` // H3 index of the centroid
	MaxMagnitude float64        `json:"max_magnitude"`
}
