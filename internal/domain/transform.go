package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/quake-search-service/internal/geo"
)

// placeRe parses USGS relative place labels: "<km> km <compass> of <place>",
// e.g. "12 km NNW of Ridgecrest, CA" -> distance=12, direction=NNW, name="Ridgecrest, CA".
var placeRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*km\s+([NSEW]{1,3})\s+of\s+(.+)$`)

// timeLayouts are the timestamp formats accepted from upstream producers.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseRawEvent deserializes a RawEvent's value into a SeismicEvent.
//
// Time and magnitude are required. Coordinates are optional: an event whose
// latitude or longitude cannot be parsed keeps a nil Geo so that it can still
// be found by non-spatial searches.
func ParseRawEvent(raw RawEvent) (SeismicEvent, error) {
	var rec RawQuakeRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return SeismicEvent{}, fmt.Errorf("parse raw event: %w", err)
	}
	return ParseRecord(rec, raw.Value)
}

// ParseRecord converts a string-typed record into a SeismicEvent.
func ParseRecord(rec RawQuakeRecord, payload []byte) (SeismicEvent, error) {
	eventTime, err := ParseTime(rec.Time)
	if err != nil {
		return SeismicEvent{}, fmt.Errorf("parse raw event: time: %w", err)
	}

	magnitude, err := strconv.ParseFloat(strings.TrimSpace(rec.Mag), 64)
	if err != nil {
		return SeismicEvent{}, fmt.Errorf("parse raw event: mag %q: %w", rec.Mag, err)
	}

	event := SeismicEvent{
		Time:       eventTime,
		Geo:        parseGeo(rec.Latitude, rec.Longitude),
		Depth:      parseOptionalFloat(rec.Depth),
		Magnitude:  magnitude,
		MagType:    strings.TrimSpace(rec.MagType),
		Place:      strings.TrimSpace(rec.Place),
		RawPayload: payload,
	}
	event.ID = generateID(event)
	return event, nil
}

// ParseTime parses an upstream timestamp and normalizes it to UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseGeo returns nil unless both coordinates parse and are in range.
func parseGeo(latStr, lonStr string) *Geo {
	lat := parseOptionalFloat(latStr)
	lon := parseOptionalFloat(lonStr)
	if lat == nil || lon == nil {
		return nil
	}
	if geo.Validate(*lat, *lon) != nil {
		return nil
	}
	return &Geo{Lat: *lat, Lon: *lon}
}

// generateID produces a deterministic ID from the event's key fields.
func generateID(e SeismicEvent) string {
	coords := "na"
	if e.Geo != nil {
		coords = fmt.Sprintf("%.4f|%.4f", e.Geo.Lat, e.Geo.Lon)
	}
	input := fmt.Sprintf("%s|%s|%g|%s", e.Time.UTC().Format(time.RFC3339Nano), coords, e.Magnitude, e.Place)
	hash := sha256.Sum256([]byte(input))
	return "eq-" + hex.EncodeToString(hash[:8])
}

// EnrichSeismicEvent derives the structured location fields from the place
// label and stamps the processing time.
func EnrichSeismicEvent(event SeismicEvent) SeismicEvent {
	event.Time = event.Time.UTC()
	event.Location = ParsePlace(event.Place)
	if event.Place != "" && event.PlaceSource == "" {
		event.PlaceSource = "original"
	}
	event.ProcessedAt = clock.Now()
	return event
}

// ParsePlace splits a USGS place label into (name, distance, direction).
// Labels without a relative offset become the name with nil distance and
// direction.
func ParsePlace(place string) Location {
	place = strings.TrimSpace(place)
	if place == "" {
		return Location{}
	}

	matches := placeRe.FindStringSubmatch(place)
	if len(matches) != 4 {
		return Location{Name: place}
	}

	distance, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return Location{Name: place}
	}

	direction := strings.ToUpper(matches[2])
	return Location{
		Name:      strings.TrimSpace(matches[3]),
		Distance:  &distance,
		Direction: &direction,
	}
}
