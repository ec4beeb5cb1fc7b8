package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlaceRidgecrest = "12 km NNW of Ridgecrest, CA"

func TestParseRawEvent(t *testing.T) {
	t.Run("complete record", func(t *testing.T) {
		data := []byte(`{"time":"2019-07-06T03:19:53.040Z","latitude":"35.7695","longitude":"-117.5993","depth":"8","mag":"7.1","magType":"mw","place":"` + testPlaceRidgecrest + `"}`)
		result, err := ParseRawEvent(RawEvent{Value: data})

		require.NoError(t, err)
		assert.Equal(t, time.Date(2019, 7, 6, 3, 19, 53, 40_000_000, time.UTC), result.Time)
		require.NotNil(t, result.Geo)
		assert.Equal(t, 35.7695, result.Geo.Lat)
		assert.Equal(t, -117.5993, result.Geo.Lon)
		require.NotNil(t, result.Depth)
		assert.Equal(t, 8.0, *result.Depth)
		assert.Equal(t, 7.1, result.Magnitude)
		assert.Equal(t, "mw", result.MagType)
		assert.Equal(t, testPlaceRidgecrest, result.Place)
		assert.True(t, strings.HasPrefix(result.ID, "eq-"))
		assert.Equal(t, data, result.RawPayload)
		assert.True(t, result.ProcessedAt.IsZero())
	})

	t.Run("unparseable coordinates are kept as missing", func(t *testing.T) {
		data := []byte(`{"time":"2020-01-01T00:00:00Z","latitude":"abc","longitude":"-117.5","mag":"3.2","place":"Somewhere"}`)
		result, err := ParseRawEvent(RawEvent{Value: data})

		require.NoError(t, err)
		assert.Nil(t, result.Geo)
		_, err = result.Point()
		assert.Error(t, err)
	})

	t.Run("out of range coordinates are kept as missing", func(t *testing.T) {
		data := []byte(`{"time":"2020-01-01T00:00:00Z","latitude":"95","longitude":"10","mag":"3.2"}`)
		result, err := ParseRawEvent(RawEvent{Value: data})

		require.NoError(t, err)
		assert.Nil(t, result.Geo)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte("{invalid json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse raw event")
	})

	t.Run("missing time", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"mag":"4.0"}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "time")
	})

	t.Run("invalid magnitude", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"time":"2020-01-01T00:00:00Z","mag":"big"}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mag")
	})

	t.Run("deterministic ID", func(t *testing.T) {
		data := []byte(`{"time":"2020-01-01T00:00:00Z","latitude":"1","longitude":"2","mag":"3.2","place":"X"}`)
		r1, err := ParseRawEvent(RawEvent{Value: data})
		require.NoError(t, err)
		r2, err := ParseRawEvent(RawEvent{Value: data})
		require.NoError(t, err)
		assert.Equal(t, r1.ID, r2.ID)
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"RFC3339 with millis", "2019-07-06T03:19:53.040Z", time.Date(2019, 7, 6, 3, 19, 53, 40_000_000, time.UTC)},
		{"RFC3339 with offset", "2019-07-06T05:19:53+02:00", time.Date(2019, 7, 6, 3, 19, 53, 0, time.UTC)},
		{"SQL style", "2019-07-06 03:19:53", time.Date(2019, 7, 6, 3, 19, 53, 0, time.UTC)},
		{"no zone", "2019-07-06T03:19:53", time.Date(2019, 7, 6, 3, 19, 53, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestParsePlace(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantDist  *float64
		wantDir   *string
	}{
		{"relative label", testPlaceRidgecrest, "Ridgecrest, CA", ptr(12.0), ptr("NNW")},
		{"no space before km", "5km SE of Anza, CA", "Anza, CA", ptr(5.0), ptr("SE")},
		{"decimal distance", "3.5 km n of Volcano, Hawaii", "Volcano, Hawaii", ptr(3.5), ptr("N")},
		{"region only", "South of the Fiji Islands", "South of the Fiji Islands", nil, nil},
		{"empty", "", "", nil, nil},
		{"whitespace", "  Alaska Peninsula ", "Alaska Peninsula", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := ParsePlace(tt.input)
			assert.Equal(t, tt.wantName, loc.Name)
			assert.Equal(t, tt.wantDist, loc.Distance)
			assert.Equal(t, tt.wantDir, loc.Direction)
		})
	}
}

func TestEnrichSeismicEvent(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	local := time.FixedZone("PDT", -7*3600)
	event := EnrichSeismicEvent(SeismicEvent{
		ID:    "eq-1",
		Time:  time.Date(2019, 7, 5, 20, 19, 53, 0, local),
		Place: testPlaceRidgecrest,
	})

	assert.Equal(t, time.UTC, event.Time.Location())
	assert.Equal(t, 3, event.Time.Hour())
	assert.Equal(t, "Ridgecrest, CA", event.Location.Name)
	require.NotNil(t, event.Location.Distance)
	assert.InEpsilon(t, 12.0, *event.Location.Distance, 0.0001)
	assert.Equal(t, "original", event.PlaceSource)
	assert.Equal(t, fakeClock.Now(), event.ProcessedAt)

	unlabeled := EnrichSeismicEvent(SeismicEvent{ID: "eq-2"})
	assert.Empty(t, unlabeled.PlaceSource)
	assert.Empty(t, unlabeled.Location.Name)
}

func ptr[T any](v T) *T { return &v }
