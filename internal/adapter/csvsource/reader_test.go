package csvsource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

const sample = `time,latitude,longitude,depth,mag,magType,id,place
2019-07-06T03:19:53.040Z,35.7695,-117.5993333,8,7.1,mw,ci38457511,"16 km SW of Searles Valley, CA"
2023-11-11T04:12:00.000Z,,,,4.2,mb,us-nocoords,South Sandwich Islands region
2024-01-01T07:10:09.476Z,37.4874,137.2710,10,7.5,mww,us6000m0xl,"2024 Noto Peninsula, Japan Earthquake"
`

func TestReader_Next(t *testing.T) {
	r, err := NewReader(strings.NewReader(sample), "sample.csv")
	require.NoError(t, err)

	rec, id, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "ci38457511", id)
	assert.Equal(t, domain.RawQuakeRecord{
		Time:      "2019-07-06T03:19:53.040Z",
		Latitude:  "35.7695",
		Longitude: "-117.5993333",
		Depth:     "8",
		Mag:       "7.1",
		MagType:   "mw",
		Place:     "16 km SW of Searles Valley, CA",
	}, rec)
	assert.Equal(t, 2, r.Line())

	rec, _, err = r.Next()
	require.NoError(t, err)
	assert.Empty(t, rec.Latitude)

	_, _, err = r.Next()
	require.NoError(t, err)
	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_MissingColumn(t *testing.T) {
	_, err := NewReader(strings.NewReader("time,latitude,longitude\n"), "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mag"`)
}

func TestReader_ExtractBatch(t *testing.T) {
	r, err := NewReader(strings.NewReader(sample), "sample.csv")
	require.NoError(t, err)

	batch, err := r.ExtractBatch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, []byte("ci38457511"), batch[0].Key)
	assert.Equal(t, "sample.csv", batch[0].Topic)

	event, err := domain.ParseRawEvent(batch[0])
	require.NoError(t, err)
	assert.InDelta(t, 7.1, event.Magnitude, 1e-9)
	require.NotNil(t, event.Geo)

	batch, err = r.ExtractBatch(context.Background(), 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, batch, 1, "final partial batch is returned with EOF")
}

func TestReader_MockCatalogParses(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "..", "data", "mock", "quakes.csv"))
	require.NoError(t, err)
	defer f.Close()

	r, err := NewReader(f, "quakes.csv")
	require.NoError(t, err)

	var rows, withCoords int
	for {
		rec, _, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		event, err := domain.ParseRecord(rec, nil)
		require.NoError(t, err, "line %d", r.Line())
		rows++
		if _, err := event.Point(); err == nil {
			withCoords++
		}
	}
	assert.Equal(t, 28, rows)
	assert.Equal(t, 27, withCoords)
}
