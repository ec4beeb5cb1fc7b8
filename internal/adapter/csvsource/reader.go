// Package csvsource reads USGS catalog CSV exports as a finite pipeline
// source.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

// requiredColumns must be present in the header row.
var requiredColumns = []string{"time", "latitude", "longitude", "mag", "place"}

// Reader yields one RawEvent per CSV data row. It implements
// pipeline.BatchExtractor and returns io.EOF once the file is exhausted.
type Reader struct {
	csv    *csv.Reader
	colIdx map[string]int
	name   string
	line   int
}

// NewReader reads and validates the header row from r. name labels the
// source in RawEvent.Topic.
func NewReader(r io.Reader, name string) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", col)
		}
	}
	return &Reader{csv: cr, colIdx: colIdx, name: name, line: 1}, nil
}

// Next returns the next record and its catalog ID, or io.EOF.
func (r *Reader) Next() (domain.RawQuakeRecord, string, error) {
	row, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.RawQuakeRecord{}, "", io.EOF
		}
		return domain.RawQuakeRecord{}, "", fmt.Errorf("read csv line %d: %w", r.line+1, err)
	}
	r.line++

	rec := domain.RawQuakeRecord{
		Time:      r.get(row, "time"),
		Latitude:  r.get(row, "latitude"),
		Longitude: r.get(row, "longitude"),
		Depth:     r.get(row, "depth"),
		Mag:       r.get(row, "mag"),
		MagType:   r.get(row, "magType"),
		Place:     r.get(row, "place"),
	}
	return rec, r.get(row, "id"), nil
}

// Line is the 1-based line number of the last row read.
func (r *Reader) Line() int { return r.line }

// ExtractBatch reads up to batchSize rows. The final partial batch is
// returned together with io.EOF.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	batch := make([]domain.RawEvent, 0, batchSize)
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		rec, id, err := r.Next()
		if err != nil {
			return batch, err
		}
		value, err := json.Marshal(rec)
		if err != nil {
			return batch, fmt.Errorf("encode csv line %d: %w", r.line, err)
		}
		batch = append(batch, domain.RawEvent{
			Key:    []byte(id),
			Value:  value,
			Topic:  r.name,
			Offset: int64(r.line),
		})
	}
	return batch, nil
}

func (r *Reader) get(row []string, col string) string {
	i, ok := r.colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
