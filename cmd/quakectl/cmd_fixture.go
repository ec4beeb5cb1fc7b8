package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/adapter/csvsource"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/query"
	"github.com/couchcryptid/quake-search-service/internal/search"
)

// fixtureClock stamps ProcessedAt so generated fixtures are reproducible.
var fixtureClock = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// catalogRow is one parsed CSV row with the catalog ID and line it came from.
type catalogRow struct {
	line   int
	id     string
	record domain.RawQuakeRecord
}

func newFixtureCmd(*app) *cobra.Command {
	var csvPath, rawOut, eventsOut string
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "generate JSON test fixtures from a catalog CSV and print their statistics",
		Long: "fixture converts a USGS catalog CSV into the raw record JSON published to the\n" +
			"source topic (--raw-out) and, optionally, the enriched events the ingest\n" +
			"pipeline would store (--events-out). The printed statistics are the numbers\n" +
			"test assertions are written against.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := readCatalog(csvPath)
			if err != nil {
				return err
			}

			domain.SetClock(clockwork.NewFakeClockAt(fixtureClock))
			defer domain.SetClock(nil)

			records := make([]domain.RawQuakeRecord, 0, len(rows))
			events := make([]domain.SeismicEvent, 0, len(rows))
			for _, r := range rows {
				records = append(records, r.record)
				e, err := domain.ParseRecord(r.record, nil)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "line %d (%s): %v\n", r.line, r.id, err)
					continue
				}
				events = append(events, domain.EnrichSeismicEvent(e))
			}

			if rawOut != "" {
				if err := writeJSONFile(rawOut, records); err != nil {
					return fmt.Errorf("write raw fixture: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d raw records to %s\n", len(records), rawOut)
			}
			if eventsOut != "" {
				if err := writeJSONFile(eventsOut, events); err != nil {
					return fmt.Errorf("write events fixture: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d events to %s\n", len(events), eventsOut)
			}

			printFixtureStats(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "USGS catalog CSV file")
	cmd.Flags().StringVar(&rawOut, "raw-out", "", "output path for the raw record JSON")
	cmd.Flags().StringVar(&eventsOut, "events-out", "", "output path for the enriched event JSON")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func readCatalog(path string) ([]catalogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(f)

	r, err := csvsource.NewReader(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	var rows []catalogRow
	for {
		rec, id, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, catalogRow{line: r.Line(), id: id, record: rec})
	}
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type fixtureStats struct {
	total, withGeo, withDepth, relativePlace int
	large, night                             int
	byWholeMag                               map[int]int
	maxMag                                   float64
	first, last                              time.Time
}

func collectFixtureStats(events []domain.SeismicEvent) fixtureStats {
	s := fixtureStats{total: len(events), byWholeMag: map[int]int{}}
	for i := range events {
		e := &events[i]
		if e.Geo != nil {
			s.withGeo++
		}
		if e.Depth != nil {
			s.withDepth++
		}
		if e.Location.Distance != nil {
			s.relativePlace++
		}
		if e.Magnitude > search.LargeMagnitude {
			s.large++
		}
		if e.Magnitude > domain.NightMagnitudeFloor && isNight(e.Time) {
			s.night++
		}
		s.byWholeMag[int(e.Magnitude)]++
		s.maxMag = max(s.maxMag, e.Magnitude)
		if s.first.IsZero() || e.Time.Before(s.first) {
			s.first = e.Time
		}
		if e.Time.After(s.last) {
			s.last = e.Time
		}
	}
	return s
}

func isNight(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= query.NightStartHour || h <= query.NightEndHour
}

func printFixtureStats(w io.Writer, events []domain.SeismicEvent) {
	s := collectFixtureStats(events)

	fmt.Fprintln(w, "=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Total: %d\n", s.total)
	fmt.Fprintf(w, "With coordinates: %d (missing %d)\n", s.withGeo, s.total-s.withGeo)
	fmt.Fprintf(w, "With depth: %d\n", s.withDepth)
	fmt.Fprintf(w, "Relative place labels: %d\n", s.relativePlace)
	fmt.Fprintf(w, "Large (mag > %g): %d\n", search.LargeMagnitude, s.large)
	fmt.Fprintf(w, "Night (mag > %g): %d\n", domain.NightMagnitudeFloor, s.night)
	fmt.Fprintf(w, "Max magnitude: %g\n", s.maxMag)
	if s.total > 0 {
		fmt.Fprintf(w, "Time range: %s .. %s\n", s.first.Format(time.RFC3339), s.last.Format(time.RFC3339))
	}

	mags := make([]int, 0, len(s.byWholeMag))
	for m := range s.byWholeMag {
		mags = append(mags, m)
	}
	slices.Sort(mags)
	fmt.Fprint(w, "By magnitude:")
	for _, m := range mags {
		fmt.Fprintf(w, " %d.x=%d", m, s.byWholeMag[m])
	}
	fmt.Fprintln(w)
}
