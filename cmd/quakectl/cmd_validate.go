package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

// Plausible bounds for catalog values.
const (
	minMagnitude = -2.0
	maxMagnitude = 10.0
	minDepthKm   = -10.0
	maxDepthKm   = 800.0
)

var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd(*app) *cobra.Command {
	var csvPath, fixturePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "check a catalog CSV (and optionally its raw fixture) for integrity problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := readCatalog(csvPath)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}

			phases := []*phase{
				validateParsing(rows),
				validateCoordinates(rows),
				validateIdentity(rows),
				validateRanges(rows, time.Now()),
			}
			if fixturePath != "" {
				fixture, err := loadFixture(fixturePath)
				if err != nil {
					return fmt.Errorf("load fixture: %w", err)
				}
				phases = append(phases, validateFixtureParity(rows, fixture))
			}

			if !report(cmd.OutOrStdout(), len(rows), phases) {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "USGS catalog CSV file")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "raw record JSON generated by the fixture command")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func report(w io.Writer, total int, phases []*phase) bool {
	fmt.Fprintln(w, "=== Catalog Integrity Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-36s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nRecords: %d\n", total)

	for _, p := range phases {
		if len(p.errors) == 0 && len(p.notes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		for _, n := range p.notes {
			fmt.Fprintf(w, "  note: %s\n", n)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}

// ── Phase 1: every row must parse into an event ──

func validateParsing(rows []catalogRow) *phase {
	p := &phase{name: "Parsing (time, magnitude)"}
	for _, r := range rows {
		if _, err := domain.ParseRecord(r.record, nil); err != nil {
			p.errorf("line %d (%s): %v", r.line, r.id, err)
		}
	}
	return p
}

// ── Phase 2: coordinates are either absent or valid ──
// Rows without coordinates are legal: they are stored and skipped by
// proximity searches.

func validateCoordinates(rows []catalogRow) *phase {
	p := &phase{name: "Coordinates"}
	var missing int
	for _, r := range rows {
		lat := strings.TrimSpace(r.record.Latitude)
		lon := strings.TrimSpace(r.record.Longitude)
		if lat == "" && lon == "" {
			missing++
			continue
		}
		e, err := domain.ParseRecord(r.record, nil)
		if err != nil {
			continue // reported by the parsing phase
		}
		if e.Geo == nil {
			p.errorf("line %d (%s): unusable coordinates lat=%q lon=%q", r.line, r.id, lat, lon)
		}
	}
	if missing > 0 {
		p.notef("%d row(s) without coordinates", missing)
	}
	return p
}

// ── Phase 3: catalog IDs and derived event IDs are unique ──

func validateIdentity(rows []catalogRow) *phase {
	p := &phase{name: "Identity (catalog and event IDs)"}
	catalogIDs := map[string]int{}
	eventIDs := map[string]int{}
	for _, r := range rows {
		if r.id != "" {
			if first, ok := catalogIDs[r.id]; ok {
				p.errorf("line %d: catalog id %q already used on line %d", r.line, r.id, first)
			} else {
				catalogIDs[r.id] = r.line
			}
		}
		e, err := domain.ParseRecord(r.record, nil)
		if err != nil {
			continue
		}
		if first, ok := eventIDs[e.ID]; ok {
			p.notef("line %d: duplicate of line %d (event id %s), the store keeps the first", r.line, first, e.ID)
		} else {
			eventIDs[e.ID] = r.line
		}
	}
	return p
}

// ── Phase 4: magnitude, depth and time are plausible ──

func validateRanges(rows []catalogRow, now time.Time) *phase {
	p := &phase{name: "Ranges (magnitude, depth, time)"}
	for _, r := range rows {
		e, err := domain.ParseRecord(r.record, nil)
		if err != nil {
			continue
		}
		if e.Magnitude < minMagnitude || e.Magnitude > maxMagnitude {
			p.errorf("line %d (%s): magnitude %g outside [%g, %g]", r.line, r.id, e.Magnitude, minMagnitude, maxMagnitude)
		}
		if e.Depth != nil && (*e.Depth < minDepthKm || *e.Depth > maxDepthKm) {
			p.errorf("line %d (%s): depth %g km outside [%g, %g]", r.line, r.id, *e.Depth, minDepthKm, maxDepthKm)
		}
		if e.Time.After(now) {
			p.errorf("line %d (%s): time %s is in the future", r.line, r.id, e.Time.Format(time.RFC3339))
		}
	}
	return p
}

// ── Phase 5: the raw fixture mirrors the CSV ──

func loadFixture(path string) ([]domain.RawQuakeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.RawQuakeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func validateFixtureParity(rows []catalogRow, fixture []domain.RawQuakeRecord) *phase {
	p := &phase{name: "Fixture parity (JSON vs CSV)"}
	if len(rows) != len(fixture) {
		p.errorf("csv has %d rows, fixture has %d records", len(rows), len(fixture))
	}
	for i := range min(len(rows), len(fixture)) {
		if rows[i].record != fixture[i] {
			p.errorf("line %d (%s): fixture record %d differs: csv=%+v fixture=%+v",
				rows[i].line, rows[i].id, i, rows[i].record, fixture[i])
		}
	}
	return p
}
