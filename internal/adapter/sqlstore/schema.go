package sqlstore

import "github.com/couchcryptid/quake-search-service/internal/query"

// schema returns the DDL for the events table. Coordinates are nullable so
// records with unusable coordinates stay searchable by the other criteria.
func schema(d query.Dialect) []string {
	timeType, realType, textType := "INTEGER", "REAL", "TEXT"
	if _, ok := d.(query.DuckDB); ok {
		timeType, realType, textType = "TIMESTAMP", "DOUBLE", "VARCHAR"
	}

	return []string{
		"CREATE TABLE IF NOT EXISTS " + table + ` (
	id           ` + textType + ` PRIMARY KEY,
	occurred_at  ` + timeType + ` NOT NULL,
	latitude     ` + realType + `,
	longitude    ` + realType + `,
	depth        ` + realType + `,
	mag          ` + realType + ` NOT NULL,
	mag_type     ` + textType + `,
	place        ` + textType + ` NOT NULL DEFAULT '',
	place_folded ` + textType + ` NOT NULL DEFAULT '',
	place_name   ` + textType + `,
	distance     ` + realType + `,
	direction    ` + textType + `,
	place_source ` + textType + `,
	processed_at ` + timeType + `
)`,
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_mag ON " + table + " (mag)",
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_occurred_at ON " + table + " (occurred_at)",
	}
}
