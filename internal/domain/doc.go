// Package domain models seismic event records and the criteria used to
// search them.
//
// # Data Source
//
// Event records follow the USGS earthquake catalog CSV/GeoJSON field set
// (https://earthquake.usgs.gov/earthquakes/search/). Upstream producers
// publish each row as flat JSON with string-typed fields, which
// [ParseRawEvent] converts into a [SeismicEvent].
//
// # USGS Data Conventions
//
// Place label format:
//
//	"<km> km <compass> of <place>"  ->  e.g. "12 km NNW of Ridgecrest, CA"
//	means 12 kilometers North-Northwest of Ridgecrest, California.
//	Compass directions: N, S, E, W, NE, NW, SE, SW, NNE, ENE, ESE, SSE, SSW, WSW, WNW, NNW.
//	Events without a nearby locality carry a region name only
//	(e.g. "South of the Fiji Islands"), which becomes the place name as-is.
//
// Time format:
//
//	ISO-8601 in UTC, usually with milliseconds: "2019-07-06T03:19:53.040Z".
//	Stored and compared as UTC instants.
//
// Coordinates:
//
//	WGS-84 decimal degrees. A record whose latitude or longitude is missing,
//	unparseable or out of range keeps a nil [SeismicEvent.Geo]; it is never
//	coerced to (0, 0), which is a real location in the Gulf of Guinea.
//
// Night-time:
//
//	The night-time filter uses the UTC hour of the event, hour >= 18 or
//	hour <= 6, and is coupled with a magnitude floor of 4.0. It answers
//	"large events at night" rather than "events at night".
//
// # ID Generation
//
// Event IDs are deterministic SHA-256 hashes of time|lat|lon|mag|place. This
// enables idempotent inserts (INSERT OR IGNORE / ON CONFLICT DO NOTHING) when
// the same message is replayed. See [generateID].
package domain
