// Package query turns sparse search criteria into a parameterized filter for
// the record store.
//
// A Predicate is a list of typed clauses plus the values they bind. Clause
// text is produced only from the closed Column set and dialect templates, so
// criteria values can never reach the SQL string: they travel exclusively as
// bound arguments.
package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
)

// Column identifies a filterable column of the events table.
type Column int

const (
	ColMagnitude Column = iota
	ColTime
	ColPlace
	ColLabelDistance
)

func (c Column) String() string {
	switch c {
	case ColMagnitude:
		return "mag"
	case ColTime:
		return "occurred_at"
	case ColPlace:
		return "place_folded"
	case ColLabelDistance:
		return "distance"
	default:
		panic("query: unknown column")
	}
}

// Night-time window, in UTC hours (inclusive).
const (
	NightStartHour = 18
	NightEndHour   = 6
)

// Clause is one conjunct of a Predicate.
type Clause interface {
	// SQL renders the clause with one '?' placeholder per bound value.
	SQL(d Dialect) string
	// Arity is the number of bound values the clause consumes.
	Arity() int
}

// Between matches Column BETWEEN lo AND hi, inclusive at both ends.
type Between struct{ Column Column }

func (b Between) SQL(Dialect) string { return b.Column.String() + " BETWEEN ? AND ?" }
func (Between) Arity() int           { return 2 }

// ContainsFold is a case-insensitive substring match against a column
// holding domain.FoldPlace of the original text. The bound pattern is folded
// the same way, so neither side depends on the database's own case rules.
type ContainsFold struct{ Column Column }

func (c ContainsFold) SQL(Dialect) string {
	return c.Column.String() + " LIKE ? ESCAPE '\\'"
}
func (ContainsFold) Arity() int { return 1 }

// AtMost matches Column <= value.
type AtMost struct{ Column Column }

func (a AtMost) SQL(Dialect) string { return a.Column.String() + " <= ?" }
func (AtMost) Arity() int           { return 1 }

// GreaterThan matches Column > value.
type GreaterThan struct{ Column Column }

func (g GreaterThan) SQL(Dialect) string { return g.Column.String() + " > ?" }
func (GreaterThan) Arity() int           { return 1 }

// NightTime couples a magnitude floor with the night-time hour window. The
// two are a single clause: there is no night filter without the floor.
type NightTime struct{}

func (NightTime) SQL(d Dialect) string {
	hour := d.HourOf(ColTime.String())
	return ColMagnitude.String() + " > ? AND (" +
		hour + " >= " + strconv.Itoa(NightStartHour) + " OR " +
		hour + " <= " + strconv.Itoa(NightEndHour) + ")"
}
func (NightTime) Arity() int { return 1 }

// Predicate is a conjunction of clauses with their bound values in order.
// The zero Predicate matches every record.
type Predicate struct {
	Clauses []Clause
	Args    []any
}

func (p *Predicate) add(c Clause, args ...any) {
	p.Clauses = append(p.Clauses, c)
	p.Args = append(p.Args, args...)
}

// Empty reports whether the predicate matches every record.
func (p Predicate) Empty() bool { return len(p.Clauses) == 0 }

// And returns a predicate requiring both p and other.
func (p Predicate) And(other Predicate) Predicate {
	out := Predicate{
		Clauses: make([]Clause, 0, len(p.Clauses)+len(other.Clauses)),
		Args:    make([]any, 0, len(p.Args)+len(other.Args)),
	}
	out.Clauses = append(append(out.Clauses, p.Clauses...), other.Clauses...)
	out.Args = append(append(out.Args, p.Args...), other.Args...)
	return out
}

// Where renders the predicate for d. It returns an empty string when there
// are no clauses; otherwise the result starts with " WHERE ". Time values are
// converted to the dialect's storage representation.
func (p Predicate) Where(d Dialect) (string, []any) {
	if p.Empty() {
		return "", nil
	}
	parts := make([]string, len(p.Clauses))
	for i, c := range p.Clauses {
		parts[i] = "(" + c.SQL(d) + ")"
	}
	args := make([]any, len(p.Args))
	for i, a := range p.Args {
		if t, ok := a.(time.Time); ok {
			args[i] = d.BindTime(t)
			continue
		}
		args[i] = a
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Build composes the predicate for c. Criteria are validated first and a
// *domain.ValidationError is returned before anything is built. The
// reference point is never pushed down; proximity is evaluated in process.
func Build(c domain.FilterCriteria) (Predicate, error) {
	if err := c.Validate(); err != nil {
		return Predicate{}, err
	}

	var p Predicate
	if c.HasMagnitudeRange() {
		p.add(Between{ColMagnitude}, *c.MinMagnitude, *c.MaxMagnitude)
	}
	if c.HasTimeRange() {
		p.add(Between{ColTime}, c.Start.UTC(), c.End.UTC())
	}
	if c.Place != nil {
		p.add(ContainsFold{ColPlace}, "%"+escapeLike(domain.FoldPlace(*c.Place))+"%")
	}
	if c.NightTime {
		p.add(NightTime{}, domain.NightMagnitudeFloor)
	}
	if c.RadiusKm != nil && c.Reference == nil {
		p.add(AtMost{ColLabelDistance}, *c.RadiusKm)
	}
	return p, nil
}

// MagnitudeAbove matches events strictly larger than m.
func MagnitudeAbove(m float64) Predicate {
	var p Predicate
	p.add(GreaterThan{ColMagnitude}, m)
	return p
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
