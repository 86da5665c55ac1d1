// Package query builds store-independent filters for animal record lookups.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/sheltertrack/pkg/models"
)

// quickSearchFields are the text fields matched by the free-text q criterion.
var quickSearchFields = []Field{
	FieldJobID,
	FieldSpecies,
	FieldSubspecies,
	FieldDestination,
	FieldInBy,
	FieldOutBy,
}

// Criteria is the full audit-log filter set. Empty fields are ignored.
type Criteria struct {
	Q           string
	AnimalID    string
	Species     string
	Destination string
	User        string
	Status      models.Status
	From        *time.Time
	To          *time.Time
}

// Query pairs a predicate with the ordering the caller expects.
type Query struct {
	Where  Predicate
	SortBy Field
	Desc   bool
}

// Builder constructs predicates and named queries.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// Build ANDs every non-empty criterion. Multi-field criteria (q, user) OR their fields.
func (b Builder) Build(c Criteria) Predicate {
	var parts []Predicate

	if c.AnimalID != "" {
		parts = append(parts, Contains(FieldJobID, c.AnimalID))
	}
	if c.Species != "" {
		parts = append(parts, Contains(FieldSpecies, c.Species))
	}
	if c.Status != "" {
		parts = append(parts, Equals(FieldStatus, string(c.Status)))
	}
	if c.Destination != "" {
		parts = append(parts, Contains(FieldDestination, c.Destination))
	}
	if c.User != "" {
		parts = append(parts, Or(Contains(FieldInBy, c.User), Contains(FieldOutBy, c.User)))
	}
	if c.Q != "" {
		parts = append(parts, b.quickSearch(c.Q, true))
	}
	if c.From != nil || c.To != nil {
		parts = append(parts, b.eitherDateBetween(c.From, c.To))
	}

	return And(parts...)
}

// AuditLog returns the privileged search ordered by creation time, newest first.
func (b Builder) AuditLog(c Criteria) Query {
	return Query{Where: b.Build(c), SortBy: FieldCreatedAt, Desc: true}
}

// CurrentlyIn lists IN records, most recent intake first.
func (b Builder) CurrentlyIn(q string) Query {
	return Query{Where: b.listing(models.StatusIn, q), SortBy: FieldInAt, Desc: true}
}

// RecentlyOut lists OUT records, most recent disposition first.
func (b Builder) RecentlyOut(q string) Query {
	return Query{Where: b.listing(models.StatusOut, q), SortBy: FieldOutAt, Desc: true}
}

// Export selects records whose intake or disposition falls in [start, end].
// A nil range selects everything.
func (b Builder) Export(start, end *time.Time) Query {
	where := All()
	if start != nil && end != nil {
		where = b.eitherDateBetween(start, end)
	}
	return Query{Where: where, SortBy: FieldInAt, Desc: true}
}

// listing scopes quick search to one status. The status shortcut is off here:
// inside a single-status list it would either match everything or nothing.
func (b Builder) listing(status models.Status, q string) Predicate {
	parts := []Predicate{Equals(FieldStatus, string(status))}
	if q != "" {
		parts = append(parts, b.quickSearch(q, false))
	}
	return And(parts...)
}

func (b Builder) quickSearch(q string, withStatus bool) Predicate {
	ors := make([]Predicate, 0, len(quickSearchFields)+1)
	for _, f := range quickSearchFields {
		ors = append(ors, Contains(f, q))
	}
	if withStatus {
		upper := strings.ToUpper(q)
		if upper == string(models.StatusIn) || upper == string(models.StatusOut) {
			ors = append(ors, Equals(FieldStatus, upper))
		}
	}
	return Or(ors...)
}

func (b Builder) eitherDateBetween(from, to *time.Time) Predicate {
	return Or(Between(FieldInAt, from, to), Between(FieldOutAt, from, to))
}

const dateOnly = "2006-01-02"

// ParseBound parses a range bound given as RFC 3339 or as a bare YYYY-MM-DD date.
// A bare date resolves to the start of that day in loc, or to its last millisecond
// when endOfDay is set. Empty input yields nil.
func ParseBound(s string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(dateOnly, s, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		d = EndOfDay(d)
	}
	return &d, nil
}

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
