package query

import (
	"strings"
	"time"

	"github.com/kiranshivaraju/sheltertrack/pkg/models"
)

// Field names an animal attribute a predicate can test.
type Field string

const (
	FieldJobID       Field = "jobId"
	FieldSpecies     Field = "species"
	FieldSubspecies  Field = "subspecies"
	FieldDestination Field = "destination"
	FieldStatus      Field = "status"
	FieldInBy        Field = "inBy"
	FieldOutBy       Field = "outBy"
	FieldInAt        Field = "inAt"
	FieldOutAt       Field = "outAt"
	FieldCreatedAt   Field = "createdAt"
)

// Op is the kind of a predicate node.
type Op int

const (
	OpAll Op = iota
	OpAnd
	OpOr
	OpContains
	OpEquals
	OpBetween
)

// Predicate is a store-independent filter over animal records.
// The zero value matches every record.
type Predicate struct {
	Op       Op
	Field    Field
	Value    string
	From     *time.Time
	To       *time.Time
	Children []Predicate
}

// All matches every record.
func All() Predicate {
	return Predicate{Op: OpAll}
}

// And matches records satisfying every child. Match-all children are dropped.
func And(ps ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p.Op == OpAll {
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return All()
	case 1:
		return kept[0]
	}
	return Predicate{Op: OpAnd, Children: kept}
}

// Or matches records satisfying at least one child.
func Or(ps ...Predicate) Predicate {
	if len(ps) == 1 {
		return ps[0]
	}
	return Predicate{Op: OpOr, Children: ps}
}

// Contains is a case-insensitive substring match on a text field.
func Contains(f Field, substr string) Predicate {
	return Predicate{Op: OpContains, Field: f, Value: substr}
}

// Equals is an exact, case-sensitive match on a text field.
func Equals(f Field, value string) Predicate {
	return Predicate{Op: OpEquals, Field: f, Value: value}
}

// Between is an inclusive range on a time field. A nil bound is open on that side.
// Records whose field is unset never match.
func Between(f Field, from, to *time.Time) Predicate {
	return Predicate{Op: OpBetween, Field: f, From: from, To: to}
}

// Match evaluates the predicate against a single record.
func (p Predicate) Match(a *models.Animal) bool {
	switch p.Op {
	case OpAll:
		return true
	case OpAnd:
		for _, c := range p.Children {
			if !c.Match(a) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range p.Children {
			if c.Match(a) {
				return true
			}
		}
		return false
	case OpContains:
		v, ok := textValue(a, p.Field)
		return ok && strings.Contains(strings.ToLower(v), strings.ToLower(p.Value))
	case OpEquals:
		v, ok := textValue(a, p.Field)
		return ok && v == p.Value
	case OpBetween:
		t, ok := timeValue(a, p.Field)
		if !ok {
			return false
		}
		if p.From != nil && t.Before(*p.From) {
			return false
		}
		if p.To != nil && t.After(*p.To) {
			return false
		}
		return true
	}
	return false
}

// textValue returns the field as text; unset optional fields report ok=false,
// mirroring SQL NULL semantics in the database backends.
func textValue(a *models.Animal, f Field) (string, bool) {
	var v string
	switch f {
	case FieldJobID:
		v = a.JobID
	case FieldSpecies:
		v = a.Species
	case FieldSubspecies:
		v = a.Subspecies
	case FieldDestination:
		v = string(a.Destination)
	case FieldStatus:
		v = string(a.Status)
	case FieldInBy:
		v = a.InBy
	case FieldOutBy:
		v = a.OutBy
	default:
		return "", false
	}
	return v, v != ""
}

func timeValue(a *models.Animal, f Field) (time.Time, bool) {
	switch f {
	case FieldInAt:
		return a.InAt, !a.InAt.IsZero()
	case FieldOutAt:
		if a.OutAt == nil {
			return time.Time{}, false
		}
		return *a.OutAt, true
	case FieldCreatedAt:
		return a.CreatedAt, !a.CreatedAt.IsZero()
	}
	return time.Time{}, false
}

// SortValue returns a comparable timestamp for ordering; unset values sort as the zero time.
func SortValue(a *models.Animal, f Field) time.Time {
	t, _ := timeValue(a, f)
	return t
}
