package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

// dialect captures the two ways the SQL backends differ when rendering a predicate.
type dialect struct {
	placeholder func(n int) string
	timeArg     func(t time.Time) any
	lower       string
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	timeArg:     func(t time.Time) any { return t },
	lower:       "LOWER",
}

// SQLite stores timestamps as unix nanoseconds so range comparisons stay numeric.
// Its built-in LOWER only folds ASCII, so case folding goes through unicodeLowerFunc.
var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UTC().UnixNano() },
	lower:       unicodeLowerFunc,
}

var animalColumns = map[query.Field]string{
	query.FieldJobID:       "job_id",
	query.FieldSpecies:     "species",
	query.FieldSubspecies:  "subspecies",
	query.FieldDestination: "destination",
	query.FieldStatus:      "status",
	query.FieldInBy:        "in_by",
	query.FieldOutBy:       "out_by",
	query.FieldInAt:        "in_at",
	query.FieldOutAt:       "out_at",
	query.FieldCreatedAt:   "created_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereBuilder renders a query.Predicate to a SQL boolean expression, collecting
// bind arguments in order.
type whereBuilder struct {
	d    dialect
	args []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return w.d.placeholder(len(w.args))
}

func (w *whereBuilder) render(p query.Predicate) (string, error) {
	switch p.Op {
	case query.OpAll:
		return "1=1", nil
	case query.OpAnd, query.OpOr:
		if len(p.Children) == 0 {
			if p.Op == query.OpAnd {
				return "1=1", nil
			}
			return "1=0", nil
		}
		sep := " AND "
		if p.Op == query.OpOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(p.Children))
		for _, c := range p.Children {
			s, err := w.render(c)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	}

	col, ok := animalColumns[p.Field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", p.Field)
	}

	switch p.Op {
	case query.OpContains:
		pattern := "%" + likeEscaper.Replace(strings.ToLower(p.Value)) + "%"
		return fmt.Sprintf(`%s(%s) LIKE %s ESCAPE '\'`, w.d.lower, col, w.arg(pattern)), nil
	case query.OpEquals:
		return fmt.Sprintf("%s = %s", col, w.arg(p.Value)), nil
	case query.OpBetween:
		conds := []string{col + " IS NOT NULL"}
		if p.From != nil {
			conds = append(conds, fmt.Sprintf("%s >= %s", col, w.arg(w.d.timeArg(*p.From))))
		}
		if p.To != nil {
			conds = append(conds, fmt.Sprintf("%s <= %s", col, w.arg(w.d.timeArg(*p.To))))
		}
		return "(" + strings.Join(conds, " AND ") + ")", nil
	}
	return "", fmt.Errorf("unsupported predicate op %d", p.Op)
}

// orderBy renders the ORDER BY clause; job_id breaks ties so results are stable.
func orderBy(q query.Query) (string, error) {
	if q.SortBy == "" {
		return " ORDER BY job_id ASC", nil
	}
	col, ok := animalColumns[q.SortBy]
	if !ok {
		return "", fmt.Errorf("unknown sort field %q", q.SortBy)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, job_id ASC", col, dir), nil
}
