// Package export renders animal records as the CSV download and resolves export date ranges.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

// Header is the fixed column row.
var Header = []string{
	"Job ID",
	"Species",
	"Subspecies",
	"Destination",
	"Incharge Person",
	"Status",
	"In Date",
	"In By",
	"Out Date",
	"Out By",
	"Mark Out Type",
	"Mark Out Reason",
	"Remark",
	"Treated?",
}

// TimeLayout renders timestamps as UTC RFC 3339 with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ContentType is the media type of a rendered export.
const ContentType = "text/csv"

// Filename returns the download name for an export generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("animal_tracking_export_%s.csv", t.Format("2006-01-02"))
}

// WriteCSV writes the header and one row per animal. Rows are separated by a
// single \n with no trailing newline. A field is quoted only when it contains a
// comma; quotes inside any field are doubled.
func WriteCSV(w io.Writer, animals []*models.Animal) error {
	bw := bufio.NewWriter(w)
	writeRow(bw, Header)
	for _, a := range animals {
		bw.WriteByte('\n')
		writeRow(bw, Row(a))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Row returns the column values for a, in Header order.
func Row(a *models.Animal) []string {
	treated := "No"
	if a.IsTreated {
		treated = "Yes"
	}
	return []string{
		a.JobID,
		a.Species,
		a.Subspecies,
		string(a.Destination),
		a.InchargePerson,
		string(a.Status),
		formatTime(&a.InAt),
		a.InBy,
		formatTime(a.OutAt),
		a.OutBy,
		string(a.MarkOutType),
		a.MarkOutReason,
		a.Remark,
		treated,
	}
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(escape(f))
	}
}

func escape(f string) string {
	f = strings.ReplaceAll(f, `"`, `""`)
	if strings.Contains(f, ",") {
		return `"` + f + `"`
	}
	return f
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseRange resolves startDate/endDate query values. The range is only applied
// when both are present; endDate covers its whole day through 23:59:59.999.
func ParseRange(startDate, endDate string, loc *time.Location) (start, end *time.Time, err error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return nil, nil, nil
	}
	if start, err = query.ParseBound(startDate, false, loc); err != nil {
		return nil, nil, fmt.Errorf("startDate: %w", err)
	}
	if end, err = query.ParseBound(endDate, true, loc); err != nil {
		return nil, nil, fmt.Errorf("endDate: %w", err)
	}
	return start, end, nil
}
