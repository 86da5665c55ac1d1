package animal

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
	"golang.org/x/sync/errgroup"
)

// Stats is a point-in-time summary of the record set.
type Stats struct {
	Total       int `json:"total"`
	TotalIn     int `json:"totalIn"`
	TotalOut    int `json:"totalOut"`
	TodayIn     int `json:"todayIn"`
	TodayOut    int `json:"todayOut"`
	TreatmentIn int `json:"treatmentIn"`
	RehabIn     int `json:"rehabIn"`
}

// Stats counts records at call time. "Today" runs from midnight to the next midnight
// in the clock's location. The counts are issued concurrently and are not a snapshot.
func (s *Service) Stats(ctx context.Context) (_ *Stats, err error) {
	defer s.observe("stats", time.Now(), &err)

	start := query.StartOfDay(s.now())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	isIn := query.Equals(query.FieldStatus, string(models.StatusIn))
	isOut := query.Equals(query.FieldStatus, string(models.StatusOut))

	var st Stats
	counts := []struct {
		name  string
		where query.Predicate
		dst   *int
	}{
		{"total", query.All(), &st.Total},
		{"total_in", isIn, &st.TotalIn},
		{"total_out", isOut, &st.TotalOut},
		{"today_in", query.Between(query.FieldInAt, &start, &end), &st.TodayIn},
		{"today_out", query.Between(query.FieldOutAt, &start, &end), &st.TodayOut},
		{"treatment_in", query.And(isIn, query.Equals(query.FieldDestination, string(models.DestinationTreatmentCenter))), &st.TreatmentIn},
		{"rehab_in", query.And(isIn, query.Equals(query.FieldDestination, string(models.DestinationRehabCenter))), &st.RehabIn},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			n, err := s.store.CountAnimals(gctx, c.where)
			if err != nil {
				return fmt.Errorf("count %s: %w", c.name, err)
			}
			*c.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}
