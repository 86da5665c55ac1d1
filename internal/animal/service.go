// Package animal implements the record lifecycle: intake, edits while IN,
// the single transition to OUT, removal, and the listing/search reads built on pkg/query.
package animal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

// Observer receives one call per service operation.
type Observer interface {
	Observe(op, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string, time.Duration) {}

// IntakeInput is the payload for creating a record.
type IntakeInput struct {
	JobID          string
	Species        string
	Subspecies     string
	Destination    models.Destination
	InchargePerson string
	InAt           time.Time
}

// Patch is a partial edit. Nil fields are left untouched.
type Patch struct {
	JobID          *string
	Species        *string
	Subspecies     *string
	Destination    *models.Destination
	InchargePerson *string
	Remark         *string
	IsTreated      *bool
}

func (p Patch) empty() bool {
	return p.JobID == nil && p.Species == nil && p.Subspecies == nil && p.Destination == nil &&
		p.InchargePerson == nil && p.Remark == nil && p.IsTreated == nil
}

// MarkOutInput is the payload for the IN to OUT transition.
type MarkOutInput struct {
	OutAt  time.Time
	Type   models.MarkOutType
	Reason string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. The returned time's location defines "today" for Stats.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers an operation observer, typically a metrics recorder.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service enforces record invariants on top of an AnimalStore.
type Service struct {
	store    store.AnimalStore
	queries  query.Builder
	now      func() time.Time
	observer Observer
}

// NewService creates a new Service.
func NewService(st store.AnimalStore, opts ...Option) *Service {
	s := &Service{
		store:    st,
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.observer.Observe(op, Outcome(*err), time.Since(start))
}

// Intake creates a new IN record attributed to actor.
func (s *Service) Intake(ctx context.Context, in IntakeInput, actor string) (_ *models.Animal, err error) {
	defer s.observe("intake", time.Now(), &err)

	in.JobID = strings.TrimSpace(in.JobID)
	in.Species = strings.TrimSpace(in.Species)
	in.Subspecies = strings.TrimSpace(in.Subspecies)
	in.InchargePerson = strings.TrimSpace(in.InchargePerson)

	switch {
	case in.JobID == "":
		return nil, invalid("jobId is required")
	case in.Species == "":
		return nil, invalid("species is required")
	case in.Destination == "":
		return nil, invalid("destination is required")
	case !in.Destination.Valid():
		return nil, invalid("destination must be one of Treatment Center, Rehab Center, Other")
	case in.InchargePerson == "":
		return nil, invalid("inchargePerson is required")
	case in.InAt.IsZero():
		return nil, invalid("inAt is required")
	case actor == "":
		return nil, invalid("actor is required")
	}

	if err := s.ensureJobIDFree(ctx, in.JobID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &models.Animal{
		ID:             uuid.New(),
		JobID:          in.JobID,
		Species:        in.Species,
		Subspecies:     in.Subspecies,
		Status:         models.StatusIn,
		Destination:    in.Destination,
		InchargePerson: in.InchargePerson,
		InAt:           instant(in.InAt),
		InBy:           actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAnimal(ctx, a); err != nil {
		return nil, storeError("create animal", err)
	}

	slog.Info("animal intake", "job_id", a.JobID, "actor", actor, "destination", a.Destination)
	return a, nil
}

// Get returns the record with jobID.
func (s *Service) Get(ctx context.Context, jobID string) (_ *models.Animal, err error) {
	defer s.observe("get", time.Now(), &err)

	a, err := s.store.GetAnimalByJobID(ctx, jobID)
	if err != nil {
		return nil, storeError("get animal", err)
	}
	return a, nil
}

// Edit applies a partial update to an IN record.
func (s *Service) Edit(ctx context.Context, jobID string, p Patch, actor string) (_ *models.Animal, err error) {
	defer s.observe("edit", time.Now(), &err)
	return s.edit(ctx, "edit", jobID, p, actor)
}

// Move changes the destination of an IN record.
func (s *Service) Move(ctx context.Context, jobID string, dest models.Destination, actor string) (_ *models.Animal, err error) {
	defer s.observe("move", time.Now(), &err)
	return s.edit(ctx, "move", jobID, Patch{Destination: &dest}, actor)
}

// SetRemark replaces the remark and treated flag of an IN record.
func (s *Service) SetRemark(ctx context.Context, jobID, remark string, isTreated bool, actor string) (_ *models.Animal, err error) {
	defer s.observe("set_remark", time.Now(), &err)
	return s.edit(ctx, "set_remark", jobID, Patch{Remark: &remark, IsTreated: &isTreated}, actor)
}

func (s *Service) edit(ctx context.Context, op, jobID string, p Patch, actor string) (*models.Animal, error) {
	if p.empty() {
		return nil, invalid("no fields provided")
	}

	a, err := s.store.GetAnimalByJobID(ctx, jobID)
	if err != nil {
		return nil, storeError("get animal", err)
	}
	if !a.IsIn() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, a.JobID, a.Status)
	}

	if err := s.apply(ctx, a, p); err != nil {
		return nil, err
	}
	a.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateAnimal(ctx, a); err != nil {
		return nil, storeError("update animal", err)
	}

	slog.Info("animal updated", "op", op, "job_id", a.JobID, "previous_job_id", jobID, "actor", actor)
	return a, nil
}

func (s *Service) apply(ctx context.Context, a *models.Animal, p Patch) error {
	if p.JobID != nil {
		newID := strings.TrimSpace(*p.JobID)
		if newID == "" {
			return invalid("jobId must not be empty")
		}
		if newID != a.JobID {
			if err := s.ensureJobIDFree(ctx, newID); err != nil {
				return err
			}
			a.JobID = newID
		}
	}
	if p.Species != nil {
		species := strings.TrimSpace(*p.Species)
		if species == "" {
			return invalid("species must not be empty")
		}
		a.Species = species
	}
	if p.Subspecies != nil {
		a.Subspecies = strings.TrimSpace(*p.Subspecies)
	}
	if p.Destination != nil {
		if !p.Destination.Valid() {
			return invalid("destination must be one of Treatment Center, Rehab Center, Other")
		}
		a.Destination = *p.Destination
	}
	if p.InchargePerson != nil {
		person := strings.TrimSpace(*p.InchargePerson)
		if person == "" {
			return invalid("inchargePerson must not be empty")
		}
		a.InchargePerson = person
	}
	if p.Remark != nil {
		a.Remark = strings.TrimSpace(*p.Remark)
	}
	if p.IsTreated != nil {
		a.IsTreated = *p.IsTreated
	}
	return nil
}

// MarkOut performs the single IN to OUT transition.
func (s *Service) MarkOut(ctx context.Context, jobID string, in MarkOutInput, actor string) (_ *models.Animal, err error) {
	defer s.observe("mark_out", time.Now(), &err)

	switch {
	case in.OutAt.IsZero():
		return nil, invalid("outAt is required")
	case !in.Type.Valid():
		return nil, invalid("markOutType must be one of Release, Dead, Other")
	case actor == "":
		return nil, invalid("actor is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if in.Type == models.MarkOutOther && reason == "" {
		return nil, invalid("markOutReason is required when markOutType is Other")
	}
	if in.Type != models.MarkOutOther {
		reason = ""
	}

	a, err := s.store.GetAnimalByJobID(ctx, jobID)
	if err != nil {
		return nil, storeError("get animal", err)
	}
	if !a.IsIn() {
		return nil, fmt.Errorf("%w: %s is already OUT", ErrInvalidState, a.JobID)
	}

	outAt := instant(in.OutAt)
	a.Status = models.StatusOut
	a.OutAt = &outAt
	a.OutBy = actor
	a.MarkOutType = in.Type
	a.MarkOutReason = reason
	a.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateAnimal(ctx, a); err != nil {
		return nil, storeError("update animal", err)
	}

	slog.Info("animal marked out", "job_id", a.JobID, "actor", actor, "mark_out_type", a.MarkOutType)
	return a, nil
}

// Remove hard-deletes a record regardless of status.
func (s *Service) Remove(ctx context.Context, jobID, actor string) (err error) {
	defer s.observe("remove", time.Now(), &err)

	if err := s.store.DeleteAnimal(ctx, jobID); err != nil {
		return storeError("delete animal", err)
	}
	slog.Warn("animal removed", "job_id", jobID, "actor", actor)
	return nil
}

// ListIn returns IN records, newest intake first, optionally narrowed by quick search.
func (s *Service) ListIn(ctx context.Context, q string) (_ []*models.Animal, err error) {
	defer s.observe("list_in", time.Now(), &err)
	return s.find(ctx, s.queries.CurrentlyIn(strings.TrimSpace(q)))
}

// ListOut returns OUT records, newest disposition first.
func (s *Service) ListOut(ctx context.Context, q string) (_ []*models.Animal, err error) {
	defer s.observe("list_out", time.Now(), &err)
	return s.find(ctx, s.queries.RecentlyOut(strings.TrimSpace(q)))
}

// Search runs the audit-log query, most recently created first.
func (s *Service) Search(ctx context.Context, c query.Criteria) (_ []*models.Animal, err error) {
	defer s.observe("search", time.Now(), &err)

	if c.Status != "" && !c.Status.Valid() {
		return nil, invalid("status must be IN or OUT")
	}
	return s.find(ctx, s.queries.AuditLog(c))
}

// Export selects the records for a CSV export. The range applies only when both bounds are set.
func (s *Service) Export(ctx context.Context, start, end *time.Time) (_ []*models.Animal, err error) {
	defer s.observe("export", time.Now(), &err)

	if start != nil && end != nil && end.Before(*start) {
		return nil, invalid("endDate must not be before startDate")
	}
	return s.find(ctx, s.queries.Export(start, end))
}

func (s *Service) find(ctx context.Context, q query.Query) ([]*models.Animal, error) {
	animals, err := s.store.FindAnimals(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find animals: %w", err)
	}
	return animals, nil
}

// ensureJobIDFree is the fast-path uniqueness check; the store's unique index is authoritative.
func (s *Service) ensureJobIDFree(ctx context.Context, jobID string) error {
	_, err := s.store.GetAnimalByJobID(ctx, jobID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateKey, jobID)
	case errors.Is(err, store.ErrNotFound):
		return nil
	}
	return fmt.Errorf("check job id: %w", err)
}

// storeError translates store sentinels into lifecycle errors.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}

// instant normalizes a caller-supplied timestamp to UTC at millisecond
// precision, the resolution exports render.
func instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
