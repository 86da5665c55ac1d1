package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/sheltertrack/internal/animal"
	mw "github.com/kiranshivaraju/sheltertrack/internal/api/middleware"
	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/internal/archive"
	"github.com/kiranshivaraju/sheltertrack/internal/export"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

// AnimalService defines the lifecycle operations the handlers depend on.
type AnimalService interface {
	Intake(ctx context.Context, in animal.IntakeInput, actor string) (*models.Animal, error)
	Get(ctx context.Context, jobID string) (*models.Animal, error)
	Edit(ctx context.Context, jobID string, p animal.Patch, actor string) (*models.Animal, error)
	Move(ctx context.Context, jobID string, dest models.Destination, actor string) (*models.Animal, error)
	SetRemark(ctx context.Context, jobID, remark string, isTreated bool, actor string) (*models.Animal, error)
	MarkOut(ctx context.Context, jobID string, in animal.MarkOutInput, actor string) (*models.Animal, error)
	Remove(ctx context.Context, jobID, actor string) error
	ListIn(ctx context.Context, q string) ([]*models.Animal, error)
	ListOut(ctx context.Context, q string) ([]*models.Animal, error)
	Search(ctx context.Context, c query.Criteria) ([]*models.Animal, error)
	Export(ctx context.Context, start, end *time.Time) ([]*models.Animal, error)
	Stats(ctx context.Context) (*animal.Stats, error)
}

// Archiver uploads an export to object storage.
type Archiver interface {
	Archive(ctx context.Context, animals []*models.Animal, at time.Time) (*archive.Result, error)
}

// Animals serves the /api/v1/animals routes.
type Animals struct {
	svc      AnimalService
	archiver Archiver
	loc      *time.Location
	now      func() time.Time
}

// AnimalsOption configures Animals.
type AnimalsOption func(*Animals)

// WithArchiver enables POST /animals/export/archive.
func WithArchiver(a Archiver) AnimalsOption {
	return func(h *Animals) { h.archiver = a }
}

// WithLocation sets the zone used for date-only inputs. Defaults to time.Local.
func WithLocation(loc *time.Location) AnimalsOption {
	return func(h *Animals) { h.loc = loc }
}

// WithNow overrides the clock used for export filenames.
func WithNow(now func() time.Time) AnimalsOption {
	return func(h *Animals) { h.now = now }
}

// NewAnimals creates the animal handlers.
func NewAnimals(svc AnimalService, opts ...AnimalsOption) *Animals {
	h := &Animals{svc: svc, loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type intakeRequest struct {
	JobID          string `json:"jobId"`
	Species        string `json:"species"`
	Subspecies     string `json:"subspecies"`
	Destination    string `json:"destination"`
	InchargePerson string `json:"inchargePerson"`
	InAt           string `json:"inAt"`
}

// Intake handles POST /api/v1/animals/in.
func (h *Animals) Intake(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req intakeRequest
	if !decode(w, r, &req) {
		return
	}
	inAt, err := parseInstant(req.InAt, h.loc)
	if err != nil {
		validationError(w, "inAt: "+err.Error())
		return
	}

	a, err := h.svc.Intake(r.Context(), animal.IntakeInput{
		JobID:          req.JobID,
		Species:        req.Species,
		Subspecies:     req.Subspecies,
		Destination:    models.Destination(req.Destination),
		InchargePerson: req.InchargePerson,
		InAt:           inAt,
	}, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Created(w, a)
}

// Get handles GET /api/v1/animals/{jobID}.
func (h *Animals) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, a)
}

type editRequest struct {
	JobID          *string `json:"jobId"`
	Species        *string `json:"species"`
	Subspecies     *string `json:"subspecies"`
	Destination    *string `json:"destination"`
	InchargePerson *string `json:"inchargePerson"`
	Remark         *string `json:"remark"`
	IsTreated      *bool   `json:"isTreated"`
}

// Edit handles PUT /api/v1/animals/{jobID}. Absent fields are left untouched.
func (h *Animals) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req editRequest
	if !decode(w, r, &req) {
		return
	}

	p := animal.Patch{
		JobID:          req.JobID,
		Species:        req.Species,
		Subspecies:     req.Subspecies,
		InchargePerson: req.InchargePerson,
		Remark:         req.Remark,
		IsTreated:      req.IsTreated,
	}
	if req.Destination != nil {
		d := models.Destination(*req.Destination)
		p.Destination = &d
	}

	a, err := h.svc.Edit(r.Context(), chi.URLParam(r, "jobID"), p, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, a)
}

type markOutRequest struct {
	OutAt         string `json:"outAt"`
	MarkOutType   string `json:"markOutType"`
	MarkOutReason string `json:"markOutReason"`
}

// MarkOut handles POST /api/v1/animals/out/{jobID}.
func (h *Animals) MarkOut(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req markOutRequest
	if !decode(w, r, &req) {
		return
	}
	outAt, err := parseInstant(req.OutAt, h.loc)
	if err != nil {
		validationError(w, "outAt: "+err.Error())
		return
	}

	a, err := h.svc.MarkOut(r.Context(), chi.URLParam(r, "jobID"), animal.MarkOutInput{
		OutAt:  outAt,
		Type:   models.MarkOutType(req.MarkOutType),
		Reason: req.MarkOutReason,
	}, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, a)
}

// Move handles POST /api/v1/animals/{jobID}/move.
func (h *Animals) Move(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Destination string `json:"destination"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Destination) == "" {
		validationError(w, "destination is required")
		return
	}

	a, err := h.svc.Move(r.Context(), chi.URLParam(r, "jobID"), models.Destination(req.Destination), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, a)
}

// SetRemark handles PUT /api/v1/animals/{jobID}/remark.
func (h *Animals) SetRemark(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Remark    string `json:"remark"`
		IsTreated bool   `json:"isTreated"`
	}
	if !decode(w, r, &req) {
		return
	}

	a, err := h.svc.SetRemark(r.Context(), chi.URLParam(r, "jobID"), req.Remark, req.IsTreated, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, a)
}

// Remove handles DELETE /api/v1/animals/{jobID}.
func (h *Animals) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), chi.URLParam(r, "jobID"), actor); err != nil {
		writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

// ListIn handles GET /api/v1/animals/in?q=.
func (h *Animals) ListIn(w http.ResponseWriter, r *http.Request) {
	animals, err := h.svc.ListIn(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeList(w, animals)
}

// ListOut handles GET /api/v1/animals/out?q=.
func (h *Animals) ListOut(w http.ResponseWriter, r *http.Request) {
	animals, err := h.svc.ListOut(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeList(w, animals)
}

// Search handles GET /api/v1/animals/logs. The date bounds are read from
// fromDate and toDate, with from and to accepted as aliases.
func (h *Animals) Search(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	c := query.Criteria{
		Q:           strings.TrimSpace(v.Get("q")),
		AnimalID:    strings.TrimSpace(v.Get("animalId")),
		Species:     strings.TrimSpace(v.Get("species")),
		Destination: strings.TrimSpace(v.Get("destination")),
		User:        strings.TrimSpace(v.Get("user")),
		Status:      models.Status(strings.TrimSpace(v.Get("status"))),
	}

	var err error
	if c.From, err = query.ParseBound(firstParam(v, "fromDate", "from"), false, h.loc); err != nil {
		validationError(w, "fromDate: "+err.Error())
		return
	}
	if c.To, err = query.ParseBound(firstParam(v, "toDate", "to"), true, h.loc); err != nil {
		validationError(w, "toDate: "+err.Error())
		return
	}

	animals, err := h.svc.Search(r.Context(), c)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeList(w, animals)
}

// firstParam returns the first non-empty value among the given query keys.
func firstParam(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}

// Stats handles GET /api/v1/animals/stats.
func (h *Animals) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.JSON(w, st)
}

// Export handles GET /api/v1/animals/export?startDate&endDate and streams a CSV download.
func (h *Animals) Export(w http.ResponseWriter, r *http.Request) {
	animals, ok := h.exportRows(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, animals); err != nil {
		slog.Error("render export", "error", err)
		internalError(w)
		return
	}
	response.Attachment(w, export.ContentType, export.Filename(h.now()), buf.Bytes())
}

// Archive handles POST /api/v1/animals/export/archive.
func (h *Animals) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		response.Error(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", archive.ErrDisabled.Error(), nil)
		return
	}
	animals, ok := h.exportRows(w, r)
	if !ok {
		return
	}

	res, err := h.archiver.Archive(r.Context(), animals, h.now())
	if err != nil {
		slog.Error("archive export", "error", err)
		response.Error(w, http.StatusBadGateway, "ARCHIVE_FAILED", "Failed to upload export archive", nil)
		return
	}
	actor, _ := mw.GetActor(r)
	slog.Info("export archived", "bucket", res.Bucket, "key", res.Key, "rows", res.Rows, "actor", actor)
	response.Created(w, res)
}

func (h *Animals) exportRows(w http.ResponseWriter, r *http.Request) ([]*models.Animal, bool) {
	v := r.URL.Query()
	start, end, err := export.ParseRange(v.Get("startDate"), v.Get("endDate"), h.loc)
	if err != nil {
		validationError(w, err.Error())
		return nil, false
	}
	animals, err := h.svc.Export(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return animals, true
}

func writeList(w http.ResponseWriter, animals []*models.Animal) {
	if animals == nil {
		animals = []*models.Animal{}
	}
	response.Collection(w, animals, len(animals))
}

// writeServiceError maps lifecycle errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *animal.ValidationError
	switch {
	case errors.As(err, &ve):
		validationError(w, ve.Message)
	case errors.Is(err, animal.ErrValidation):
		validationError(w, err.Error())
	case errors.Is(err, animal.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "An animal with this job id already exists", nil)
	case errors.Is(err, animal.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Animal not found", nil)
	case errors.Is(err, animal.ErrInvalidState):
		response.Error(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		slog.Error("animal operation failed", "error", err)
		internalError(w)
	}
}

func validationError(w http.ResponseWriter, msg string) {
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", msg, nil)
}

func internalError(w http.ResponseWriter) {
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := mw.GetActor(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing actor", nil)
	}
	return actor, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseInstant accepts RFC 3339 or a zone-less local date-time as sent by
// datetime-local form inputs. Empty input yields the zero time.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("must be RFC 3339 or YYYY-MM-DDTHH:MM")
}
