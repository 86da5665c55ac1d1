package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func newAnimal(jobID, species string, dest models.Destination, inAt time.Time, inBy string) *models.Animal {
	return &models.Animal{
		ID:             uuid.New(),
		JobID:          jobID,
		Species:        species,
		Status:         models.StatusIn,
		Destination:    dest,
		InchargePerson: "Raj",
		InAt:           inAt,
		InBy:           inBy,
		CreatedAt:      inAt,
		UpdatedAt:      inAt,
	}
}

func markOut(a *models.Animal, at time.Time, by string, typ models.MarkOutType, reason string) {
	a.Status = models.StatusOut
	a.OutAt = &at
	a.OutBy = by
	a.MarkOutType = typ
	a.MarkOutReason = reason
	a.UpdatedAt = at
}

func jobIDs(animals []*models.Animal) []string {
	ids := make([]string, 0, len(animals))
	for _, a := range animals {
		ids = append(ids, a.JobID)
	}
	return ids
}

// runStoreContract exercises behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newAnimal("A1", "Dog", models.DestinationTreatmentCenter, ts("2024-01-01T10:00:00Z"), "alice")
		a.Subspecies = "Labrador"
		require.NoError(t, s.CreateAnimal(ctx, a))

		got, err := s.GetAnimalByJobID(ctx, "A1")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, "Dog", got.Species)
		assert.Equal(t, "Labrador", got.Subspecies)
		assert.Equal(t, models.StatusIn, got.Status)
		assert.Equal(t, models.DestinationTreatmentCenter, got.Destination)
		assert.Equal(t, "alice", got.InBy)
		assert.True(t, a.InAt.Equal(got.InAt))
		assert.Nil(t, got.OutAt)
		assert.Empty(t, got.Remark)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAnimalByJobID(context.Background(), "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DuplicateJobID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateAnimal(ctx, newAnimal("A1", "Dog", models.DestinationOther, ts("2024-01-01T10:00:00Z"), "alice")))
		err := s.CreateAnimal(ctx, newAnimal("A1", "Cat", models.DestinationOther, ts("2024-01-01T11:00:00Z"), "bob"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)

		// Job IDs are case-sensitive.
		require.NoError(t, s.CreateAnimal(ctx, newAnimal("a1", "Cat", models.DestinationOther, ts("2024-01-01T11:00:00Z"), "bob")))
	})

	t.Run("UpdateRenameAndMarkOut", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newAnimal("A1", "Dog", models.DestinationTreatmentCenter, ts("2024-01-01T10:00:00Z"), "alice")
		require.NoError(t, s.CreateAnimal(ctx, a))

		a.JobID = "A1-renamed"
		markOut(a, ts("2024-01-02T09:00:00Z"), "bob", models.MarkOutOther, "transferred")
		require.NoError(t, s.UpdateAnimal(ctx, a))

		_, err := s.GetAnimalByJobID(ctx, "A1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetAnimalByJobID(ctx, "A1-renamed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusOut, got.Status)
		require.NotNil(t, got.OutAt)
		assert.True(t, ts("2024-01-02T09:00:00Z").Equal(*got.OutAt))
		assert.Equal(t, "bob", got.OutBy)
		assert.Equal(t, models.Disposition{Type: models.MarkOutOther, Reason: "transferred"}, got.Disposition())
	})

	t.Run("UpdateOntoTakenJobID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateAnimal(ctx, newAnimal("A1", "Dog", models.DestinationOther, ts("2024-01-01T10:00:00Z"), "alice")))
		b := newAnimal("B2", "Cat", models.DestinationOther, ts("2024-01-01T11:00:00Z"), "alice")
		require.NoError(t, s.CreateAnimal(ctx, b))

		b.JobID = "A1"
		assert.ErrorIs(t, s.UpdateAnimal(ctx, b), store.ErrDuplicateKey)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		a := newAnimal("ghost", "Dog", models.DestinationOther, ts("2024-01-01T10:00:00Z"), "alice")
		assert.ErrorIs(t, s.UpdateAnimal(context.Background(), a), store.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateAnimal(ctx, newAnimal("A1", "Dog", models.DestinationOther, ts("2024-01-01T10:00:00Z"), "alice")))
		require.NoError(t, s.DeleteAnimal(ctx, "A1"))
		assert.ErrorIs(t, s.DeleteAnimal(ctx, "A1"), store.ErrNotFound)

		_, err := s.GetAnimalByJobID(ctx, "A1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("FindAndCount", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedFixtures(t, s)

		var b query.Builder

		in, err := s.FindAnimals(ctx, b.CurrentlyIn(""))
		require.NoError(t, err)
		assert.Equal(t, []string{"C3", "A1"}, jobIDs(in))

		out, err := s.FindAnimals(ctx, b.RecentlyOut(""))
		require.NoError(t, err)
		assert.Equal(t, []string{"B2", "PIN-7"}, jobIDs(out))

		// Quick search is case-insensitive and spans inBy/outBy.
		hits, err := s.FindAnimals(ctx, b.AuditLog(query.Criteria{Q: "ALICE"}))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"A1", "PIN-7"}, jobIDs(hits))

		// Status shortcut in the audit log.
		hits, err = s.FindAnimals(ctx, b.AuditLog(query.Criteria{Q: "out"}))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"B2", "PIN-7"}, jobIDs(hits))

		// Date range matches inAt OR outAt.
		from := ts("2024-01-05T00:00:00Z")
		to := ts("2024-01-05T23:59:59Z")
		hits, err = s.FindAnimals(ctx, b.AuditLog(query.Criteria{From: &from, To: &to}))
		require.NoError(t, err)
		assert.Equal(t, []string{"B2"}, jobIDs(hits))

		// LIKE metacharacters are matched literally.
		hits, err = s.FindAnimals(ctx, b.AuditLog(query.Criteria{AnimalID: "%"}))
		require.NoError(t, err)
		assert.Empty(t, hits)
		hits, err = s.FindAnimals(ctx, b.AuditLog(query.Criteria{AnimalID: "n-"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"PIN-7"}, jobIDs(hits))

		total, err := s.CountAnimals(ctx, query.All())
		require.NoError(t, err)
		assert.Equal(t, 4, total)

		rehabIn, err := s.CountAnimals(ctx, query.And(
			query.Equals(query.FieldStatus, string(models.StatusIn)),
			query.Equals(query.FieldDestination, string(models.DestinationRehabCenter)),
		))
		require.NoError(t, err)
		assert.Equal(t, 1, rehabIn)
	})

	t.Run("ContainsFoldsUnicodeCase", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newAnimal("U1", "Évêque", models.DestinationOther, ts("2024-01-01T10:00:00Z"), "Ärzte")
		require.NoError(t, s.CreateAnimal(ctx, a))
		require.NoError(t, s.CreateAnimal(ctx, newAnimal("U2", "Dog", models.DestinationOther, ts("2024-01-01T11:00:00Z"), "alice")))

		for _, q := range []string{"évêque", "ÉVÊQUE", "ärz"} {
			got, err := s.FindAnimals(ctx, query.Builder{}.CurrentlyIn(q))
			require.NoError(t, err)
			assert.Equal(t, []string{"U1"}, jobIDs(got), "q=%s", q)
		}
	})

	t.Run("FindReturnsEmptySlice", func(t *testing.T) {
		s := newStore(t)
		got, err := s.FindAnimals(context.Background(), query.Builder{}.CurrentlyIn(""))
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("APIKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Microsecond)

		key := &models.APIKey{
			ID:        uuid.New(),
			Name:      "alice",
			KeyHash:   "$2a$10$abcdefghijklmnopqrstuv",
			KeyPrefix: "st_abcde",
			Scopes:    []string{models.ScopeAdmin},
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateAPIKey(ctx, key))

		found, err := s.GetAPIKeyByPrefix(ctx, "st_abcde")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "alice", found[0].Name)
		assert.True(t, found[0].HasScope(models.ScopeAdmin))

		require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
		listed, err := s.ListAPIKeys(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.NotNil(t, listed[0].LastUsedAt)

		require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
		assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)

		found, err = s.GetAPIKeyByPrefix(ctx, "st_abcde")
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

// seedFixtures inserts four records:
// A1 Dog IN (alice), B2 Cat OUT 01-05 (bob->carol), PIN-7 Bird OUT 01-03 (dave->alice), C3 Turtle IN Rehab (erin).
func seedFixtures(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	a1 := newAnimal("A1", "Dog", models.DestinationTreatmentCenter, ts("2024-01-01T10:00:00Z"), "alice")
	a1.Subspecies = "Labrador"

	b2 := newAnimal("B2", "Cat", models.DestinationTreatmentCenter, ts("2024-01-02T10:00:00Z"), "bob")
	markOut(b2, ts("2024-01-05T10:00:00Z"), "carol", models.MarkOutRelease, "")

	pin := newAnimal("PIN-7", "Bird", models.DestinationOther, ts("2024-01-02T12:00:00Z"), "dave")
	pin.Subspecies = "Kite"
	markOut(pin, ts("2024-01-03T12:00:00Z"), "alice", models.MarkOutDead, "")

	c3 := newAnimal("C3", "Turtle", models.DestinationRehabCenter, ts("2024-02-01T08:00:00Z"), "erin")

	for _, a := range []*models.Animal{a1, b2, pin, c3} {
		require.NoError(t, s.CreateAnimal(ctx, a))
	}
}
