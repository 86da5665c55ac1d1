package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

// MemoryStore is an in-process Store used for tests and the memory driver.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	animals map[uuid.UUID]*models.Animal
	keys    map[uuid.UUID]*models.APIKey
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		animals: make(map[uuid.UUID]*models.Animal),
		keys:    make(map[uuid.UUID]*models.APIKey),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// --- Animals ---

func (s *MemoryStore) CreateAnimal(_ context.Context, a *models.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobIDTaken(a.JobID, uuid.Nil) {
		return ErrDuplicateKey
	}
	if _, ok := s.animals[a.ID]; ok {
		return ErrDuplicateKey
	}
	s.animals[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) GetAnimalByJobID(_ context.Context, jobID string) (*models.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.animals {
		if a.JobID == jobID {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateAnimal(_ context.Context, a *models.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.animals[a.ID]; !ok {
		return ErrNotFound
	}
	if s.jobIDTaken(a.JobID, a.ID) {
		return ErrDuplicateKey
	}
	s.animals[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) DeleteAnimal(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.animals {
		if a.JobID == jobID {
			delete(s.animals, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) FindAnimals(_ context.Context, q query.Query) ([]*models.Animal, error) {
	s.mu.RLock()
	matched := []*models.Animal{}
	for _, a := range s.animals {
		if q.Where.Match(a) {
			matched = append(matched, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if q.SortBy != "" {
			ti := query.SortValue(matched[i], q.SortBy)
			tj := query.SortValue(matched[j], q.SortBy)
			if !ti.Equal(tj) {
				if q.Desc {
					return ti.After(tj)
				}
				return ti.Before(tj)
			}
		}
		return matched[i].JobID < matched[j].JobID
	})
	return matched, nil
}

func (s *MemoryStore) CountAnimals(_ context.Context, where query.Predicate) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.animals {
		if where.Match(a) {
			n++
		}
	}
	return n, nil
}

// jobIDTaken reports whether another record (not self) already uses jobID. Caller holds mu.
func (s *MemoryStore) jobIDTaken(jobID string, self uuid.UUID) bool {
	for id, a := range s.animals {
		if id != self && a.JobID == jobID {
			return true
		}
	}
	return false
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			keys = append(keys, cloneKey(k))
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key.ID]; ok {
		return ErrDuplicateKey
	}
	s.keys[key.ID] = cloneKey(key)
	return nil
}

func (s *MemoryStore) ListAPIKeys(context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			keys = append(keys, cloneKey(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	k.UpdatedAt = now
	return nil
}

func cloneKey(k *models.APIKey) *models.APIKey {
	c := *k
	c.Scopes = append([]string(nil), k.Scopes...)
	return &c
}
