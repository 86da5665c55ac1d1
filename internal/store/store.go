package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// AnimalStore is durable keyed storage for animal records. Every backend enforces
// job_id uniqueness itself; callers treat ErrDuplicateKey from any write as authoritative.
type AnimalStore interface {
	CreateAnimal(ctx context.Context, a *models.Animal) error
	GetAnimalByJobID(ctx context.Context, jobID string) (*models.Animal, error)
	// UpdateAnimal replaces the stored record with the same ID. Last write wins.
	UpdateAnimal(ctx context.Context, a *models.Animal) error
	DeleteAnimal(ctx context.Context, jobID string) error
	FindAnimals(ctx context.Context, q query.Query) ([]*models.Animal, error)
	CountAnimals(ctx context.Context, where query.Predicate) (int, error)
}

// KeyStore persists API keys used for actor identity and privilege checks.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
	AnimalStore
	KeyStore
}
