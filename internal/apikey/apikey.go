// Package apikey issues, lists and revokes the bearer keys that identify actors.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// Prefix marks sheltertrack keys.
	Prefix = "st_"
	// PrefixLen is how many leading characters are stored in clear for lookup.
	PrefixLen = 8
)

var (
	ErrInvalidName  = errors.New("key name is required")
	ErrInvalidScope = errors.New("unknown scope")
	ErrNotFound     = errors.New("api key not found")
)

var knownScopes = map[string]bool{
	models.ScopeAdmin: true,
}

// Generate returns a new raw key and its bcrypt hash.
func Generate(cost int) (raw, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	raw = Prefix + hex.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", "", fmt.Errorf("hash key: %w", err)
	}
	return raw, string(h), nil
}

// Created is returned once at creation; Raw is never retrievable again.
type Created struct {
	Key *models.APIKey `json:"key"`
	Raw string         `json:"raw_key"`
}

// Manager wraps a KeyStore with key issuance rules.
type Manager struct {
	store store.KeyStore
	cost  int
}

// NewManager creates a Manager. A cost of 0 uses bcrypt.DefaultCost.
func NewManager(s store.KeyStore, cost int) *Manager {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Manager{store: s, cost: cost}
}

// Create issues a key for the named actor.
func (m *Manager) Create(ctx context.Context, name string, scopes []string) (*Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	clean := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !knownScopes[s] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, s)
		}
		clean = append(clean, s)
	}

	raw, hash, err := Generate(m.cost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: raw[:PrefixLen],
		Scopes:    clean,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	slog.Info("api key created", "key_id", key.ID, "name", name, "scopes", clean)
	return &Created{Key: key, Raw: raw}, nil
}

// List returns active keys, newest first.
func (m *Manager) List(ctx context.Context) ([]*models.APIKey, error) {
	keys, err := m.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	return keys, nil
}

// Revoke soft-deletes a key.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := m.store.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("revoke api key: %w", err)
	}
	slog.Info("api key revoked", "key_id", id)
	return nil
}
