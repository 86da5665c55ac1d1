package apikey_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerate(t *testing.T) {
	raw, hash, err := apikey.Generate(bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, apikey.Prefix))
	assert.Len(t, raw, len(apikey.Prefix)+48)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)))

	other, _, err := apikey.Generate(bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestManager_CreateListRevoke(t *testing.T) {
	st := store.NewMemoryStore()
	m := apikey.NewManager(st, bcrypt.MinCost)
	ctx := context.Background()

	created, err := m.Create(ctx, " alice ", []string{"admin", ""})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Key.Name)
	assert.Equal(t, []string{models.ScopeAdmin}, created.Key.Scopes)
	assert.Equal(t, created.Raw[:apikey.PrefixLen], created.Key.KeyPrefix)

	found, err := st.GetAPIKeyByPrefix(ctx, created.Key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(found[0].KeyHash), []byte(created.Raw)))

	keys, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, m.Revoke(ctx, created.Key.ID))
	assert.ErrorIs(t, m.Revoke(ctx, created.Key.ID), apikey.ErrNotFound)

	keys, err = m.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestManager_CreateValidation(t *testing.T) {
	m := apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost)

	_, err := m.Create(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, apikey.ErrInvalidName)

	_, err = m.Create(context.Background(), "bob", []string{"root"})
	assert.ErrorIs(t, err, apikey.ErrInvalidScope)
}

func TestManager_RevokeUnknown(t *testing.T) {
	m := apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost)
	assert.ErrorIs(t, m.Revoke(context.Background(), uuid.New()), apikey.ErrNotFound)
}
