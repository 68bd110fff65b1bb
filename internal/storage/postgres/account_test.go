package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/pokeduel/internal/auth"
	"github.com/cory-johannsen/pokeduel/internal/storage/postgres"
	"github.com/cory-johannsen/pokeduel/internal/testutil"
)

func TestAccountRepository_CreateAuthenticate(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewAccountRepository(pc.RawPool)
	ctx := context.Background()

	acct, err := repo.Create(ctx, "ash", "pikachu1")
	require.NoError(t, err)
	assert.Len(t, acct.UID, 36)

	_, err = repo.Create(ctx, "ash", "again")
	assert.ErrorIs(t, err, auth.ErrAccountExists)

	got, err := repo.Authenticate(ctx, "ash", "pikachu1")
	require.NoError(t, err)
	assert.Equal(t, acct.UID, got.UID)

	_, err = repo.Authenticate(ctx, "ash", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = repo.Authenticate(ctx, "brock", "x")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}
