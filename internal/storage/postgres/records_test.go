package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/storage"
	"github.com/cory-johannsen/pokeduel/internal/storage/postgres"
	"github.com/cory-johannsen/pokeduel/internal/storage/storagetest"
	"github.com/cory-johannsen/pokeduel/internal/testutil"
)

func TestRecordStore_Contract(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)

	storagetest.Run(t, func(t *testing.T) storage.Store {
		pc.Reset(t)
		return postgres.NewRecordStore(pc.RawPool, zap.NewNop())
	})
}

func TestPool_HealthNeedsMigrations(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	err := pc.Pool.Health(ctx, 5*time.Second)
	require.Error(t, err, "battle_records is missing before migrations")
	assert.Contains(t, err.Error(), "battle_records")

	pc.ApplyMigrations(t)
	assert.NoError(t, pc.Pool.Health(ctx, 5*time.Second))
}
