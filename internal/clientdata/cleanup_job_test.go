package clientdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())
	assert.Equal(t, "market_data_cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	job := NewCleanupJob(repo, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TablePriceHistory, "expired", []float64{1}, -time.Hour))
	require.NoError(t, repo.Store(ctx, TablePriceHistory, "fresh", []float64{1}, time.Hour))
	require.NoError(t, repo.Store(ctx, TableQuotes, "expired", 1.0, -time.Hour))

	require.NoError(t, job.Run())

	var v []float64
	found, err := repo.Get(ctx, TablePriceHistory, "expired", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.Get(ctx, TablePriceHistory, "fresh", &v)
	require.NoError(t, err)
	assert.True(t, found)

	var q float64
	found, err = repo.Get(ctx, TableQuotes, "expired", &q)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCleanupJobRun_ContinuesPastBrokenTable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableSecurityMetadata, "expired", "ITC", -time.Hour))
	_, err := db.ExecContext(ctx, "DROP TABLE "+TableQuotes)
	require.NoError(t, err)

	err = job.RunContext(ctx)
	assert.ErrorContains(t, err, TableQuotes)

	var name string
	found, err := repo.Get(ctx, TableSecurityMetadata, "expired", &name)
	require.NoError(t, err)
	assert.False(t, found, "tables after the broken one are still evicted")
}
