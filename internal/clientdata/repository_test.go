package clientdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/optiwealth/internal/database"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileCache, Name: "client_data"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Migrate(context.Background())
	require.NoError(t, err)

	return db.Conn()
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := []domain.PriceBar{
		{Date: day, Open: 100, High: 102, Low: 99, Close: 101, Volume: 1200},
		{Date: day.AddDate(0, 0, 1), Open: 101, High: 103, Low: 100, Close: 102.5, Volume: 900},
	}

	require.NoError(t, repo.Store(ctx, TablePriceHistory, "ITC.NS", bars, time.Hour))

	var got []domain.PriceBar
	found, err := repo.GetIfFresh(ctx, TablePriceHistory, "ITC.NS", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 2)
	assert.Equal(t, 102.5, got[1].Close)
	assert.Equal(t, int64(900), got[1].Volume)
	assert.True(t, got[0].Date.Equal(day))
}

func TestGetIfFresh_MissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var got []domain.PriceBar
	found, err := repo.GetIfFresh(context.Background(), TablePriceHistory, "NOPE", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiredEntries(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableQuotes, "BEL.NS", domain.Quote{Symbol: "BEL.NS", CurrentPrice: 422.05}, -time.Minute))

	var q domain.Quote
	found, err := repo.GetIfFresh(ctx, TableQuotes, "BEL.NS", &q)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are not fresh")

	found, err = repo.Get(ctx, TableQuotes, "BEL.NS", &q)
	require.NoError(t, err)
	assert.True(t, found, "stale entries remain readable")
	assert.Equal(t, 422.05, q.CurrentPrice)
}

func TestInvalidTable(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	assert.Error(t, repo.Store(ctx, "users; DROP TABLE quotes", "k", 1, time.Hour))
	_, err := repo.Get(ctx, "unknown", "k", new(int))
	assert.Error(t, err)
	_, err = repo.DeleteExpired(ctx, "unknown")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableSecurityMetadata, "ITC.NS", map[string]string{"sector": "FMCG"}, time.Hour))
	require.NoError(t, repo.Delete(ctx, TableSecurityMetadata, "ITC.NS"))

	var meta map[string]string
	found, err := repo.Get(ctx, TableSecurityMetadata, "ITC.NS", &meta)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for _, table := range AllTables {
		require.NoError(t, repo.Store(ctx, table, "stale", 1, -time.Hour))
		require.NoError(t, repo.Store(ctx, table, "fresh", 1, time.Hour))
	}

	results, err := repo.DeleteAllExpired(ctx)
	require.NoError(t, err)

	for _, table := range AllTables {
		assert.Equal(t, int64(1), results[table], table)

		var v int
		found, err := repo.Get(ctx, table, "fresh", &v)
		require.NoError(t, err)
		assert.True(t, found)
	}
}
