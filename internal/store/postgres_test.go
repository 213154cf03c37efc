package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestPostgres runs against TEST_DATABASE_URL and is skipped without it.
// The database should be empty; its tables are truncated before the run.
func TestPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s, err := NewPostgres(pool)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE sources, merges, merge_sources, settings`)
	require.NoError(t, err)

	testStore(t, s)
}
