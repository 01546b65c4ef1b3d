package infrastructure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

func setupTestRepo(t *testing.T) (*SQLiteRunRepository, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "repo-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewSQLiteRunRepository(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func sampleRun(district string, started time.Time) *domain.Run {
	stats := domain.NewBatchStats(10)
	stats.StartTime = started
	stats.EndTime = started.Add(time.Minute)
	stats.Success = 7
	stats.Failed = 1
	stats.Empty = 2
	stats.BytesDownloaded = 4096
	return domain.NewRun(district, stats)
}

func TestSQLiteRunRepository_CreateAndFindRecent(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, repo.Create(sampleRun("MAPLE", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(sampleRun("OAK", now.Add(-1*time.Hour))))
	require.NoError(t, repo.Create(sampleRun("MAPLE", now)))

	runs, err := repo.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	// Newest first
	assert.Equal(t, "MAPLE", runs[0].District)
	assert.Equal(t, "OAK", runs[1].District)
}

func TestSQLiteRunRepository_FindRecentHonorsLimit(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(sampleRun("MAPLE", now.Add(time.Duration(-i)*time.Hour))))
	}

	runs, err := repo.FindRecent(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLiteRunRepository_FindByDistrict(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, repo.Create(sampleRun("MAPLE", now)))
	require.NoError(t, repo.Create(sampleRun("OAK", now)))

	runs, err := repo.FindByDistrict("MAPLE", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "MAPLE", runs[0].District)
}

func TestSQLiteRunRepository_GetTotals(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, repo.Create(sampleRun("MAPLE", now)))
	require.NoError(t, repo.Create(sampleRun("OAK", now)))

	totals, err := repo.GetTotals()
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Runs)
	assert.Equal(t, int64(14), totals.Success)
	assert.Equal(t, int64(2), totals.Failed)
	assert.Equal(t, int64(4), totals.Empty)
	assert.Equal(t, int64(8192), totals.Bytes)
}

func TestSQLiteRunRepository_GetTotalsEmpty(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	totals, err := repo.GetTotals()
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Runs)
	assert.Equal(t, int64(0), totals.Bytes)
}
