//go:build integration

// MySQL integration tests run against a disposable container.
// Run with: go test -tags=integration ./internal/datastore/...
package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/iconforge/internal/logger"
)

func setupMySQLManager(t *testing.T) *MySQLManager {
	t.Helper()
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("iconforge_test"),
		tcmysql.WithUsername("iconforge"),
		tcmysql.WithPassword("iconforge"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start MySQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	mgr, err := NewMySQLManager(&MySQLConfig{
		Host:     host,
		Port:     port.Port(),
		Username: "iconforge",
		Password: "iconforge",
		Database: "iconforge_test",
	}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return mgr
}

func TestMySQLManager_InitializeAndRepository(t *testing.T) {
	mgr := setupMySQLManager(t)
	ctx := t.Context()

	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.Initialize(), "initialize must be idempotent")
	assert.True(t, mgr.IsMySQL())
	assert.Contains(t, mgr.Path(), "/iconforge_test")
	assert.True(t, mgr.DB().Migrator().HasIndex(&ImageGeneration{}, promptIndexName))

	repo := NewGenerationRepository(mgr.DB())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Create(ctx, newGeneration("rocket", StatusSuccess, "alice", now, 1500)))
	require.NoError(t, repo.Create(ctx, newGeneration("planet", StatusFailed, "alice", now.Add(time.Second), 20)))

	gens, err := repo.List(ctx, GenerationFilters{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, "planet", gens[0].Prompt)

	stats, err := repo.Stats(ctx, GenerationFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Successful)
	assert.InDelta(t, 1500.0, stats.AverageGenerationTimeMs, 0.001)
}
