package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/iconforge/internal/buildinfo"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// testConfig writes a config file that keeps the database inside a temp dir
func testConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "data", "iconforge.sqlite")
	configPath = filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`logging:
  default_level: error
  console:
    enabled: true
    level: error
sqlite:
  path: %s
`, dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dbPath
}

// execute runs the root command with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("REPLICATE_API_TOKEN", "")

	root := RootCommand(buildinfo.NewContext("1.2.3", "2026-10-01"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func seedGenerations(t *testing.T, dbPath string, records ...*datastore.ImageGeneration) {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(dbPath, logger.NewNopLogger())
	require.NoError(t, err)
	defer func() { _ = mgr.Close() }()
	require.NoError(t, mgr.Initialize())

	repo := datastore.NewGenerationRepository(mgr.DB())
	for _, r := range records {
		require.NoError(t, repo.Create(t.Context(), r))
	}
}

func record(prompt, status, userID string, createdAt time.Time) *datastore.ImageGeneration {
	return &datastore.ImageGeneration{
		Prompt:           prompt,
		Size:             "1024x1024",
		Quality:          "hd",
		Style:            "vivid",
		ImageURL:         "https://replicate.delivery/" + prompt + ".png",
		UserID:           datastore.StringPtr(userID),
		Status:           status,
		GenerationTimeMs: 1500,
		CreatedAt:        createdAt,
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "iconforge 1.2.3 (built 2026-10-01)\n", out)
}

func TestConfigCommand(t *testing.T) {
	configPath, dbPath := testConfig(t)

	out, err := execute(t, "--config", configPath, "config")
	require.NoError(t, err)

	assert.Contains(t, out, "# config file: "+configPath)
	assert.Contains(t, out, "port: 3000")
	assert.Contains(t, out, dbPath)
	assert.NotContains(t, out, "apitoken")
}

func TestConfigCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestMigrateCommand(t *testing.T) {
	configPath, dbPath := testConfig(t)

	out, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "SQLite database schema is up to date")
	assert.FileExists(t, dbPath)
}

func TestGenerationsCommands(t *testing.T) {
	configPath, dbPath := testConfig(t)

	now := time.Now().UTC()
	older := record("rocket", datastore.StatusSuccess, "user-1", now.Add(-time.Hour))
	newer := record("planet", datastore.StatusFailed, "user-2", now)
	seedGenerations(t, dbPath, older, newer)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "generations", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "ID")
		assert.Contains(t, out, older.ID)
		assert.Contains(t, out, newer.ID)
		assert.Less(t, bytes.Index([]byte(out), []byte("planet")), bytes.Index([]byte(out), []byte("rocket")))
		assert.Contains(t, out, "Page 1 of 1, 2 records")
	})

	t.Run("list filtered by status", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "generations", "list", "--status", "success")
		require.NoError(t, err)
		assert.Contains(t, out, older.ID)
		assert.NotContains(t, out, newer.ID)
	})

	t.Run("list rejects bad page size", func(t *testing.T) {
		_, err := execute(t, "--config", configPath, "generations", "list", "--page-size", "101")
		require.Error(t, err)
		assert.Equal(t, "Page size must be between 1 and 100", err.Error())
	})

	t.Run("get", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "generations", "get", older.ID)
		require.NoError(t, err)
		assert.Contains(t, out, `"prompt": "rocket"`)
		assert.Contains(t, out, `"userId": "user-1"`)
	})

	t.Run("stats", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "generations", "stats")
		require.NoError(t, err)
		assert.Regexp(t, `Total\s+2`, out)
		assert.Regexp(t, `Successful\s+1`, out)
		assert.Regexp(t, `Failed\s+1`, out)
	})

	t.Run("delete", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "generations", "delete", newer.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "Generation deleted successfully")

		_, err = execute(t, "--config", configPath, "generations", "get", newer.ID)
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestGenerateCommand_RequiresToken(t *testing.T) {
	configPath, _ := testConfig(t)

	_, err := execute(t, "--config", configPath, "generate", "rocket")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDebugFlagOverridesConfig(t *testing.T) {
	configPath, _ := testConfig(t)

	out, err := execute(t, "--config", configPath, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "debug: false")

	out, err = execute(t, "--config", configPath, "--debug", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "debug: true")
}
