package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points CONFIG_FILE at a missing file so a developer's /app/.env
// cannot leak into the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{
		"GITHUB_TOKEN", "GITHUB_API_URL", "SEARCH_DAYS", "MIN_STARS", "LANGUAGE",
		"TOPICS", "TOP_N", "SCHEDULE", "LOG_LEVEL", "POSTGRES_HOST", "POSTGRES_PORT",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg := NewConfig()
	require.NoError(t, cfg.Load())

	assert.Empty(t, cfg.GitHubToken)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.Equal(t, 7, cfg.SearchDays)
	assert.Equal(t, 300, cfg.MinStars)
	assert.Equal(t, 20, cfg.TopN)
	assert.Empty(t, cfg.Language)
	assert.Empty(t, cfg.Topics)
	assert.Empty(t, cfg.Schedule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SEARCH_DAYS", "1")
	t.Setenv("MIN_STARS", "50")
	t.Setenv("LANGUAGE", "Python")
	t.Setenv("TOPICS", "ai, llm,,gpt ")
	t.Setenv("TOP_N", "10")
	t.Setenv("SCHEDULE", "0 8 * * *")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "hot")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "hotrepos")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")

	cfg := NewConfig()
	require.NoError(t, cfg.Load())

	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, 1, cfg.SearchDays)
	assert.Equal(t, 50, cfg.MinStars)
	assert.Equal(t, "Python", cfg.Language)
	assert.Equal(t, []string{"ai", "llm", "gpt"}, cfg.Topics)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, "0 8 * * *", cfg.Schedule)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t,
		"postgres://hot:secret@db:5432/hotrepos?sslmode=disable",
		cfg.Database.DSN())
}

func TestDSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     "5432",
		User:     "hot repos",
		Password: `p@ss word'"/:?#`,
		Name:     "hotrepos",
	}

	u, err := url.Parse(d.DSN())
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/hotrepos", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "hot repos", u.User.Username())
	password, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, `p@ss word'"/:?#`, password)
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MIN_STARS=1000\nLANGUAGE=Rust\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg := NewConfig()
	require.NoError(t, cfg.Load())

	assert.Equal(t, 1000, cfg.MinStars)
	assert.Equal(t, "Rust", cfg.Language)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero days", key: "SEARCH_DAYS", value: "0"},
		{name: "negative stars", key: "MIN_STARS", value: "-5"},
		{name: "zero limit", key: "TOP_N", value: "0"},
		{name: "bad schedule", key: "SCHEDULE", value: "every day"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tc.key, tc.value)

			err := NewConfig().Load()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}
