package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFromYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
app:
  port: "9000"
  jwt_secret: s3cret
  site_name: Daily Planet
  admin_usernames: [perry]
database:
  driver: postgres
  name: planet
digest:
  enabled: true
  interval: 24h
`)

	c, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "9000", c.App.Port)
	assert.Equal(t, "s3cret", c.App.JWTSecret)
	assert.Equal(t, "Daily Planet", c.App.SiteName)
	assert.Equal(t, "http://localhost:9000", c.App.SiteURL)
	assert.Equal(t, []string{"perry"}, c.App.AdminUsernames)
	assert.Equal(t, "postgres", c.Database.Driver)
	assert.Equal(t, "5432", c.Database.Port)
	assert.Equal(t, "planet", c.Database.Name)
	assert.True(t, c.Digest.Enabled)
	assert.Equal(t, 24*time.Hour, c.Digest.Every())
}

func TestLoadFromJSONAndDefaults(t *testing.T) {
	p := writeFile(t, "config.json", `{"app": {"jwt_secret": "x", "site_url": "https://news.example.com/"}}`)

	c, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "8080", c.App.Port)
	assert.Equal(t, "https://news.example.com", c.App.SiteURL)
	assert.Equal(t, 10, c.App.PageSize)
	assert.Equal(t, []string{"*"}, c.App.AllowedOrigins)
	assert.Equal(t, "mysql", c.Database.Driver)
	assert.Equal(t, "3306", c.Database.Port)
	assert.Equal(t, 6379, c.Redis.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 7*24*time.Hour, c.Digest.Every())
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.yaml", "app:\n  jwt_secret: from-file\n  page_size: 5\n")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PAGE_SIZE", "20")
	t.Setenv("ADMIN_USERNAMES", "lois,clark")

	c, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.App.JWTSecret)
	assert.Equal(t, 20, c.App.PageSize)
	assert.Equal(t, []string{"lois", "clark"}, c.App.AdminUsernames)
}

func TestLoadFromDerivesDefaultsFromEnv(t *testing.T) {
	p := writeFile(t, "config.yaml", "app:\n  jwt_secret: x\n")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("APP_PORT", "9000")

	c, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "postgres", c.Database.Driver)
	assert.Equal(t, "5432", c.Database.Port)
	assert.Equal(t, "9000", c.App.Port)
	assert.Equal(t, "http://localhost:9000", c.App.SiteURL)
}

func TestLoadFromEnvPortWinsOverDriverDefault(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "6432")

	c, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "6432", c.Database.Port)
}

func TestLoadFromSkipsMissingFiles(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-only")

	c, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", c.App.JWTSecret)
}

func TestLoadFromRequiresSecret(t *testing.T) {
	p := writeFile(t, "config.yaml", "app:\n  port: \"8000\"\n")

	_, err := LoadFrom(p)
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoadFromRejectsMalformedFile(t *testing.T) {
	p := writeFile(t, "config.json", "{not json")

	_, err := LoadFrom(p)
	assert.Error(t, err)
}

func TestDigestEveryFallsBackOnGarbage(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, DigestSection{Interval: "weekly"}.Every())
	assert.Equal(t, 7*24*time.Hour, DigestSection{Interval: "-1h"}.Every())
	assert.Equal(t, time.Hour, DigestSection{Interval: " 1h "}.Every())
}

func TestOpenDatabaseSQLite(t *testing.T) {
	db, err := OpenDatabase(DatabaseSection{Driver: "sqlite", URI: ":memory:"}, "silent")
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestSQLiteLowerFoldsUnicode(t *testing.T) {
	db, err := OpenDatabase(DatabaseSection{Driver: "sqlite", URI: ":memory:"}, "silent")
	require.NoError(t, err)

	var lowered string
	require.NoError(t, db.Raw("SELECT LOWER(?)", "Спорт DERBY").Scan(&lowered).Error)
	assert.Equal(t, "спорт derby", lowered)

	var matched int
	require.NoError(t, db.Raw("SELECT CASE WHEN LOWER(?) LIKE ? THEN 1 ELSE 0 END", "Спорт сегодня", "%спорт%").Scan(&matched).Error)
	assert.Equal(t, 1, matched)

	var fallback string
	require.NoError(t, db.Raw("SELECT COALESCE(LOWER(NULL), 'none')").Scan(&fallback).Error)
	assert.Equal(t, "none", fallback)
}

func TestOpenDatabaseUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(DatabaseSection{Driver: "oracle"}, "silent")
	assert.Error(t, err)
}

func TestMySQLDSNFromParts(t *testing.T) {
	d, err := dialectorFor(DatabaseSection{Driver: "mysql", Host: "db", Port: "3307", User: "u", Password: "p", Name: "news"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())
}
