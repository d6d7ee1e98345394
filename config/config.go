package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppConfig holds file and environment driven configuration values.
// Secrets never have defaults in code and must come from the config file or the environment.
type AppConfig struct {
	App      AppSection      `json:"app" yaml:"app"`
	Gin      GinSection      `json:"gin" yaml:"gin"`
	Database DatabaseSection `json:"database" yaml:"database"`
	Redis    RedisSection    `json:"redis" yaml:"redis"`
	OAuth    OAuthSection    `json:"oauth" yaml:"oauth"`
	SMTP     SMTPSection     `json:"smtp" yaml:"smtp"`
	Log      LogSection      `json:"log" yaml:"log"`
	Digest   DigestSection   `json:"digest" yaml:"digest"`
}

type AppSection struct {
	Port               string   `json:"port" yaml:"port" env:"APP_PORT"`
	JWTSecret          string   `json:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET"`
	SiteURL            string   `json:"site_url" yaml:"site_url" env:"SITE_URL"`
	SiteName           string   `json:"site_name" yaml:"site_name" env:"SITE_NAME"`
	PageSize           int      `json:"page_size" yaml:"page_size" env:"PAGE_SIZE"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string `json:"allowed_origins" yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	AdminUsernames     []string `json:"admin_usernames" yaml:"admin_usernames" env:"ADMIN_USERNAMES" envSeparator:","`
	SecureCookies      bool     `json:"secure_cookies" yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

type GinSection struct {
	Mode    string `json:"mode" yaml:"mode" env:"GIN_MODE"`
	LogPath string `json:"log_path" yaml:"log_path" env:"GIN_LOG_PATH"`
}

type DatabaseSection struct {
	// Driver is one of mysql, postgres or sqlite.
	Driver   string `json:"driver" yaml:"driver" env:"DB_DRIVER"`
	URI      string `json:"uri" yaml:"uri" env:"DATABASE_URI"`
	Host     string `json:"host" yaml:"host" env:"DB_HOST"`
	Port     string `json:"port" yaml:"port" env:"DB_PORT"`
	User     string `json:"user" yaml:"user" env:"DB_USER"`
	Password string `json:"password" yaml:"password" env:"DB_PASSWORD"`
	Name     string `json:"name" yaml:"name" env:"DB_NAME"`
}

type RedisSection struct {
	// Host left empty disables Redis; caches and token stores fall back to memory.
	Host     string `json:"host" yaml:"host" env:"REDIS_HOST"`
	Port     int    `json:"port" yaml:"port" env:"REDIS_PORT"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
}

type OAuthSection struct {
	GitHubClientID     string `json:"github_client_id" yaml:"github_client_id" env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `json:"github_client_secret" yaml:"github_client_secret" env:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `json:"google_client_id" yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `json:"google_client_secret" yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
}

type SMTPSection struct {
	Host     string `json:"host" yaml:"host" env:"SMTP_HOST"`
	Port     int    `json:"port" yaml:"port" env:"SMTP_PORT"`
	Username string `json:"username" yaml:"username" env:"SMTP_USERNAME"`
	Password string `json:"password" yaml:"password" env:"SMTP_PASSWORD"`
	From     string `json:"from" yaml:"from" env:"SMTP_FROM"`
	FromName string `json:"from_name" yaml:"from_name" env:"SMTP_FROM_NAME"`
	TLS      bool   `json:"tls" yaml:"tls" env:"SMTP_TLS"`
}

type LogSection struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Path       string `json:"path" yaml:"path" env:"LOG_PATH"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `json:"compress" yaml:"compress" env:"LOG_COMPRESS"`
}

type DigestSection struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"DIGEST_ENABLED"`
	// Interval is a Go duration string such as "168h".
	Interval string `json:"interval" yaml:"interval" env:"DIGEST_INTERVAL"`
}

// Every returns the parsed digest interval, one week when unset or invalid.
func (d DigestSection) Every() time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(d.Interval)); err == nil && v > 0 {
		return v
	}
	return 7 * 24 * time.Hour
}

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set in the config file or environment")

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()

	c, err := LoadFrom(DefaultPaths()...)
	if err != nil {
		log.Fatal(err)
	}
	Set(c)
	return c
}

// LoadFrom reads the first existing file among paths, applies environment overrides
// and then defaults. Missing files are skipped; malformed ones are an error.
// Defaults run last because some derive from other fields (db port, site url).
func LoadFrom(paths ...string) (AppConfig, error) {
	var c AppConfig
	for _, p := range paths {
		ok, err := loadFile(p, &c)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config %s: %w", p, err)
		}
		if ok {
			break
		}
	}

	if err := env.Parse(&c); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&c)

	if c.App.JWTSecret == "" {
		return AppConfig{}, ErrMissingJWTSecret
	}
	return c, nil
}

// Set installs c as the process configuration. Tests use it to bypass file loading.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// DefaultPaths lists the config files tried in order: CONFIG_FILE when set, otherwise config/config.yaml, .yml or .json.
func DefaultPaths() []string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return []string{p}
	}
	return []string{
		filepath.Join("config", "config.yaml"),
		filepath.Join("config", "config.yml"),
		filepath.Join("config", "config.json"),
	}
}

// loadFile decodes path into out, choosing the codec by extension.
// It reports false without error when the file does not exist.
func loadFile(path string, out *AppConfig) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, out)
	default:
		err = json.Unmarshal(b, out)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.App.SiteURL == "" {
		c.App.SiteURL = "http://localhost:" + c.App.Port
	}
	c.App.SiteURL = strings.TrimRight(c.App.SiteURL, "/")
	if c.App.SiteName == "" {
		c.App.SiteName = "NewsPaper"
	}
	if c.App.PageSize == 0 {
		c.App.PageSize = 10
	}
	if c.App.RateLimitPerMinute == 0 {
		c.App.RateLimitPerMinute = 60
	}
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
	if c.Gin.Mode == "" {
		c.Gin.Mode = "release"
	}
	if c.Gin.LogPath == "" {
		c.Gin.LogPath = "logs/go_gin.log"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == "" {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = "5432"
		default:
			c.Database.Port = "3306"
		}
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "newspaper"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
	if c.Digest.Interval == "" {
		c.Digest.Interval = "168h"
	}
}
