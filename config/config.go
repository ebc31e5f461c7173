package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "CURATOR__"

// Settings is the full service configuration.
type Settings struct {
	Server     ServerSettings     `mapstructure:"server"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Refresh    RefreshSettings    `mapstructure:"refresh"`
	Featured   FeaturedSettings   `mapstructure:"featured"`
	TMDB       TMDBSettings       `mapstructure:"tmdb"`
	Prowlarr   ProwlarrSettings   `mapstructure:"prowlarr"`
	Log        LogSettings        `mapstructure:"log"`
	Metrics    MetricsSettings    `mapstructure:"metrics"`
	Enrichment EnrichmentSettings `mapstructure:"enrichment"`
}

type ServerSettings struct {
	Listen   string `mapstructure:"listen"`
	AdminKey string `mapstructure:"adminKey"`
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit      float64  `mapstructure:"rateLimit"`
	RateBurst      int      `mapstructure:"rateBurst"`
	TrustProxy     bool     `mapstructure:"trustProxy"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	AllowPrivate   bool     `mapstructure:"allowPrivateOrigins"`
}

type CacheSettings struct {
	Backend       string `mapstructure:"backend"`
	TTLSeconds    int    `mapstructure:"ttlSeconds"`
	MemoryEntries int    `mapstructure:"memoryEntries"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDb"`
	RedisPrefix   string `mapstructure:"redisPrefix"`
}

type RefreshSettings struct {
	IntervalSeconds int  `mapstructure:"intervalSeconds"`
	OnStart         bool `mapstructure:"onStart"`
}

type FeaturedSettings struct {
	CategoryLimit       int `mapstructure:"categoryLimit"`
	QueryTimeoutSeconds int `mapstructure:"queryTimeoutSeconds"`
}

type EnrichmentSettings struct {
	Concurrency int `mapstructure:"concurrency"`
}

type TMDBSettings struct {
	APIKey   string `mapstructure:"apiKey"`
	Language string `mapstructure:"language"`
	// RequestsPerSecond and Burst size the shared client-side limiter.
	RequestsPerSecond  float64 `mapstructure:"requestsPerSecond"`
	Burst              int     `mapstructure:"burst"`
	HTTPTimeoutSeconds int     `mapstructure:"httpTimeoutSeconds"`
}

type ProwlarrSettings struct {
	URL                string `mapstructure:"url"`
	APIKey             string `mapstructure:"apiKey"`
	HTTPTimeoutSeconds int    `mapstructure:"httpTimeoutSeconds"`
}

type LogSettings struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
}

type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// envBindings maps config keys onto their CURATOR__ variables.
var envBindings = map[string]string{
	"server.listen":                "LISTEN",
	"server.adminKey":              "ADMIN_KEY",
	"server.rateLimit":             "RATE_LIMIT",
	"server.rateBurst":             "RATE_BURST",
	"server.trustProxy":            "TRUST_PROXY",
	"server.allowedOrigins":        "ALLOWED_ORIGINS",
	"server.allowPrivateOrigins":   "ALLOW_PRIVATE_ORIGINS",
	"cache.backend":                "CACHE_BACKEND",
	"cache.ttlSeconds":             "CACHE_TTL_SECONDS",
	"cache.memoryEntries":          "CACHE_MEMORY_ENTRIES",
	"cache.dir":                    "CACHE_DIR",
	"cache.redisAddr":              "REDIS_ADDR",
	"cache.redisPassword":          "REDIS_PASSWORD",
	"cache.redisDb":                "REDIS_DB",
	"cache.redisPrefix":            "REDIS_PREFIX",
	"refresh.intervalSeconds":      "REFRESH_INTERVAL_SECONDS",
	"refresh.onStart":              "REFRESH_ON_START",
	"featured.categoryLimit":       "CATEGORY_LIMIT",
	"featured.queryTimeoutSeconds": "QUERY_TIMEOUT_SECONDS",
	"enrichment.concurrency":       "ENRICHMENT_CONCURRENCY",
	"tmdb.apiKey":                  "TMDB_API_KEY",
	"tmdb.language":                "TMDB_LANGUAGE",
	"tmdb.requestsPerSecond":       "TMDB_REQUESTS_PER_SECOND",
	"tmdb.burst":                   "TMDB_BURST",
	"tmdb.httpTimeoutSeconds":      "TMDB_HTTP_TIMEOUT_SECONDS",
	"prowlarr.url":                 "PROWLARR_URL",
	"prowlarr.apiKey":              "PROWLARR_API_KEY",
	"prowlarr.httpTimeoutSeconds":  "PROWLARR_HTTP_TIMEOUT_SECONDS",
	"log.level":                    "LOG_LEVEL",
	"log.path":                     "LOG_PATH",
	"log.maxSize":                  "LOG_MAX_SIZE",
	"log.maxBackups":               "LOG_MAX_BACKUPS",
	"metrics.enabled":              "METRICS_ENABLED",
}

// Load reads settings from the optional TOML file at path, then applies
// CURATOR__ environment overrides. A missing file is not an error, and
// neither are missing credentials: the service degrades to fallback content.
func Load(path string) (*Settings, error) {
	v := viper.New()
	defaults(v)

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, envPrefix+env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	s.normalize()
	return &s, nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.listen", "0.0.0.0:8090")
	v.SetDefault("server.adminKey", "")
	v.SetDefault("server.rateLimit", 10.0)
	v.SetDefault("server.rateBurst", 20)
	v.SetDefault("server.trustProxy", false)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.allowPrivateOrigins", true)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlSeconds", 3600)
	v.SetDefault("cache.memoryEntries", 512)
	v.SetDefault("cache.dir", filepath.Join(os.TempDir(), "curator-cache"))
	v.SetDefault("cache.redisAddr", "")
	v.SetDefault("cache.redisPassword", "")
	v.SetDefault("cache.redisDb", 0)
	v.SetDefault("cache.redisPrefix", "curator:")

	v.SetDefault("refresh.intervalSeconds", 3600)
	v.SetDefault("refresh.onStart", true)

	v.SetDefault("featured.categoryLimit", 20)
	v.SetDefault("featured.queryTimeoutSeconds", 30)
	v.SetDefault("enrichment.concurrency", 6)

	v.SetDefault("tmdb.apiKey", "")
	v.SetDefault("tmdb.language", "en-US")
	// 40 requests per 10 seconds.
	v.SetDefault("tmdb.requestsPerSecond", 4.0)
	v.SetDefault("tmdb.burst", 10)
	v.SetDefault("tmdb.httpTimeoutSeconds", 10)

	v.SetDefault("prowlarr.url", "")
	v.SetDefault("prowlarr.apiKey", "")
	v.SetDefault("prowlarr.httpTimeoutSeconds", 10)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.path", "")
	v.SetDefault("log.maxSize", 50)
	v.SetDefault("log.maxBackups", 3)

	v.SetDefault("metrics.enabled", true)
}

func readFile(v *viper.Viper, path string) error {
	v.SetConfigType("toml")
	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("[config] config file not found, using defaults and environment")
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

func (s *Settings) normalize() {
	s.Cache.Backend = strings.ToLower(strings.TrimSpace(s.Cache.Backend))
	s.Prowlarr.URL = strings.TrimRight(strings.TrimSpace(s.Prowlarr.URL), "/")
	s.TMDB.APIKey = strings.TrimSpace(s.TMDB.APIKey)
	s.Prowlarr.APIKey = strings.TrimSpace(s.Prowlarr.APIKey)

	// Env values arrive as one comma separated string.
	var origins []string
	for _, o := range s.Server.AllowedOrigins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	s.Server.AllowedOrigins = origins
}

// CacheTTL returns the featured content lifetime.
func (s *Settings) CacheTTL() time.Duration {
	return seconds(s.Cache.TTLSeconds)
}

// RefreshInterval returns the time between scheduled refreshes.
func (s *Settings) RefreshInterval() time.Duration {
	return seconds(s.Refresh.IntervalSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// ApplyLogConfig configures the global zerolog logger from s.Log. Dev builds
// log to a console writer, releases log JSON.
func (s *Settings) ApplyLogConfig(version string) error {
	zerolog.TimeFieldFormat = time.RFC3339
	setLogLevel(s.Log.Level)

	writer := baseLogWriter(version)
	if s.Log.Path != "" {
		w, err := setupLogFile(s.Log.Path, writer, s.Log.MaxSize, s.Log.MaxBackups)
		if err != nil {
			return err
		}
		writer = w
	}
	log.Logger = log.Logger.Output(writer)
	return nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
	return io.MultiWriter(base, rotator), nil
}
