package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// Driver is "sqlite3" or "pgx".
	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// DataRoot holds one subdirectory per station feed.
	DataRoot          string
	MonitorInterval   time.Duration
	MissingWindowDays int

	UpsertMaxRetries int
	UpsertBaseDelay  time.Duration
	UpsertMaxDelay   time.Duration

	RefreshEnabled  bool
	RefreshInterval time.Duration
	// RefreshViews is refreshed in order on every cycle.
	RefreshViews []string

	// MQTTBroker empty disables event publishing.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
}

type viewsFile struct {
	Views []string `yaml:"views"`
}

func LoadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	driver := envString("DB_DRIVER", "sqlite3")
	switch driver {
	case "sqlite3", "pgx":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, pgx)", driver)
	}
	dsn := envString("DB_DSN", "")
	if driver == "pgx" && dsn == "" {
		return Config{}, errors.New("DB_DSN is required when DB_DRIVER=pgx")
	}

	// WAL lets sqlite readers run beside the one writer, so both drivers get a
	// pool. An in-memory sqlite database exists per connection and keeps one.
	defaultConns := 4
	switch {
	case driver == "pgx":
		defaultConns = 10
	case strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory"):
		defaultConns = 1
	}
	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", defaultConns)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", defaultConns)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}

	dataRoot := envString("DATA_ROOT", "data/stations")
	dataRoot, err = filepath.Abs(dataRoot)
	if err != nil {
		return Config{}, fmt.Errorf("DATA_ROOT %q: %w", dataRoot, err)
	}
	monitorInterval, err := envDuration("MONITOR_INTERVAL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if monitorInterval <= 0 {
		return Config{}, fmt.Errorf("invalid MONITOR_INTERVAL %s: must be > 0", monitorInterval)
	}
	window, err := envInt("MISSING_WINDOW_DAYS", 3)
	if err != nil {
		return Config{}, err
	}
	if window < 0 {
		return Config{}, fmt.Errorf("invalid MISSING_WINDOW_DAYS %d: must be >= 0", window)
	}

	maxRetries, err := envInt("UPSERT_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	baseDelay, err := envDuration("UPSERT_BASE_DELAY", 50*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	maxDelay, err := envDuration("UPSERT_MAX_DELAY", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	if maxRetries < 0 {
		return Config{}, fmt.Errorf("invalid UPSERT_MAX_RETRIES %d: must be >= 0", maxRetries)
	}
	if baseDelay < 0 {
		return Config{}, fmt.Errorf("invalid UPSERT_BASE_DELAY %s: must be >= 0", baseDelay)
	}
	if maxDelay < 0 {
		return Config{}, fmt.Errorf("invalid UPSERT_MAX_DELAY %s: must be >= 0", maxDelay)
	}

	refreshEnabled, err := envBool("REFRESH_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	refreshInterval, err := envDuration("REFRESH_INTERVAL", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if refreshInterval <= 0 {
		return Config{}, fmt.Errorf("invalid REFRESH_INTERVAL %s: must be > 0", refreshInterval)
	}
	views := splitList(envString("REFRESH_VIEWS", "sat_combined_view_difference"))
	if path := envString("REFRESH_VIEWS_FILE", ""); path != "" {
		views, err = loadViewsFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:            appEnv,
		LogLevel:          level,
		HTTPAddr:          envString("HTTP_ADDR", ":8080"),
		Driver:            driver,
		DSN:               dsn,
		Path:              envString("SQLITE_PATH", "data/app.db"),
		MaxOpenConns:      maxOpenConns,
		MaxIdleConns:      maxIdleConns,
		ConnMaxLifetime:   connMaxLifetime,
		DataRoot:          dataRoot,
		MonitorInterval:   monitorInterval,
		MissingWindowDays: window,
		UpsertMaxRetries:  maxRetries,
		UpsertBaseDelay:   baseDelay,
		UpsertMaxDelay:    maxDelay,
		RefreshEnabled:    refreshEnabled,
		RefreshInterval:   refreshInterval,
		RefreshViews:      views,
		MQTTBroker:        envString("MQTT_BROKER", ""),
		MQTTPort:          mqttPort,
		MQTTClientID:      envString("MQTT_CLIENT_ID", "time-traceability"),
		MQTTTopicPrefix:   envString("MQTT_TOPIC_PREFIX", "stations"),
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func loadViewsFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("REFRESH_VIEWS_FILE %q: %w", path, err)
	}
	var vf viewsFile
	if err := yaml.Unmarshal(b, &vf); err != nil {
		return nil, fmt.Errorf("parse REFRESH_VIEWS_FILE %q: %w", path, err)
	}
	var out []string
	for _, v := range vf.Views {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
