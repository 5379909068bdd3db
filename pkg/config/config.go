// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dev/bravebird/weightsync-go/pkg/models"
)

// Defaults for the target site
const (
	DefaultFlowURL    = "https://flow.polar.com"
	DefaultAuthURL    = "https://auth.polar.com/login"
	DefaultCookieFile = "cookies.json"
	DefaultTaskQueue  = "weight-sync"
)

// Config holds all settings shared by the binaries
type Config struct {
	Credentials models.Credentials

	FlowURL       string
	AuthURL       string
	CookieFile    string
	ChromeBin     string
	Headless      bool
	DisableDirect bool
	RequestDelay  time.Duration

	MySQLDSN     string
	TemporalHost string
	TaskQueue    string
	Port         string
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	delay, err := getEnvDuration("INTER_REQUEST_DELAY", time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Credentials: models.Credentials{
			Username: os.Getenv("POLAR_USERNAME"),
			Password: os.Getenv("POLAR_PASSWORD"),
		},
		FlowURL:       strings.TrimRight(getEnvOrDefault("POLAR_FLOW_URL", DefaultFlowURL), "/"),
		AuthURL:       getEnvOrDefault("POLAR_AUTH_URL", DefaultAuthURL),
		CookieFile:    getEnvOrDefault("COOKIE_FILE", DefaultCookieFile),
		ChromeBin:     os.Getenv("CHROME_BIN"),
		Headless:      getEnvBool("HEADLESS", true),
		DisableDirect: getEnvBool("DISABLE_DIRECT_API", false),
		RequestDelay:  delay,
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		TemporalHost:  getEnvOrDefault("TEMPORAL_HOST", "localhost:7233"),
		TaskQueue:     getEnvOrDefault("TASK_QUEUE", DefaultTaskQueue),
		Port:          getEnvOrDefault("PORT", "8080"),
	}

	slog.Debug("configuration loaded",
		"flowURL", cfg.FlowURL,
		"cookieFile", cfg.CookieFile,
		"headless", cfg.Headless,
		"disableDirect", cfg.DisableDirect)
	return cfg, nil
}

// RequireCredentials fails unless both credential variables are set
func (c *Config) RequireCredentials() error {
	if !c.Credentials.Valid() {
		return errors.New("POLAR_USERNAME and POLAR_PASSWORD must be set")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("ignoring invalid boolean", "key", key, "value", val)
		return defaultVal
	}
	return b
}

// getEnvDuration accepts a Go duration or a bare number of milliseconds
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
