// Package config loads the client configuration from the environment,
// layered over an optional .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBase      string
	WSBase       string
	Token        string
	Email        string
	Password     string
	DataDir      string
	Debug        bool
	HTTPTimeout  time.Duration
	PollInterval time.Duration
}

// Load reads .env if present (environment wins over file values) and
// assembles the config with local-development defaults.
func Load() Config {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	dataDirDefault := "."
	if home != "" {
		dataDirDefault = filepath.Join(home, ".atelier")
	}

	return Config{
		APIBase:      EnvOr("ATELIER_API_BASE", "http://127.0.0.1:8000/api"),
		WSBase:       EnvOr("ATELIER_WS_BASE", ""),
		Token:        EnvOr("ATELIER_TOKEN", ""),
		Email:        EnvOr("ATELIER_EMAIL", ""),
		Password:     EnvOr("ATELIER_PASSWORD", ""),
		DataDir:      EnvOr("ATELIER_DATA_DIR", dataDirDefault),
		Debug:        EnvOrBool("ATELIER_DEBUG", false),
		HTTPTimeout:  time.Duration(EnvOrInt("ATELIER_HTTP_TIMEOUT", 60)) * time.Second,
		PollInterval: time.Duration(EnvOrInt("ATELIER_POLL_INTERVAL", 5)) * time.Second,
	}
}

func EnvOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func EnvOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func EnvOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
