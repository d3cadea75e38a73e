// Package config provides configuration for the attendance server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Database
	DatabaseURL string

	// Presence plan. The prompt cap and the downstream effect of
	// repeated misses are deployment policy, so both stay configurable.
	PromptInterval     time.Duration
	MaxPromptsPerShift int
	ConfirmWindow      time.Duration
	PauseDelayMinutes  int

	// Credentials
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		InternalPort:       getEnvInt("INTERNAL_PORT", 8081),
		DatabaseURL:        getEnv("DATABASE_URL", "file:attendance.db?cache=shared&mode=rwc"),
		PromptInterval:     time.Duration(getEnvInt("PROMPT_INTERVAL_MIN", 120)) * time.Minute,
		MaxPromptsPerShift: getEnvInt("MAX_PROMPTS_PER_SHIFT", 4),
		ConfirmWindow:      time.Duration(getEnvInt("CONFIRM_WINDOW_SEC", 60)) * time.Second,
		PauseDelayMinutes:  getEnvInt("PAUSE_DELAY_MIN", 15),
		AccessTokenTTL:     time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:    time.Duration(getEnvInt("REFRESH_TOKEN_TTL_HOURS", 720)) * time.Hour,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
