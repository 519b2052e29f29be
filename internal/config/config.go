package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr           = ":8000"
	defaultCountdownSeconds   = 3
	defaultReadTimeoutSec     = 5
	defaultLivenessTimeoutMin = 30
	defaultSweepIntervalMin   = 5
	defaultJWTSecret          = "defaultSecretKeyForDevelopmentOnly123456789"
)

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8081",
}

type Config struct {
	HTTPAddr         string
	CountdownSeconds int
	ReadTimeout      time.Duration
	LivenessTimeout  time.Duration
	SweepInterval    time.Duration
	JWTSecret        string
	AllowedOrigins   []string
}

func Load() Config {
	countdownSeconds := parsePositiveIntEnv("CAMERA_COUNTDOWN_SECONDS", defaultCountdownSeconds)
	readTimeoutSec := parsePositiveIntEnv("CAMERA_READ_TIMEOUT_SEC", defaultReadTimeoutSec)
	livenessTimeoutMin := parsePositiveIntEnv("CAMERA_LIVENESS_TIMEOUT_MIN", defaultLivenessTimeoutMin)
	sweepIntervalMin := parsePositiveIntEnv("CAMERA_SWEEP_INTERVAL_MIN", defaultSweepIntervalMin)

	return Config{
		HTTPAddr:         getEnv("CAMERA_HTTP_ADDR", defaultHTTPAddr),
		CountdownSeconds: countdownSeconds,
		ReadTimeout:      time.Duration(readTimeoutSec) * time.Second,
		LivenessTimeout:  time.Duration(livenessTimeoutMin) * time.Minute,
		SweepInterval:    time.Duration(sweepIntervalMin) * time.Minute,
		JWTSecret:        getEnv("CAMERA_JWT_SECRET", defaultJWTSecret),
		AllowedOrigins:   parseOriginsEnv("CAMERA_ALLOWED_ORIGINS"),
	}
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parsePositiveIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func parseOriginsEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string{}, defaultAllowedOrigins...)
	}
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return append([]string{}, defaultAllowedOrigins...)
	}
	return origins
}
