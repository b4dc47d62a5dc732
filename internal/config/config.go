package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	BackendURL     string
	BackendTimeout time.Duration
	Secret         string
	CookieSecure   bool
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	LoginRate      float64
	LoginBurst     int
	HealthSchedule string
}

var ErrNoSecret = errors.New("JWT_SECRET is required")

// Load reads the environment. Call godotenv.Load first if a .env file
// should be honoured.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":50051"),
		BackendURL:     strings.TrimRight(getenv("BACKEND_URL", "http://127.0.0.1:5000"), "/"),
		BackendTimeout: getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		Secret:         os.Getenv("JWT_SECRET"),
		CookieSecure:   getenvBool("COOKIE_SECURE", false),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		LoginRate:      getenvFloat("LOGIN_RATE", 5),
		LoginBurst:     getenvInt("LOGIN_BURST", 10),
		HealthSchedule: getenv("HEALTH_SCHEDULE", "@every 30s"),
	}
	if cfg.Secret == "" {
		return cfg, ErrNoSecret
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
