package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the studymates service.
type Config struct {
	HTTPPort            int
	DatabaseDriver      string
	DatabaseDSN         string
	RedisAddr           string
	NATSURL             string
	JWTSecret           string
	JWTIssuer           string
	EmailDomain         string
	JoinRequestTTL      time.Duration
	ExpirySweepInterval time.Duration
	NearbyRadiusMeters  float64
	LogLevel            string
}

// Load reads .env from the working directory when present, then parses the process
// environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile loads path into the environment without overriding variables that are
// already set, then parses the environment. A missing file is not an error.
//
// Optional fields fall back to defaults. Missing required keys and unparsable values
// are reported together in a single error.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPPort:            8080,
		DatabaseDriver:      "sqlite",
		DatabaseDSN:         "file:studymates.db?_foreign_keys=on",
		EmailDomain:         "unsw.edu.au",
		JoinRequestTTL:      time.Hour,
		ExpirySweepInterval: time.Minute,
		NearbyRadiusMeters:  500,
		LogLevel:            "info",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := lookup("STUDYMATES_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "STUDYMATES_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if driver := strings.ToLower(lookup("STUDYMATES_DB_DRIVER")); driver != "" {
		switch driver {
		case "sqlite", "sqlite3", "postgres", "postgresql":
			cfg.DatabaseDriver = driver
		default:
			invalid = append(invalid, "STUDYMATES_DB_DRIVER")
		}
	}

	if dsn := lookup("STUDYMATES_DB_DSN"); dsn != "" {
		cfg.DatabaseDSN = dsn
	}

	cfg.RedisAddr = lookup("STUDYMATES_REDIS_ADDR")
	cfg.NATSURL = lookup("STUDYMATES_NATS_URL")

	if secret := lookup("STUDYMATES_JWT_SECRET"); secret == "" {
		missing = append(missing, "STUDYMATES_JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}
	cfg.JWTIssuer = lookup("STUDYMATES_JWT_ISSUER")

	if domain := strings.ToLower(strings.TrimPrefix(lookup("STUDYMATES_EMAIL_DOMAIN"), "@")); domain != "" {
		cfg.EmailDomain = domain
	}

	if ttlValue := lookup("STUDYMATES_JOIN_REQUEST_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDYMATES_JOIN_REQUEST_TTL")
		} else {
			cfg.JoinRequestTTL = ttl
		}
	}

	if intervalValue := lookup("STUDYMATES_EXPIRY_SWEEP_INTERVAL"); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "STUDYMATES_EXPIRY_SWEEP_INTERVAL")
		} else {
			cfg.ExpirySweepInterval = interval
		}
	}

	if radiusValue := lookup("STUDYMATES_NEARBY_RADIUS_METERS"); radiusValue != "" {
		radius, err := strconv.ParseFloat(radiusValue, 64)
		if err != nil || radius <= 0 || radius > 50000 {
			invalid = append(invalid, "STUDYMATES_NEARBY_RADIUS_METERS")
		} else {
			cfg.NearbyRadiusMeters = radius
		}
	}

	if level := strings.ToLower(lookup("STUDYMATES_LOG_LEVEL")); level != "" {
		switch level {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = level
		default:
			invalid = append(invalid, "STUDYMATES_LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
