// Package config loads all runtime configuration from environment
// variables (optionally a .env file) once at startup. Anything that would
// make a configured provider unusable fails validation before the server
// binds, never per-request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Weather provider selectors.
const (
	WeatherProviderFake      = "FAKE"
	WeatherProviderOpenMeteo = "OPEN_METEO"
)

// Geocoder selectors.
const (
	GeocoderGoogle    = "GOOGLE"
	GeocoderKakao     = "KAKAO"
	GeocoderNominatim = "NOMINATIM"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Weather  WeatherConfig
	Geocoder GeocoderConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// WeatherConfig selects and parameterizes the weather provider.
type WeatherConfig struct {
	Provider    string
	HoursAhead  int
	FixturePath string        // fake provider forecast file
	Timeout     time.Duration // per external call
}

// GeocoderConfig selects the primary geocoder and carries one credential
// set per backend. Nominatim needs no key, only a contact identifier.
type GeocoderConfig struct {
	Primary          string
	GoogleAPIKey     string
	KakaoRESTKey     string
	NominatimContact string
	Timeout          time.Duration
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present but not required.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "plantcare"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "plantcare"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Weather: WeatherConfig{
			Provider:    getEnv("WEATHER_PROVIDER", WeatherProviderFake),
			HoursAhead:  getEnvInt("WEATHER_HOURS_AHEAD", 72),
			FixturePath: getEnv("WEATHER_FIXTURE_PATH", "testdata/forecast_fixture.json"),
			Timeout:     getEnvDuration("WEATHER_TIMEOUT", 10*time.Second),
		},
		Geocoder: GeocoderConfig{
			Primary:          getEnv("GEOCODER_PRIMARY", GeocoderNominatim),
			GoogleAPIKey:     getEnv("GOOGLE_MAPS_API_KEY", ""),
			KakaoRESTKey:     getEnv("KAKAO_REST_API_KEY", ""),
			NominatimContact: getEnv("NOMINATIM_CONTACT", "plantcare-platform"),
			Timeout:          getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate fails fast on configuration that would break at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}

	switch c.Weather.Provider {
	case WeatherProviderFake:
		if c.Weather.FixturePath == "" {
			return fmt.Errorf("WEATHER_FIXTURE_PATH is required for the %s weather provider", WeatherProviderFake)
		}
	case WeatherProviderOpenMeteo:
		if c.Weather.HoursAhead <= 0 {
			return fmt.Errorf("WEATHER_HOURS_AHEAD must be positive, got %d", c.Weather.HoursAhead)
		}
	default:
		return fmt.Errorf("unknown weather provider: %q", c.Weather.Provider)
	}

	switch c.Geocoder.Primary {
	case GeocoderGoogle:
		if c.Geocoder.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_MAPS_API_KEY is required when %s is the primary geocoder", GeocoderGoogle)
		}
	case GeocoderKakao:
		if c.Geocoder.KakaoRESTKey == "" {
			return fmt.Errorf("KAKAO_REST_API_KEY is required when %s is the primary geocoder", GeocoderKakao)
		}
	case GeocoderNominatim:
		// Open community geocoder, no credentials.
	default:
		return fmt.Errorf("unknown geocoder: %q", c.Geocoder.Primary)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
