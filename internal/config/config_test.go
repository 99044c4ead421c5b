package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Weather.Provider != WeatherProviderFake {
		t.Errorf("Weather.Provider = %q, want %q", cfg.Weather.Provider, WeatherProviderFake)
	}
	if cfg.Weather.HoursAhead != 72 {
		t.Errorf("Weather.HoursAhead = %d, want 72", cfg.Weather.HoursAhead)
	}
	if cfg.Geocoder.Primary != GeocoderNominatim {
		t.Errorf("Geocoder.Primary = %q, want %q", cfg.Geocoder.Primary, GeocoderNominatim)
	}
	if cfg.Weather.Timeout != 10*time.Second {
		t.Errorf("Weather.Timeout = %v, want 10s", cfg.Weather.Timeout)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("WEATHER_PROVIDER", WeatherProviderOpenMeteo)
	t.Setenv("GEOCODER_PRIMARY", GeocoderKakao)
	t.Setenv("KAKAO_REST_API_KEY", "test-key")
	t.Setenv("WEATHER_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Weather.Provider != WeatherProviderOpenMeteo {
		t.Errorf("Weather.Provider = %q, want %q", cfg.Weather.Provider, WeatherProviderOpenMeteo)
	}
	if cfg.Weather.Timeout != 3*time.Second {
		t.Errorf("Weather.Timeout = %v, want 3s", cfg.Weather.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Host: "localhost", Database: "plantcare"},
			Weather:  WeatherConfig{Provider: WeatherProviderFake, FixturePath: "testdata/f.json", HoursAhead: 72},
			Geocoder: GeocoderConfig{Primary: GeocoderNominatim},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing database name",
			mutate:  func(c *Config) { c.Database.Database = "" },
			wantErr: true,
		},
		{
			name:    "unknown weather provider",
			mutate:  func(c *Config) { c.Weather.Provider = "BOGUS" },
			wantErr: true,
		},
		{
			name:    "fake provider without fixture",
			mutate:  func(c *Config) { c.Weather.FixturePath = "" },
			wantErr: true,
		},
		{
			name: "open-meteo with bad horizon",
			mutate: func(c *Config) {
				c.Weather.Provider = WeatherProviderOpenMeteo
				c.Weather.HoursAhead = 0
			},
			wantErr: true,
		},
		{
			name:    "google geocoder without key",
			mutate:  func(c *Config) { c.Geocoder.Primary = GeocoderGoogle },
			wantErr: true,
		},
		{
			name: "google geocoder with key",
			mutate: func(c *Config) {
				c.Geocoder.Primary = GeocoderGoogle
				c.Geocoder.GoogleAPIKey = "key"
			},
		},
		{
			name:    "kakao geocoder without key",
			mutate:  func(c *Config) { c.Geocoder.Primary = GeocoderKakao },
			wantErr: true,
		},
		{
			name:    "unknown geocoder",
			mutate:  func(c *Config) { c.Geocoder.Primary = "BOGUS" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
