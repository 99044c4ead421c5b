package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// Shared across the package: prometheus collectors register globally, so a
// second NewCollector with the same namespace panics.
var (
	testLogger    = logging.NewStructuredLogger("providers-test", "test", logging.ErrorLevel)
	testCollector = metrics.NewCollector("providers_test")
)

func writeFixture(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestFakeWeatherProvider(t *testing.T) {
	path := writeFixture(t, `[
		{"temp_c": 20.0, "rh": 55.0, "irradiance": 120.0},
		{"temp_c": 22.5, "rh": 48.0},
		{"temp_c": 18.0, "rh": 62.0, "irradiance": 0.0}
	]`)

	p, err := NewFakeWeatherProvider(path)
	if err != nil {
		t.Fatalf("NewFakeWeatherProvider failed: %v", err)
	}

	points, err := p.HourlyForecast(context.Background(), 37.5, 127.0, 7)
	if err != nil {
		t.Fatalf("HourlyForecast failed: %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("got %d points, want 7", len(points))
	}

	// Fixture wraps: point 3 repeats point 0.
	if points[3].TempC != points[0].TempC || points[3].RH != points[0].RH {
		t.Errorf("wrapped point = %+v, want replay of %+v", points[3], points[0])
	}

	// Timestamps are hourly, starting at a full hour in the future.
	if points[0].Timestamp.Before(time.Now().UTC()) {
		t.Errorf("first timestamp %v is in the past", points[0].Timestamp)
	}
	for i := 1; i < len(points); i++ {
		if got := points[i].Timestamp.Sub(points[i-1].Timestamp); got != time.Hour {
			t.Errorf("timestamp gap at %d = %v, want 1h", i, got)
		}
	}

	if points[1].Irradiance != nil {
		t.Errorf("point without irradiance: got %v, want nil", *points[1].Irradiance)
	}
	if points[0].Irradiance == nil || *points[0].Irradiance != 120.0 {
		t.Errorf("point with irradiance: got %v, want 120", points[0].Irradiance)
	}
}

func TestNewFakeWeatherProvider_BadFixtures(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
		},
		{
			name: "invalid json",
			path: func(t *testing.T) string { return writeFixture(t, `{not json`) },
		},
		{
			name: "empty fixture",
			path: func(t *testing.T) string { return writeFixture(t, `[]`) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFakeWeatherProvider(tt.path(t)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestOpenMeteoProvider_HourlyForecast(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Hour)
	times := []string{
		base.Add(-1 * time.Hour).Format("2006-01-02T15:04"), // past, skipped
		base.Add(1 * time.Hour).Format("2006-01-02T15:04"),
		base.Add(2 * time.Hour).Format("2006-01-02T15:04"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("timezone"); got != "UTC" {
			t.Errorf("timezone = %q, want UTC", got)
		}
		resp := map[string]interface{}{
			"hourly": map[string]interface{}{
				"time":                times,
				"temperature_2m":      []float64{15.0, 21.5, 23.0},
				"relativehumidity_2m": []float64{70.0, 52.0, 47.0},
				"shortwave_radiation": []float64{0.0, 310.0, 280.0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(5*time.Second, testLogger, testCollector)
	p.baseURL = srv.URL

	points, err := p.HourlyForecast(context.Background(), 37.5, 127.0, 48)
	if err != nil {
		t.Fatalf("HourlyForecast failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2 (past hour skipped)", len(points))
	}
	if points[0].TempC != 21.5 || points[0].RH != 52.0 {
		t.Errorf("first point = %+v, want temp 21.5, rh 52", points[0])
	}
	if points[0].Irradiance == nil || *points[0].Irradiance != 310.0 {
		t.Errorf("irradiance = %v, want 310", points[0].Irradiance)
	}
}

func TestOpenMeteoProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "inconsistent arrays",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"hourly": {"time": ["2030-01-01T00:00"], "temperature_2m": [], "relativehumidity_2m": []}}`)
			},
		},
		{
			name: "only past hours",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"hourly": {"time": ["2001-01-01T00:00"], "temperature_2m": [5.0], "relativehumidity_2m": [80.0], "shortwave_radiation": [0.0]}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewOpenMeteoProvider(5*time.Second, testLogger, testCollector)
			p.baseURL = srv.URL

			if _, err := p.HourlyForecast(context.Background(), 0, 0, 24); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGoogleGeocoder(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("key"); got != "test-key" {
				t.Errorf("key = %q, want test-key", got)
			}
			fmt.Fprint(w, `{"status": "OK", "results": [{"formatted_address": "Seoul, South Korea", "geometry": {"location": {"lat": 37.5665, "lng": 126.978}}}]}`)
		}))
		defer srv.Close()

		g := NewGoogleGeocoder("test-key", 5*time.Second, testLogger, testCollector)
		g.baseURL = srv.URL

		result, err := g.Geocode(context.Background(), "seoul")
		if err != nil {
			t.Fatalf("Geocode failed: %v", err)
		}
		if result == nil {
			t.Fatal("Geocode returned nil for a match")
		}
		if result.Latitude != 37.5665 || result.Longitude != 126.978 {
			t.Errorf("coordinates = (%v, %v), want (37.5665, 126.978)", result.Latitude, result.Longitude)
		}
		if result.Provider != "google" {
			t.Errorf("provider = %q, want google", result.Provider)
		}
	})

	t.Run("zero results is not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": "ZERO_RESULTS", "results": []}`)
		}))
		defer srv.Close()

		g := NewGoogleGeocoder("test-key", 5*time.Second, testLogger, testCollector)
		g.baseURL = srv.URL

		result, err := g.Geocode(context.Background(), "nowhere at all")
		if err != nil {
			t.Fatalf("Geocode failed: %v", err)
		}
		if result != nil {
			t.Errorf("result = %+v, want nil for no match", result)
		}
	})

	t.Run("denied status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": "REQUEST_DENIED", "results": [{"formatted_address": "x", "geometry": {"location": {"lat": 1, "lng": 2}}}]}`)
		}))
		defer srv.Close()

		g := NewGoogleGeocoder("bad-key", 5*time.Second, testLogger, testCollector)
		g.baseURL = srv.URL

		if _, err := g.Geocode(context.Background(), "seoul"); err == nil {
			t.Error("expected error for REQUEST_DENIED, got nil")
		}
	})
}

func TestKakaoGeocoder_AddressThenKeywordFallback(t *testing.T) {
	var addressCalls, keywordCalls int

	addressSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addressCalls++
		if got := r.Header.Get("Authorization"); got != "KakaoAK rest-key" {
			t.Errorf("Authorization = %q, want KakaoAK rest-key", got)
		}
		fmt.Fprint(w, `{"documents": []}`)
	}))
	defer addressSrv.Close()

	keywordSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keywordCalls++
		fmt.Fprint(w, `{"documents": [{"place_name": "Starfield Library", "x": "127.0595", "y": "37.5126"}]}`)
	}))
	defer keywordSrv.Close()

	g := NewKakaoGeocoder("rest-key", 5*time.Second, testLogger, testCollector)
	g.addressURL = addressSrv.URL
	g.keywordURL = keywordSrv.URL

	result, err := g.Geocode(context.Background(), "starfield library")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if addressCalls != 1 || keywordCalls != 1 {
		t.Errorf("calls = (%d address, %d keyword), want (1, 1)", addressCalls, keywordCalls)
	}
	if result == nil {
		t.Fatal("Geocode returned nil after keyword fallback")
	}
	if result.Latitude != 37.5126 || result.Longitude != 127.0595 {
		t.Errorf("coordinates = (%v, %v), want (37.5126, 127.0595)", result.Latitude, result.Longitude)
	}
	if result.Address != "Starfield Library" {
		t.Errorf("address = %q, want place name fallback", result.Address)
	}
}

func TestKakaoGeocoder_AddressHitSkipsKeyword(t *testing.T) {
	addressSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"documents": [{"address_name": "Seoul Gangnam-gu", "x": "127.04", "y": "37.51"}]}`)
	}))
	defer addressSrv.Close()

	keywordSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("keyword endpoint called despite address hit")
	}))
	defer keywordSrv.Close()

	g := NewKakaoGeocoder("rest-key", 5*time.Second, testLogger, testCollector)
	g.addressURL = addressSrv.URL
	g.keywordURL = keywordSrv.URL

	result, err := g.Geocode(context.Background(), "gangnam")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if result == nil || result.Address != "Seoul Gangnam-gu" {
		t.Fatalf("result = %+v, want address hit", result)
	}
}

func TestNominatimGeocoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "ops@example.com" {
			t.Errorf("User-Agent = %q, want contact address", got)
		}
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("limit = %q, want 1", got)
		}
		fmt.Fprint(w, `[{"lat": "51.5074", "lon": "-0.1278", "display_name": "London, Greater London, England"}]`)
	}))
	defer srv.Close()

	g := NewNominatimGeocoder("ops@example.com", 5*time.Second, testLogger, testCollector)
	g.baseURL = srv.URL

	result, err := g.Geocode(context.Background(), "london")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if result == nil {
		t.Fatal("Geocode returned nil for a match")
	}
	if result.Latitude != 51.5074 || result.Longitude != -0.1278 {
		t.Errorf("coordinates = (%v, %v), want (51.5074, -0.1278)", result.Latitude, result.Longitude)
	}

	t.Run("empty response is no match", func(t *testing.T) {
		empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))
		defer empty.Close()

		g := NewNominatimGeocoder("ops@example.com", 5*time.Second, testLogger, testCollector)
		g.baseURL = empty.URL

		result, err := g.Geocode(context.Background(), "zzzz")
		if err != nil {
			t.Fatalf("Geocode failed: %v", err)
		}
		if result != nil {
			t.Errorf("result = %+v, want nil", result)
		}
	})
}
