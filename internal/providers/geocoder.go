package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"plantcare-platform/internal/config"
	"plantcare-platform/internal/models"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// Geocoder resolves a free-text location query to coordinates.
// A nil result with a nil error means "no match", which callers must not
// treat as a failure.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, query string) (*models.GeocodeResult, error)
}

// NewGeocoderFromConfig selects the configured primary geocoder.
func NewGeocoderFromConfig(cfg *config.Config, logger *logging.StructuredLogger, collector *metrics.Collector) (Geocoder, error) {
	switch cfg.Geocoder.Primary {
	case config.GeocoderGoogle:
		return NewGoogleGeocoder(cfg.Geocoder.GoogleAPIKey, cfg.Geocoder.Timeout, logger, collector), nil
	case config.GeocoderKakao:
		return NewKakaoGeocoder(cfg.Geocoder.KakaoRESTKey, cfg.Geocoder.Timeout, logger, collector), nil
	case config.GeocoderNominatim:
		return NewNominatimGeocoder(cfg.Geocoder.NominatimContact, cfg.Geocoder.Timeout, logger, collector), nil
	default:
		return nil, fmt.Errorf("unknown geocoder: %q", cfg.Geocoder.Primary)
	}
}

// GoogleGeocoder is the commercial maps backend.
type GoogleGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewGoogleGeocoder builds the Google Maps geocoding client.
func NewGoogleGeocoder(apiKey string, timeout time.Duration, logger *logging.StructuredLogger, collector *metrics.Collector) *GoogleGeocoder {
	return &GoogleGeocoder{
		baseURL: "https://maps.googleapis.com/maps/api/geocode/json",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: collector,
	}
}

// Name identifies the backend in cache rows and logs.
func (g *GoogleGeocoder) Name() string { return "google" }

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves the query through the Google geocoding endpoint.
func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (*models.GeocodeResult, error) {
	q := url.Values{}
	q.Set("address", query)
	q.Set("key", g.apiKey)

	var body googleGeocodeResponse
	if err := fetchJSON(ctx, g.client, g.metrics, g.Name(), g.baseURL+"?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	if body.Status == "ZERO_RESULTS" || len(body.Results) == 0 {
		return nil, nil
	}
	if body.Status != "OK" {
		g.metrics.RecordProviderError(g.Name())
		return nil, fmt.Errorf("google geocode failed: status %s", body.Status)
	}

	r := body.Results[0]
	return &models.GeocodeResult{
		Latitude:  r.Geometry.Location.Lat,
		Longitude: r.Geometry.Location.Lng,
		Address:   r.FormattedAddress,
		Provider:  g.Name(),
	}, nil
}

// KakaoGeocoder is the regional maps backend. It tries the address-style
// lookup first and falls back to the keyword (place) search when the
// address endpoint finds nothing.
type KakaoGeocoder struct {
	addressURL string
	keywordURL string
	restKey    string
	client     *http.Client
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewKakaoGeocoder builds the Kakao local-API client.
func NewKakaoGeocoder(restKey string, timeout time.Duration, logger *logging.StructuredLogger, collector *metrics.Collector) *KakaoGeocoder {
	return &KakaoGeocoder{
		addressURL: "https://dapi.kakao.com/v2/local/search/address.json",
		keywordURL: "https://dapi.kakao.com/v2/local/search/keyword.json",
		restKey:    restKey,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    collector,
	}
}

// Name identifies the backend in cache rows and logs.
func (g *KakaoGeocoder) Name() string { return "kakao" }

type kakaoSearchResponse struct {
	Documents []struct {
		AddressName string `json:"address_name"`
		PlaceName   string `json:"place_name"`
		X           string `json:"x"` // longitude
		Y           string `json:"y"` // latitude
	} `json:"documents"`
}

// Geocode resolves the query, address lookup first, keyword second.
func (g *KakaoGeocoder) Geocode(ctx context.Context, query string) (*models.GeocodeResult, error) {
	result, err := g.search(ctx, g.addressURL, query)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	g.logger.Debug(ctx, "[GEOCODE_FALLBACK] Address lookup empty, trying keyword search", logging.Fields{
		"provider": g.Name(),
	})
	return g.search(ctx, g.keywordURL, query)
}

func (g *KakaoGeocoder) search(ctx context.Context, endpoint, query string) (*models.GeocodeResult, error) {
	q := url.Values{}
	q.Set("query", query)

	headers := map[string]string{"Authorization": "KakaoAK " + g.restKey}

	var body kakaoSearchResponse
	if err := fetchJSON(ctx, g.client, g.metrics, g.Name(), endpoint+"?"+q.Encode(), headers, &body); err != nil {
		return nil, err
	}

	if len(body.Documents) == 0 {
		return nil, nil
	}

	doc := body.Documents[0]
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return nil, fmt.Errorf("kakao geocode returned invalid latitude %q: %w", doc.Y, err)
	}
	lon, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return nil, fmt.Errorf("kakao geocode returned invalid longitude %q: %w", doc.X, err)
	}

	address := doc.AddressName
	if address == "" {
		address = doc.PlaceName
	}

	return &models.GeocodeResult{
		Latitude:  lat,
		Longitude: lon,
		Address:   address,
		Provider:  g.Name(),
	}, nil
}

// NominatimGeocoder is the open community backend. Rate-limited upstream,
// but always available as a keyless fallback.
type NominatimGeocoder struct {
	baseURL string
	contact string
	client  *http.Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewNominatimGeocoder builds the OpenStreetMap Nominatim client. The
// contact string goes into the User-Agent per the usage policy.
func NewNominatimGeocoder(contact string, timeout time.Duration, logger *logging.StructuredLogger, collector *metrics.Collector) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL: "https://nominatim.openstreetmap.org/search",
		contact: contact,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: collector,
	}
}

// Name identifies the backend in cache rows and logs.
func (g *NominatimGeocoder) Name() string { return "nominatim" }

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves the query through the Nominatim search endpoint.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (*models.GeocodeResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	headers := map[string]string{"User-Agent": g.contact}

	var body []nominatimResult
	if err := fetchJSON(ctx, g.client, g.metrics, g.Name(), g.baseURL+"?"+q.Encode(), headers, &body); err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(body[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim returned invalid latitude %q: %w", body[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(body[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim returned invalid longitude %q: %w", body[0].Lon, err)
	}

	return &models.GeocodeResult{
		Latitude:  lat,
		Longitude: lon,
		Address:   body[0].DisplayName,
		Provider:  g.Name(),
	}, nil
}

// fetchJSON issues a GET with the provider's client, records duration and
// error metrics, and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, collector *metrics.Collector, provider, rawURL string, headers map[string]string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", provider, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	timer := time.Now()
	resp, err := client.Do(req)
	collector.ProviderRequestDuration.WithLabelValues(provider).Observe(time.Since(timer).Seconds())
	if err != nil {
		collector.RecordProviderError(provider)
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		collector.RecordProviderError(provider)
		return fmt.Errorf("%s request failed: status %d", provider, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		collector.RecordProviderError(provider)
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}

	return nil
}
