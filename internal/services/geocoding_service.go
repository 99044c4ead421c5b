package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"plantcare-platform/internal/models"
	"plantcare-platform/internal/providers"
	"plantcare-platform/internal/repository"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// GeocodingService resolves free-text location queries through the
// persistent cache first and the configured geocoder second. The cache is
// pure memoization: entries never expire, and a hit satisfies the request
// even when the live provider is down.
type GeocodingService struct {
	repo     repository.PlantRepository
	geocoder providers.Geocoder
	timeout  time.Duration
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewGeocodingService creates a new geocoding service
func NewGeocodingService(
	repo repository.PlantRepository,
	geocoder providers.Geocoder,
	timeout time.Duration,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *GeocodingService {
	return &GeocodingService{
		repo:     repo,
		geocoder: geocoder,
		timeout:  timeout,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// QueryHash returns the deterministic cache key for a raw query string.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Resolve geocodes a query. A nil result with nil error means no backend
// had a match, which is not a failure.
func (s *GeocodingService) Resolve(ctx context.Context, query string) (*models.GeocodeResult, error) {
	hash := QueryHash(query)

	cached, err := s.repo.GeocodeCacheGet(ctx, hash)
	if err == nil {
		s.metrics.GeocodeCacheHits.Inc()
		s.logger.Debug(ctx, "[GEOCODE_CACHE_HIT] Query served from cache", logging.Fields{
			"query_hash": hash,
			"provider":   cached.Provider,
		})
		return cached.Result(), nil
	}

	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		// Cache store unreachable; the live provider can still answer.
		s.logger.Warn(ctx, "[GEOCODE_CACHE_ERROR] Cache lookup failed, falling through to provider", logging.Fields{
			"query_hash": hash,
		})
	}
	s.metrics.GeocodeCacheMisses.Inc()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.geocoder.Geocode(callCtx, query)
	if err != nil {
		return nil, err
	}
	if result == nil {
		s.logger.Debug(ctx, "[GEOCODE_NO_MATCH] Provider found no match", logging.Fields{
			"provider": s.geocoder.Name(),
		})
		return nil, nil
	}

	entry := &models.GeocodeCacheEntry{
		QueryHash: hash,
		Query:     query,
		Latitude:  result.Latitude,
		Longitude: result.Longitude,
		Address:   result.Address,
		Provider:  result.Provider,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.GeocodeCachePut(ctx, entry); err != nil {
		// The answer is still good; losing the memoization is log-worthy only.
		s.logger.Warn(ctx, "[GEOCODE_CACHE_PUT_ERROR] Failed to cache geocode result", logging.Fields{
			"query_hash": hash,
		})
	}

	return result, nil
}

// RegisterLocation geocodes a query and persists the resulting location
// row. Returns nil when no backend matched the query.
func (s *GeocodingService) RegisterLocation(ctx context.Context, query string, indoor bool) (*models.Location, error) {
	result, err := s.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	loc := &models.Location{
		Name:      result.Address,
		Latitude:  result.Latitude,
		Longitude: result.Longitude,
		Indoor:    indoor,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateLocation(ctx, loc); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "[LOCATION_REGISTERED] Location created from geocode", logging.Fields{
		"location_id": loc.ID,
		"provider":    result.Provider,
		"indoor":      indoor,
	})

	return loc, nil
}
