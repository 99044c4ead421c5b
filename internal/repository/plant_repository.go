package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"plantcare-platform/internal/models"
	"plantcare-platform/pkg/database"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// PlantRepository provides data access for the forecasting subsystem.
// Plant and location rows are owned by the registry collaborator and only
// read here; the geocode cache, indoor-RH log, and model state are owned
// by this subsystem.
type PlantRepository interface {
	// Registry reads
	GetPlant(ctx context.Context, plantID int64) (*models.Plant, error)
	GetLocation(ctx context.Context, locationID int64) (*models.Location, error)
	CreateLocation(ctx context.Context, loc *models.Location) error

	// Sensor reads
	RecentSoilHistory(ctx context.Context, plantID int64, limit int) ([]models.SensorPoint, error)
	LatestIndoorRH(ctx context.Context, locationID int64, within time.Duration) (*float64, error)

	// Observation log
	AppendIndoorRH(ctx context.Context, locationID int64, outdoorRH, indoorRH float64) error

	// Geocode cache
	GeocodeCacheGet(ctx context.Context, queryHash string) (*models.GeocodeCacheEntry, error)
	GeocodeCachePut(ctx context.Context, entry *models.GeocodeCacheEntry) error

	// Learner state
	LoadModelState(ctx context.Context, name string) ([]byte, error)
	SaveModelState(ctx context.Context, name string, payload []byte) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// plantRepository implements PlantRepository
type plantRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewPlantRepository creates a new plant repository
func NewPlantRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) PlantRepository {
	return &plantRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetPlant retrieves a plant registry row by ID
func (r *plantRepository) GetPlant(ctx context.Context, plantID int64) (*models.Plant, error) {
	query := `
		SELECT id, name, plant_type, pot_diameter_cm, pot_height_cm,
		       media_type, min_moisture_pct, location_id, created_at
		FROM plants
		WHERE id = $1
	`

	var plant models.Plant
	err := r.db.GetContext(ctx, "get_plant", &plant, query, plantID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "plant",
			ID:       fmt.Sprintf("%d", plantID),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get plant: %w", err)
	}

	return &plant, nil
}

// GetLocation retrieves a location registry row by ID
func (r *plantRepository) GetLocation(ctx context.Context, locationID int64) (*models.Location, error) {
	query := `
		SELECT id, name, latitude, longitude, indoor, created_at
		FROM locations
		WHERE id = $1
	`

	var loc models.Location
	err := r.db.GetContext(ctx, "get_location", &loc, query, locationID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "location",
			ID:       fmt.Sprintf("%d", locationID),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	return &loc, nil
}

// CreateLocation registers a geocoded location
func (r *plantRepository) CreateLocation(ctx context.Context, loc *models.Location) error {
	query := `
		INSERT INTO locations (name, latitude, longitude, indoor, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		loc.Name,
		loc.Latitude,
		loc.Longitude,
		loc.Indoor,
		loc.CreatedAt,
	).Scan(&loc.ID)

	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_LOCATION] Location created", logging.Fields{
		"location_id": loc.ID,
		"name":        loc.Name,
	})

	return nil
}

// RecentSoilHistory returns the newest soil readings for a plant,
// most-recent-first.
func (r *plantRepository) RecentSoilHistory(ctx context.Context, plantID int64, limit int) ([]models.SensorPoint, error) {
	query := `
		SELECT id, plant_id, measured_at, soil_moisture, soil_temp_c, room_temp_c, room_rh
		FROM soil_readings
		WHERE plant_id = $1
		ORDER BY measured_at DESC
		LIMIT $2
	`

	var points []models.SensorPoint
	err := r.db.SelectContext(ctx, "recent_soil_history", &points, query, plantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get soil history: %w", err)
	}

	return points, nil
}

// LatestIndoorRH returns the newest direct indoor-humidity reading at a
// location if one exists inside the freshness window, else nil.
func (r *plantRepository) LatestIndoorRH(ctx context.Context, locationID int64, within time.Duration) (*float64, error) {
	query := `
		SELECT sr.room_rh
		FROM soil_readings sr
		JOIN plants p ON p.id = sr.plant_id
		WHERE p.location_id = $1
		  AND sr.room_rh IS NOT NULL
		  AND sr.measured_at >= $2
		ORDER BY sr.measured_at DESC
		LIMIT 1
	`

	cutoff := time.Now().UTC().Add(-within)

	var rh float64
	err := r.db.GetContext(ctx, "latest_indoor_rh", &rh, query, locationID, cutoff)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest indoor rh: %w", err)
	}

	return &rh, nil
}

// AppendIndoorRH records one calibration observation pair
func (r *plantRepository) AppendIndoorRH(ctx context.Context, locationID int64, outdoorRH, indoorRH float64) error {
	query := `
		INSERT INTO indoor_rh_log (location_id, outdoor_rh, indoor_rh, observed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, "append_indoor_rh", query,
		locationID, outdoorRH, indoorRH, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append indoor rh observation: %w", err)
	}

	return nil
}

// GeocodeCacheGet looks up a cached geocoder answer by query hash
func (r *plantRepository) GeocodeCacheGet(ctx context.Context, queryHash string) (*models.GeocodeCacheEntry, error) {
	query := `
		SELECT query_hash, query, latitude, longitude, address, provider, updated_at
		FROM geocode_cache
		WHERE query_hash = $1
	`

	var entry models.GeocodeCacheEntry
	err := r.db.GetContext(ctx, "geocode_cache_get", &entry, query, queryHash)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "geocode_cache_entry",
			ID:       queryHash,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get geocode cache entry: %w", err)
	}

	return &entry, nil
}

// GeocodeCachePut upserts a cache entry keyed by query hash
func (r *plantRepository) GeocodeCachePut(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	query := `
		INSERT INTO geocode_cache (query_hash, query, latitude, longitude, address, provider, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_hash) DO UPDATE SET
			query = EXCLUDED.query,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			address = EXCLUDED.address,
			provider = EXCLUDED.provider,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "geocode_cache_put", query,
		entry.QueryHash,
		entry.Query,
		entry.Latitude,
		entry.Longitude,
		entry.Address,
		entry.Provider,
		entry.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert geocode cache entry: %w", err)
	}

	return nil
}

// LoadModelState reads a learner's persisted coefficients; nil payload
// when the model has never been saved (cold start).
func (r *plantRepository) LoadModelState(ctx context.Context, name string) ([]byte, error) {
	query := `
		SELECT state
		FROM model_state
		WHERE name = $1
	`

	var raw json.RawMessage
	err := r.db.GetContext(ctx, "load_model_state", &raw, query, name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model state %q: %w", name, err)
	}

	return raw, nil
}

// SaveModelState upserts a learner's coefficients
func (r *plantRepository) SaveModelState(ctx context.Context, name string, payload []byte) error {
	query := `
		INSERT INTO model_state (name, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "save_model_state", query,
		name, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save model state %q: %w", name, err)
	}

	return nil
}

// HealthCheck performs a repository health check
func (r *plantRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
