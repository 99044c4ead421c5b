package models

import (
	"encoding/json"
	"math"
	"time"
)

// SensorPoint is a single soil-moisture reading from the ingestion pipeline.
// Optional channels are pointers; not every pot has a soil thermometer or a
// room sensor attached. Histories are consumed most-recent-first.
type SensorPoint struct {
	ID           int64     `json:"id,omitempty" db:"id"`
	PlantID      int64     `json:"plant_id,omitempty" db:"plant_id"`
	MeasuredAt   time.Time `json:"measured_at" db:"measured_at"`
	SoilMoisture float64   `json:"soil_moisture" db:"soil_moisture"`
	SoilTempC    *float64  `json:"soil_temp_c,omitempty" db:"soil_temp_c"`
	RoomTempC    *float64  `json:"room_temp_c,omitempty" db:"room_temp_c"`
	RoomRH       *float64  `json:"room_rh,omitempty" db:"room_rh"`
}

// WeatherPoint is one forecast hour from a weather provider.
type WeatherPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	TempC      float64   `json:"temp_c"`
	RH         float64   `json:"rh"`
	Irradiance *float64  `json:"irradiance,omitempty"` // W/m², absent for some providers
}

// IrradianceOrZero returns the irradiance channel, treating absence as zero.
func (w *WeatherPoint) IrradianceOrZero() float64 {
	if w.Irradiance == nil {
		return 0
	}
	return *w.Irradiance
}

// Plant is the registry row this subsystem reads. Pot geometry and the
// watering threshold come from the plant-care product's registration flow.
type Plant struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	PlantType      string    `json:"plant_type" db:"plant_type"`
	PotDiameterCm  float64   `json:"pot_diameter_cm" db:"pot_diameter_cm"`
	PotHeightCm    float64   `json:"pot_height_cm" db:"pot_height_cm"`
	MediaType      string    `json:"media_type" db:"media_type"`
	MinMoisturePct float64   `json:"min_moisture_pct" db:"min_moisture_pct"`
	LocationID     int64     `json:"location_id" db:"location_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PotMeta is the subset of Plant the forecaster needs; the stateless predict
// endpoint accepts it directly without a registry lookup.
type PotMeta struct {
	PlantType      string  `json:"plant_type"`
	PotDiameterCm  float64 `json:"pot_diameter_cm"`
	PotHeightCm    float64 `json:"pot_height_cm"`
	MediaType      string  `json:"media_type"`
	MinMoisturePct float64 `json:"min_moisture_pct"`
	Ventilated     bool    `json:"ventilated"`
}

// Meta extracts the forecaster-facing metadata from a registry row.
func (p *Plant) Meta() PotMeta {
	return PotMeta{
		PlantType:      p.PlantType,
		PotDiameterCm:  p.PotDiameterCm,
		PotHeightCm:    p.PotHeightCm,
		MediaType:      p.MediaType,
		MinMoisturePct: p.MinMoisturePct,
	}
}

// Location is a geocoded place owned by the location registry.
type Location struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Indoor    bool      `json:"indoor" db:"indoor"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GeocodeResult is a provider's answer for a free-text query.
type GeocodeResult struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Address   string  `json:"address"`
	Provider  string  `json:"provider"`
}

// GeocodeCacheEntry memoizes a geocoder answer keyed by the SHA-256 hex
// digest of the raw query text. Entries are upserted, never expired.
type GeocodeCacheEntry struct {
	QueryHash string    `db:"query_hash"`
	Query     string    `db:"query"`
	Latitude  float64   `db:"latitude"`
	Longitude float64   `db:"longitude"`
	Address   string    `db:"address"`
	Provider  string    `db:"provider"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Result converts a cache row back into the provider answer shape.
func (e *GeocodeCacheEntry) Result() *GeocodeResult {
	return &GeocodeResult{
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		Address:   e.Address,
		Provider:  e.Provider,
	}
}

// PredictionResult is the forecast output. ETA values are hours from now;
// math.Inf(1) means the threshold is never crossed inside the horizon, and
// serializes as null with WillCross=false because JSON has no infinity.
type PredictionResult struct {
	ETAHoursP50 float64   `json:"-"`
	ETAHoursP90 float64   `json:"-"`
	Path        []float64 `json:"path"`
	KPerHour    float64   `json:"k_per_hour"`
	KSource     string    `json:"k_source"`
}

// predictionResultJSON is the wire shape for PredictionResult.
type predictionResultJSON struct {
	ETAHoursP50 *float64  `json:"eta_hours_p50"`
	ETAHoursP90 *float64  `json:"eta_hours_p90"`
	WillCross   bool      `json:"will_cross"`
	Path        []float64 `json:"path"`
	KPerHour    float64   `json:"k_per_hour"`
	KSource     string    `json:"k_source"`
}

// MarshalJSON maps infinite ETAs to null.
func (r PredictionResult) MarshalJSON() ([]byte, error) {
	out := predictionResultJSON{
		WillCross: !math.IsInf(r.ETAHoursP50, 1),
		Path:      r.Path,
		KPerHour:  r.KPerHour,
		KSource:   r.KSource,
	}
	if out.WillCross {
		p50, p90 := r.ETAHoursP50, r.ETAHoursP90
		out.ETAHoursP50 = &p50
		out.ETAHoursP90 = &p90
	}
	return json.Marshal(out)
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent.
func (e *ValidationError) IsTransient() bool {
	return false
}
