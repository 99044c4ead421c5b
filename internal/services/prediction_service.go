package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"plantcare-platform/internal/features"
	"plantcare-platform/internal/forecast"
	"plantcare-platform/internal/learners"
	"plantcare-platform/internal/models"
	"plantcare-platform/internal/providers"
	"plantcare-platform/internal/repository"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// ErrForecastUnavailable is returned when outdoor forecast data cannot be
// obtained. There is no safe numeric fallback for forecast weather, so the
// predict request fails with this typed error instead of guessing.
var ErrForecastUnavailable = errors.New("forecast unavailable")

// Freshness window inside which a direct indoor-RH sensor reading beats
// the calibrated estimate.
const indoorRHFreshness = 2 * time.Hour

// soilHistoryWindow is how many recent readings a plant-bound predict
// pulls for the empirical decay fit.
const soilHistoryWindow = 24

// PredictRequest is the stateless predict input: the caller supplies
// everything, nothing is resolved server-side.
type PredictRequest struct {
	History  []models.SensorPoint  `json:"history"`
	Forecast []models.WeatherPoint `json:"forecast"`
	Meta     models.PotMeta        `json:"meta"`
}

// SoilIngestRequest carries a fresh soil-moisture window and the weather
// under which it was observed, for online regressor training.
type SoilIngestRequest struct {
	PlantID         int64                `json:"plant_id"`
	SoilSeries      []models.SensorPoint `json:"soil_series"`
	WeatherSnapshot models.WeatherPoint  `json:"weather_snapshot"`
	Ventilated      bool                 `json:"ventilated"`
}

// SoilIngestResult reports the empirical decay rate absorbed, if any.
type SoilIngestResult struct {
	EmpiricalK *float64 `json:"empirical_k"`
	Trained    bool     `json:"regressor_trained"`
}

// PredictionService orchestrates feature extraction, rate selection, the
// physical forecaster, and the online learners. It owns the process-wide
// learner hub; external provider calls never run inside its lock.
type PredictionService struct {
	repo    repository.PlantRepository
	weather providers.WeatherProvider
	hub     *learners.Hub
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	horizonHours   int
	weatherTimeout time.Duration
}

// NewPredictionService creates a new prediction service
func NewPredictionService(
	repo repository.PlantRepository,
	weather providers.WeatherProvider,
	hub *learners.Hub,
	horizonHours int,
	weatherTimeout time.Duration,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PredictionService {
	if horizonHours <= 0 {
		horizonHours = forecast.DefaultHorizonHours
	}
	return &PredictionService{
		repo:           repo,
		weather:        weather,
		hub:            hub,
		horizonHours:   horizonHours,
		weatherTimeout: weatherTimeout,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// Hub exposes the learner hub for the state lifecycle service.
func (s *PredictionService) Hub() *learners.Hub {
	return s.hub
}

// Predict answers the stateless request shape: history, forecast, and pot
// metadata all supplied by the caller.
func (s *PredictionService) Predict(ctx context.Context, req PredictRequest) (*models.PredictionResult, error) {
	if len(req.History) == 0 {
		return nil, &models.ValidationError{
			Field:   "history",
			Message: "at least one soil-moisture reading is required",
		}
	}
	if len(req.Forecast) == 0 {
		return nil, &models.ValidationError{
			Field:   "forecast",
			Message: "at least one weather point is required",
		}
	}

	return s.predict(ctx, req.History, req.Forecast, req.Meta)
}

// PredictForPlant answers the plant-bound request shape: the plant and its
// location are resolved from the registry, outdoor weather is fetched from
// the provider, and indoor locations get a calibrated humidity estimate
// when no fresh direct indoor reading exists.
func (s *PredictionService) PredictForPlant(ctx context.Context, plantID int64) (*models.PredictionResult, error) {
	plant, err := s.repo.GetPlant(ctx, plantID)
	if err != nil {
		return nil, err
	}

	location, err := s.repo.GetLocation(ctx, plant.LocationID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.RecentSoilHistory(ctx, plantID, soilHistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, &models.ValidationError{
			Field:   "plant_id",
			Value:   fmt.Sprintf("%d", plantID),
			Message: "no soil-moisture history recorded for this plant",
		}
	}

	wx, err := s.fetchForecast(ctx, location.Latitude, location.Longitude)
	if err != nil {
		s.logger.Error(ctx, "[PREDICT_FORECAST_ERROR] Weather fetch failed", logging.Fields{
			"plant_id":    plantID,
			"location_id": location.ID,
		}, err)
		return nil, fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}

	if location.Indoor {
		wx = s.calibrateIndoor(ctx, location.ID, wx)
	}

	return s.predict(ctx, history, wx, plant.Meta())
}

// fetchForecast wraps the provider call in its own timeout so a slow
// meteorological API fails the request instead of hanging it.
func (s *PredictionService) fetchForecast(ctx context.Context, lat, lon float64) ([]models.WeatherPoint, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.weatherTimeout)
	defer cancel()
	return s.weather.HourlyForecast(callCtx, lat, lon, s.horizonHours)
}

// calibrateIndoor rewrites outdoor humidity to the calibrated indoor
// estimate, unless a fresh direct indoor reading makes the model moot.
func (s *PredictionService) calibrateIndoor(ctx context.Context, locationID int64, wx []models.WeatherPoint) []models.WeatherPoint {
	direct, err := s.repo.LatestIndoorRH(ctx, locationID, indoorRHFreshness)
	if err != nil {
		s.logger.Warn(ctx, "[PREDICT_INDOOR_RH_ERROR] Direct reading lookup failed, using calibrator", logging.Fields{
			"location_id": locationID,
		})
	}

	out := make([]models.WeatherPoint, len(wx))
	copy(out, wx)
	for i := range out {
		if direct != nil {
			out[i].RH = *direct
		} else {
			out[i].RH = s.hub.CalibrateRH(out[i].RH)
		}
	}
	return out
}

// predict is the shared forecasting core behind both request shapes.
func (s *PredictionService) predict(ctx context.Context, history []models.SensorPoint, wx []models.WeatherPoint, meta models.PotMeta) (*models.PredictionResult, error) {
	timer := time.Now()
	defer func() {
		s.metrics.PredictionDuration.Observe(time.Since(timer).Seconds())
	}()

	// Current conditions come from the last forecast point.
	current := wx[len(wx)-1]
	vpd := features.VPD(current.TempC, current.RH)
	featVec := features.FromWeather(current, meta.Ventilated)

	// Decay-rate candidates: freshly observed empirical fit, the learned
	// regressor, and always the rule of thumb.
	var empirical *float64
	thetaInf := math.Max(0, meta.MinMoisturePct-5)
	if est, ok := features.RollingKEstimate(history, 1.0); ok {
		empirical = &est.K
		thetaInf = est.ThetaInf
	}

	var learned *float64
	if k, ok := s.hub.PredictK(featVec); ok {
		learned = &k
	}

	k, source := forecast.SelectK(empirical, learned, forecast.RuleOfThumbK(vpd))

	latest := history[0]
	for _, p := range history[1:] {
		if p.MeasuredAt.After(latest.MeasuredAt) {
			latest = p
		}
	}
	lastSoil := latest.SoilMoisture

	path := forecast.SoilPath(lastSoil, thetaInf, k, s.horizonHours)
	p50, p90 := forecast.ETAToThreshold(path, meta.MinMoisturePct, 1.0)

	s.metrics.RecordPrediction(source)
	if math.IsInf(p50, 1) {
		s.metrics.ThresholdNotCrossed.Inc()
	} else {
		s.metrics.PredictionETAHours.Observe(p50)
	}

	s.logger.Debug(ctx, "[PREDICT] Soil path forecast computed", logging.Fields{
		"k_per_hour": k,
		"k_source":   source,
		"vpd_kpa":    vpd,
		"last_soil":  lastSoil,
		"theta_inf":  thetaInf,
	})

	return &models.PredictionResult{
		ETAHoursP50: p50,
		ETAHoursP90: p90,
		Path:        path,
		KPerHour:    k,
		KSource:     source,
	}, nil
}

// IngestIndoorRH absorbs one paired humidity observation into the
// calibrator and appends it to the observation log. Returns the updated
// coefficients for observability.
func (s *PredictionService) IngestIndoorRH(ctx context.Context, locationID int64, outdoorRH, indoorRH float64) (learners.RhCalibrator, error) {
	if outdoorRH < 0 || outdoorRH > 100 || indoorRH < 0 || indoorRH > 100 {
		return learners.RhCalibrator{}, &models.ValidationError{
			Field:   "rh",
			Message: "relative humidity must be between 0 and 100",
		}
	}

	if err := s.repo.AppendIndoorRH(ctx, locationID, outdoorRH, indoorRH); err != nil {
		return learners.RhCalibrator{}, err
	}

	state := s.hub.UpdateCalibrator(outdoorRH, indoorRH)
	s.metrics.RecordLearnerUpdate("rh_calibrator")

	s.logger.Info(ctx, "[INGEST_INDOOR_RH] Calibrator updated", logging.Fields{
		"location_id": locationID,
		"outdoor_rh":  outdoorRH,
		"indoor_rh":   indoorRH,
		"a":           state.A,
		"b":           state.B,
	})

	return state, nil
}

// IngestSoil derives an empirical decay rate from a fresh soil window and,
// when one is derivable, feeds it to the regressor. A degenerate window is
// a normal outcome, not an error.
func (s *PredictionService) IngestSoil(ctx context.Context, req SoilIngestRequest) (*SoilIngestResult, error) {
	est, ok := features.RollingKEstimate(req.SoilSeries, 1.0)
	if !ok {
		s.logger.Debug(ctx, "[INGEST_SOIL_DEGENERATE] No empirical estimate derivable", logging.Fields{
			"plant_id": req.PlantID,
			"points":   len(req.SoilSeries),
		})
		reg := s.hub.RegressorState()
		return &SoilIngestResult{Trained: reg.Trained()}, nil
	}

	featVec := features.FromWeather(req.WeatherSnapshot, req.Ventilated)
	s.hub.FitRegressor(featVec, est.K)
	s.metrics.RecordLearnerUpdate("k_regressor")

	reg := s.hub.RegressorState()
	s.metrics.LearnerSamplesSeen.WithLabelValues("k_regressor").Set(float64(reg.SampleCount))

	s.logger.Info(ctx, "[INGEST_SOIL] Regressor fitted with empirical decay", logging.Fields{
		"plant_id":    req.PlantID,
		"empirical_k": est.K,
		"theta_inf":   est.ThetaInf,
		"samples":     reg.SampleCount,
	})

	return &SoilIngestResult{EmpiricalK: &est.K, Trained: reg.Trained()}, nil
}

// HealthCheck verifies downstream dependency health.
func (s *PredictionService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
