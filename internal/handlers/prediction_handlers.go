package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"plantcare-platform/internal/models"
	"plantcare-platform/internal/repository"
	"plantcare-platform/internal/services"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// PredictionHandler handles the forecasting and ingestion API endpoints
type PredictionHandler struct {
	predictions *services.PredictionService
	geocoding   *services.GeocodingService
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(
	predictions *services.PredictionService,
	geocoding *services.GeocodingService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		geocoding:   geocoding,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Predict handles POST /api/predict
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/predict").Observe(time.Since(startTime).Seconds())
	}()

	var req services.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.predictions.Predict(ctx, req)
	if err != nil {
		h.handlePredictError(w, r, "/api/predict", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict", r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

// PredictForPlant handles GET and POST /api/predict/{plant_id}
func (h *PredictionHandler) PredictForPlant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/predict/{plant_id}").Observe(time.Since(startTime).Seconds())
	}()

	plantID, err := strconv.ParseInt(mux.Vars(r)["plant_id"], 10, 64)
	if err != nil {
		h.sendError(w, r, "invalid plant_id, expected integer", http.StatusBadRequest)
		return
	}

	result, err := h.predictions.PredictForPlant(ctx, plantID)
	if err != nil {
		h.handlePredictError(w, r, "/api/predict/{plant_id}", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/predict/{plant_id}", r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

// indoorRHRequest is the POST /api/ingest/indoor_rh body
type indoorRHRequest struct {
	LocationID       int64   `json:"location_id"`
	OutdoorRH        float64 `json:"outdoor_rh"`
	IndoorRHObserved float64 `json:"indoor_rh_observed"`
}

// IngestIndoorRH handles POST /api/ingest/indoor_rh
func (h *PredictionHandler) IngestIndoorRH(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/ingest/indoor_rh").Observe(time.Since(startTime).Seconds())
	}()

	var req indoorRHRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	state, err := h.predictions.IngestIndoorRH(ctx, req.LocationID, req.OutdoorRH, req.IndoorRHObserved)
	if err != nil {
		h.handlePredictError(w, r, "/api/ingest/indoor_rh", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/ingest/indoor_rh", r.Method, "200")
	h.sendJSON(w, map[string]float64{
		"a":             state.A,
		"b":             state.B,
		"learning_rate": state.LearningRate,
	}, http.StatusOK)
}

// IngestSoil handles POST /api/ingest/soil
func (h *PredictionHandler) IngestSoil(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/ingest/soil").Observe(time.Since(startTime).Seconds())
	}()

	var req services.SoilIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.predictions.IngestSoil(ctx, req)
	if err != nil {
		h.handlePredictError(w, r, "/api/ingest/soil", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/ingest/soil", r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

// registerLocationRequest is the POST /api/locations body
type registerLocationRequest struct {
	Query  string `json:"query"`
	Indoor bool   `json:"indoor"`
}

// RegisterLocation handles POST /api/locations
func (h *PredictionHandler) RegisterLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/locations").Observe(time.Since(startTime).Seconds())
	}()

	var req registerLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		h.sendError(w, r, "a non-empty query is required", http.StatusBadRequest)
		return
	}

	loc, err := h.geocoding.RegisterLocation(ctx, req.Query, req.Indoor)
	if err != nil {
		h.logger.Error(ctx, "[API_LOCATION_ERROR] Location registration failed", logging.Fields{
			"query": req.Query,
		}, err)
		h.metrics.RecordAPIError("geocode_error", "/api/locations")
		h.sendError(w, r, "failed to resolve location", http.StatusBadGateway)
		return
	}
	if loc == nil {
		h.sendError(w, r, "no match for query", http.StatusNotFound)
		return
	}

	h.metrics.RecordAPIRequest("/api/locations", r.Method, "201")
	h.sendJSON(w, loc, http.StatusCreated)
}

// HealthCheck handles GET /health
func (h *PredictionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.predictions.HealthCheck(ctx); err != nil {
		h.sendJSON(w, map[string]string{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handlePredictError maps service errors onto the API error taxonomy.
func (h *PredictionHandler) handlePredictError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	ctx := r.Context()

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, validation.Message, http.StatusBadRequest)
		return
	}

	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	}

	if errors.Is(err, services.ErrForecastUnavailable) {
		h.metrics.RecordAPIError("forecast_unavailable", endpoint)
		h.sendError(w, r, "forecast unavailable", http.StatusServiceUnavailable)
		return
	}

	h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
		"endpoint": endpoint,
	}, err)
	h.metrics.RecordAPIError("internal_error", endpoint)
	h.sendError(w, r, "internal server error", http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *PredictionHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *PredictionHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all prediction API routes
func (h *PredictionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/predict", h.Predict).Methods("POST")
	router.HandleFunc("/api/predict/{plant_id}", h.PredictForPlant).Methods("GET", "POST")
	router.HandleFunc("/api/ingest/indoor_rh", h.IngestIndoorRH).Methods("POST")
	router.HandleFunc("/api/ingest/soil", h.IngestSoil).Methods("POST")
	router.HandleFunc("/api/locations", h.RegisterLocation).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
