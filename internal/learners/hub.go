package learners

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State names used as persistence keys.
const (
	StateCalibrator = "rh_calibrator"
	StateRegressor  = "k_regressor"
)

// Hub owns the process-wide learner singletons. Every coefficient mutation
// goes through the write lock; concurrent in-place float updates are a data
// race. Readers take value snapshots, so a read observes either the state
// before or after an update, never a partial write.
type Hub struct {
	mu         sync.RWMutex
	calibrator *RhCalibrator
	regressor  *KRegressor
	dirty      bool
}

// NewHub returns a hub with both learners at their priors.
func NewHub() *Hub {
	return &Hub{
		calibrator: NewRhCalibrator(),
		regressor:  NewKRegressor(),
	}
}

// CalibrateRH predicts indoor RH from outdoor RH against a snapshot of the
// calibrator coefficients.
func (h *Hub) CalibrateRH(outdoorRH float64) float64 {
	h.mu.RLock()
	c := *h.calibrator
	h.mu.RUnlock()
	return c.Predict(outdoorRH)
}

// PredictK returns the learned decay rate, ok=false while untrained.
func (h *Hub) PredictK(x [FeatureDim]float64) (float64, bool) {
	h.mu.RLock()
	r := *h.regressor
	h.mu.RUnlock()
	return r.PredictK(x)
}

// UpdateCalibrator absorbs one indoor-RH observation and returns the
// resulting coefficients for observability.
func (h *Hub) UpdateCalibrator(outdoorRH, indoorObserved float64) RhCalibrator {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calibrator.Update(outdoorRH, indoorObserved)
	h.dirty = true
	return *h.calibrator
}

// FitRegressor absorbs one empirical decay sample.
func (h *Hub) FitRegressor(x [FeatureDim]float64, kTarget float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regressor.PartialFit(x, kTarget)
	h.dirty = true
}

// CalibratorState returns a copy of the calibrator coefficients.
func (h *Hub) CalibratorState() RhCalibrator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.calibrator
}

// RegressorState returns a copy of the regressor coefficients.
func (h *Hub) RegressorState() KRegressor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.regressor
}

// MarshalState serializes both learners for the durable store and clears
// the dirty flag. wasDirty tells the checkpoint job whether a write is
// worth issuing.
func (h *Hub) MarshalState() (payloads map[string][]byte, wasDirty bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cal, err := json.Marshal(h.calibrator)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal calibrator state: %w", err)
	}
	reg, err := json.Marshal(h.regressor)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal regressor state: %w", err)
	}

	wasDirty = h.dirty
	h.dirty = false

	return map[string][]byte{
		StateCalibrator: cal,
		StateRegressor:  reg,
	}, wasDirty, nil
}

// RestoreState reloads learner coefficients saved by MarshalState. Missing
// entries leave the corresponding learner at its prior (cold start).
func (h *Hub) RestoreState(payloads map[string][]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if raw, ok := payloads[StateCalibrator]; ok {
		cal := NewRhCalibrator()
		if err := json.Unmarshal(raw, cal); err != nil {
			return fmt.Errorf("failed to restore calibrator state: %w", err)
		}
		h.calibrator = cal
	}
	if raw, ok := payloads[StateRegressor]; ok {
		reg := NewKRegressor()
		if err := json.Unmarshal(raw, reg); err != nil {
			return fmt.Errorf("failed to restore regressor state: %w", err)
		}
		h.regressor = reg
	}

	h.dirty = false
	return nil
}
