package learners

import (
	"math"
	"testing"
)

func TestRhCalibrator_Predict(t *testing.T) {
	c := NewRhCalibrator()

	tests := []struct {
		name      string
		outdoorRH float64
		check     func(t *testing.T, got float64)
	}{
		{
			name:      "prior at 50 percent outdoor",
			outdoorRH: 50,
			check: func(t *testing.T, got float64) {
				// 0.8*50 + 5 = 45
				if math.Abs(got-45) > 1e-9 {
					t.Errorf("Predict(50) = %v, want 45", got)
				}
			},
		},
		{
			name:      "absurd input clamps at the ceiling",
			outdoorRH: 1000,
			check: func(t *testing.T, got float64) {
				if got != maxIndoorRH {
					t.Errorf("Predict(1000) = %v, want %v", got, maxIndoorRH)
				}
			},
		},
		{
			name:      "very dry input clamps at the floor",
			outdoorRH: -50,
			check: func(t *testing.T, got float64) {
				if got != minIndoorRH {
					t.Errorf("Predict(-50) = %v, want %v", got, minIndoorRH)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, c.Predict(tt.outdoorRH))
		})
	}
}

func TestRhCalibrator_UpdateMovesTowardObservation(t *testing.T) {
	c := NewRhCalibrator()
	outdoor, observed := 50.0, 40.0

	before := math.Abs(c.Predict(outdoor) - observed)
	c.Update(outdoor, observed)
	afterOne := math.Abs(c.Predict(outdoor) - observed)
	if afterOne >= before {
		t.Fatalf("one update did not shrink error: before %v, after %v", before, afterOne)
	}

	for i := 0; i < 200; i++ {
		c.Update(outdoor, observed)
	}
	if final := math.Abs(c.Predict(outdoor) - observed); final > 0.5 {
		t.Errorf("calibrator did not converge: residual error %v", final)
	}
}

func TestKRegressor_UntrainedRefusesToPredict(t *testing.T) {
	r := NewKRegressor()

	if r.Trained() {
		t.Error("fresh regressor reports trained")
	}
	if _, ok := r.PredictK([FeatureDim]float64{1.2, 22, 45, 150, 0}); ok {
		t.Error("untrained regressor returned a prediction")
	}
}

func TestKRegressor_PartialFit(t *testing.T) {
	r := NewKRegressor()
	x := [FeatureDim]float64{1.2, 22, 45, 150, 0}

	r.PartialFit(x, 0.03)

	if !r.Trained() {
		t.Fatal("regressor not trained after a fit")
	}
	if r.SampleCount != 1 {
		t.Errorf("SampleCount = %v, want 1", r.SampleCount)
	}

	k, ok := r.PredictK(x)
	if !ok {
		t.Fatal("trained regressor refused to predict")
	}
	if k < 0.003 || k > 0.08 {
		t.Errorf("PredictK = %v, outside the plausible band", k)
	}
}

func TestKRegressor_RepeatedFitsConverge(t *testing.T) {
	r := NewKRegressor()
	x := [FeatureDim]float64{1.0, 20, 50, 100, 1}
	target := 0.045

	for i := 0; i < 5000; i++ {
		r.PartialFit(x, target)
	}

	k, ok := r.PredictK(x)
	if !ok {
		t.Fatal("regressor refused to predict after fitting")
	}
	before := math.Abs(0.02 - target)
	if math.Abs(k-target) >= before {
		t.Errorf("PredictK = %v did not move toward target %v from prior 0.02", k, target)
	}
}

func TestHub_StateRoundTrip(t *testing.T) {
	hub := NewHub()
	hub.UpdateCalibrator(60, 48)
	hub.FitRegressor([FeatureDim]float64{1.5, 25, 40, 300, 0}, 0.05)

	payloads, wasDirty, err := hub.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	if !wasDirty {
		t.Error("hub not dirty after updates")
	}
	if _, ok := payloads[StateCalibrator]; !ok {
		t.Errorf("missing %q payload", StateCalibrator)
	}
	if _, ok := payloads[StateRegressor]; !ok {
		t.Errorf("missing %q payload", StateRegressor)
	}

	restored := NewHub()
	if err := restored.RestoreState(payloads); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}

	if got, want := restored.CalibratorState(), hub.CalibratorState(); got != want {
		t.Errorf("calibrator state = %+v, want %+v", got, want)
	}
	if got, want := restored.RegressorState(), hub.RegressorState(); got != want {
		t.Errorf("regressor state = %+v, want %+v", got, want)
	}
}

func TestHub_MarshalClearsDirty(t *testing.T) {
	hub := NewHub()
	hub.UpdateCalibrator(60, 48)

	if _, wasDirty, err := hub.MarshalState(); err != nil || !wasDirty {
		t.Fatalf("first marshal: wasDirty=%v, err=%v", wasDirty, err)
	}
	if _, wasDirty, err := hub.MarshalState(); err != nil || wasDirty {
		t.Fatalf("second marshal: wasDirty=%v, err=%v, want clean", wasDirty, err)
	}
}

func TestHub_RestoreStatePartial(t *testing.T) {
	hub := NewHub()
	hub.FitRegressor([FeatureDim]float64{1.0, 20, 50, 100, 0}, 0.04)
	payloads, _, err := hub.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	delete(payloads, StateCalibrator)

	restored := NewHub()
	if err := restored.RestoreState(payloads); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}

	if got := restored.CalibratorState(); got != *NewRhCalibrator() {
		t.Errorf("calibrator = %+v, want cold-start prior", got)
	}
	if got := restored.RegressorState(); got != hub.RegressorState() {
		t.Errorf("regressor state = %+v, want restored from payload", got)
	}
}
