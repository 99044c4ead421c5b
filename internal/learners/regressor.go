package learners

import (
	"math"

	"plantcare-platform/internal/forecast"
)

// FeatureDim is the regressor input width:
// [vpd, temp, rh, irradiance, ventilation].
const FeatureDim = 5

// KRegressor is an online linear model mapping environmental features to
// the drying decay constant k. It is fitted one empirical sample at a time
// across the process lifetime; there is no batch retraining path.
//
// The gradient uses a Huber (outlier-tolerant) loss so one bad empirical k
// from a noisy sensor window cannot yank the coefficients, and the learning
// rate decays with the sample count.
type KRegressor struct {
	Weights     [FeatureDim]float64 `json:"weights"`
	Bias        float64             `json:"bias"`
	SampleCount int64               `json:"sample_count"`
	IsTrained   bool                `json:"is_trained"`

	LR0        float64 `json:"lr0"`
	LRDecay    float64 `json:"lr_decay"`
	HuberDelta float64 `json:"huber_delta"`
}

// NewKRegressor returns an untrained regressor. Bias starts inside the
// plausible decay band so the first few predictions are sane.
func NewKRegressor() *KRegressor {
	return &KRegressor{
		Bias:       0.02,
		LR0:        1e-4,
		LRDecay:    0.01,
		HuberDelta: 0.01,
	}
}

// Trained reports whether at least one sample has been absorbed. Before
// that the model must not be used for prediction.
func (r *KRegressor) Trained() bool {
	return r.IsTrained
}

// PredictK returns the learned decay rate for the feature vector, clamped
// to the physically plausible band. ok is false before the first fit.
func (r *KRegressor) PredictK(x [FeatureDim]float64) (float64, bool) {
	if !r.IsTrained {
		return 0, false
	}
	return forecast.ClampLearnedK(r.raw(x)), true
}

// PartialFit absorbs one (features, empirical k) sample.
func (r *KRegressor) PartialFit(x [FeatureDim]float64, kTarget float64) {
	residual := r.raw(x) - kTarget

	// Huber gradient: quadratic near zero, linear beyond delta.
	grad := residual
	if residual > r.HuberDelta {
		grad = r.HuberDelta
	} else if residual < -r.HuberDelta {
		grad = -r.HuberDelta
	}

	lr := r.LR0 / (1.0 + r.LRDecay*float64(r.SampleCount))
	for i := range r.Weights {
		r.Weights[i] -= lr * grad * x[i]
	}
	r.Bias -= lr * grad

	r.SampleCount++
	r.IsTrained = true
}

func (r *KRegressor) raw(x [FeatureDim]float64) float64 {
	v := r.Bias
	for i := range r.Weights {
		v += r.Weights[i] * x[i]
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return r.Bias
	}
	return v
}
