package learners

// RhCalibrator maps outdoor relative humidity to an indoor estimate with a
// two-coefficient linear model, refined one observation at a time. The
// prior leans on indoor air usually being drier than outdoor air.
type RhCalibrator struct {
	A            float64 `json:"a"`
	B            float64 `json:"b"`
	LearningRate float64 `json:"learning_rate"`
}

// Indoor humidity plausibility bounds applied to every prediction.
const (
	minIndoorRH = 15.0
	maxIndoorRH = 85.0
)

// NewRhCalibrator returns a calibrator at the default prior. The learning
// rate must stay below ~1e-4 for the raw-gradient step to contract at
// humidity-scale inputs; larger rates oscillate.
func NewRhCalibrator() *RhCalibrator {
	return &RhCalibrator{A: 0.8, B: 5.0, LearningRate: 1e-4}
}

// Predict estimates indoor RH from outdoor RH. The output is clamped to a
// plausible indoor band regardless of model drift or absurd inputs.
func (c *RhCalibrator) Predict(outdoorRH float64) float64 {
	v := c.A*outdoorRH + c.B
	if v < minIndoorRH {
		return minIndoorRH
	}
	if v > maxIndoorRH {
		return maxIndoorRH
	}
	return v
}

// Update applies one stochastic-gradient step on squared error against an
// observed indoor reading. Called only when a real indoor sensor reading
// exists; forecast-only requests never touch it.
func (c *RhCalibrator) Update(outdoorRH, indoorObserved float64) {
	err := indoorObserved - c.Predict(outdoorRH)
	c.A += c.LearningRate * err * outdoorRH
	c.B += c.LearningRate * err
}
