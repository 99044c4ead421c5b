// Package forecast holds the baseline physical drying model: exponential
// decay toward an equilibrium moisture, rate selection, and threshold ETA.
package forecast

import "math"

const (
	// DefaultHorizonHours is how far ahead the soil path is projected.
	DefaultHorizonHours = 72

	// Rule-of-thumb decay band, per hour.
	MinFallbackK = 0.005
	MaxFallbackK = 0.06

	// Plausibility band for a learned decay rate, per hour.
	MinLearnedK = 0.003
	MaxLearnedK = 0.08

	// P90Factor scales the model crossing time into the earlier,
	// conservative warning time. A fixed safety margin, not a real
	// percentile.
	P90Factor = 0.8
)

// Decay-rate source tags reported alongside a prediction.
const (
	KSourceEmpirical = "empirical"
	KSourceLearned   = "learned"
	KSourceFallback  = "rule_of_thumb"
)

// RuleOfThumbK maps VPD to a crude decay rate. It is the guaranteed
// fallback: whatever the learners know, the system can always forecast.
func RuleOfThumbK(vpdKPa float64) float64 {
	return clamp(0.015+0.02*vpdKPa, MinFallbackK, MaxFallbackK)
}

// SelectK applies the decay-rate precedence: a freshly observed empirical
// rate beats a learned prediction, which beats the rule of thumb. Returns
// the chosen rate and its source tag.
func SelectK(empirical, learned *float64, fallback float64) (float64, string) {
	if empirical != nil {
		return *empirical, KSourceEmpirical
	}
	if learned != nil {
		return *learned, KSourceLearned
	}
	return fallback, KSourceFallback
}

// SoilPath projects hourly soil moisture for t = 1..horizonHours:
//
//	path[t-1] = thetaInf + (lastPct - thetaInf) * exp(-k*t)
//
// The path decays monotonically toward thetaInf when starting above it and
// stays flat when already at the asymptote.
func SoilPath(lastPct, thetaInf, kPerHour float64, horizonHours int) []float64 {
	if horizonHours <= 0 {
		return nil
	}
	path := make([]float64, horizonHours)
	for t := 1; t <= horizonHours; t++ {
		path[t-1] = thetaInf + (lastPct-thetaInf)*math.Exp(-kPerHour*float64(t))
	}
	return path
}

// ETAToThreshold scans a projected path for the first index at or below
// thetaMin. P50 is that index converted to hours; P90 is P50*P90Factor.
// Both are +Inf when the path never crosses inside the horizon, which is a
// valid "no watering needed" answer rather than an error.
func ETAToThreshold(path []float64, thetaMin, dtHours float64) (p50, p90 float64) {
	for i, v := range path {
		if v <= thetaMin {
			p50 = float64(i) * dtHours
			return p50, p50 * P90Factor
		}
	}
	inf := math.Inf(1)
	return inf, inf
}

// ClampLearnedK bounds a regressor output to the physically plausible band.
func ClampLearnedK(k float64) float64 {
	return clamp(k, MinLearnedK, MaxLearnedK)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
