// Package features computes the environmental inputs of the drying model:
// vapor-pressure deficit from air state, and an empirical decay constant
// fitted against a recent soil-moisture window.
package features

import (
	"math"
	"sort"

	"plantcare-platform/internal/models"
)

// MinSeriesLen is the shortest soil-moisture window a decay fit accepts.
const MinSeriesLen = 5

// VPD returns the vapor-pressure deficit in kPa for the given air
// temperature (°C) and relative humidity (%), using the Tetens
// saturation-vapor-pressure approximation.
func VPD(tempC, rhPct float64) float64 {
	es := 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
	ea := es * rhPct / 100.0
	return math.Max(0, es-ea)
}

// KEstimate is an empirical exponential-decay fit over a sensor window.
type KEstimate struct {
	K        float64 // per hour, >= 0
	ThetaInf float64 // asymptotic moisture the fit assumed
	N        int     // points used
}

// RollingKEstimate fits theta(t) = theta_inf + (theta_0-theta_inf)*exp(-k*t)
// to a recent moisture window by linearizing through z = ln(theta-theta_inf)
// and taking the OLS slope against elapsed hours. The asymptote is pinned
// just below the window minimum so every log argument stays positive.
//
// Returns ok=false when the window has fewer than MinSeriesLen points or any
// non-positive reading; callers treat that as "no empirical estimate this
// cycle", not as an error.
func RollingKEstimate(series []models.SensorPoint, dtHours float64) (KEstimate, bool) {
	if len(series) < MinSeriesLen || dtHours <= 0 {
		return KEstimate{}, false
	}

	pts := make([]models.SensorPoint, len(series))
	copy(pts, series)
	sort.Slice(pts, func(i, j int) bool {
		return pts[i].MeasuredAt.Before(pts[j].MeasuredAt)
	})

	minY := pts[0].SoilMoisture
	for _, p := range pts {
		if p.SoilMoisture <= 0 {
			return KEstimate{}, false
		}
		if p.SoilMoisture < minY {
			minY = p.SoilMoisture
		}
	}

	thetaInf := math.Max(0, minY-1.0)

	// OLS fit of z = a - k*t with t in elapsed hours.
	n := float64(len(pts))
	var sumT, sumZ, sumTZ, sumT2 float64
	for i, p := range pts {
		y := p.SoilMoisture - thetaInf
		if y <= 0 {
			return KEstimate{}, false
		}
		t := float64(i) * dtHours
		z := math.Log(y)
		sumT += t
		sumZ += z
		sumTZ += t * z
		sumT2 += t * t
	}

	denom := n*sumT2 - sumT*sumT
	if math.Abs(denom) < 1e-12 {
		return KEstimate{}, false
	}
	slope := (n*sumTZ - sumT*sumZ) / denom

	return KEstimate{
		K:        math.Max(0, -slope),
		ThetaInf: thetaInf,
		N:        len(pts),
	}, true
}

// Vector assembles the regressor feature layout:
// [vpd, temp, rh, irradiance, ventilation].
func Vector(vpd, tempC, rhPct, irradiance float64, ventilated bool) [5]float64 {
	vent := 0.0
	if ventilated {
		vent = 1.0
	}
	return [5]float64{vpd, tempC, rhPct, irradiance, vent}
}

// FromWeather derives the feature vector for current conditions from the
// most recent forecast point.
func FromWeather(w models.WeatherPoint, ventilated bool) [5]float64 {
	return Vector(VPD(w.TempC, w.RH), w.TempC, w.RH, w.IrradianceOrZero(), ventilated)
}
