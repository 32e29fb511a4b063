package engine

import (
	"math"

	"github.com/soar/padmouse/internal/config"
)

// Shape converts a raw stick reading into a velocity vector of magnitude in
// [0,1]. Readings inside the dead zone yield (0,0); the dead-zone edge maps
// to zero and full deflection to one, with the magnitude raised to the
// acceleration exponent. Direction is preserved. Parameters outside their
// ranges are clamped.
func Shape(rawX, rawY, deadZone, acceleration float64, invertX, invertY bool) (vx, vy float64) {
	rawX, rawY = finiteOrZero(rawX), finiteOrZero(rawY)
	deadZone = clampFinite(deadZone, 0, 0, config.MaxDeadZone)
	acceleration = clampFinite(acceleration, 1, config.MinAcceleration, config.MaxAcceleration)

	if invertX {
		rawX = -rawX
	}
	if invertY {
		rawY = -rawY
	}

	m := math.Hypot(rawX, rawY)
	if m == 0 || m < deadZone {
		return 0, 0
	}

	scaled := (m - deadZone) / (1 - deadZone)
	scaled = math.Max(0, math.Min(1, scaled))
	curved := math.Pow(scaled, acceleration)

	return rawX / m * curved, rawY / m * curved
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clampFinite(v, fallback, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}
