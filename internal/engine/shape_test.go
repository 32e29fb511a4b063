package engine_test

import (
	"math"
	"testing"

	"github.com/soar/padmouse/internal/engine"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestShapeInsideDeadZoneIsZero(t *testing.T) {
	for _, dz := range []float64{0.05, 0.2, 0.5, 0.9} {
		for i := 0; i < 16; i++ {
			angle := float64(i) * math.Pi / 8
			for _, frac := range []float64{0, 0.25, 0.5, 0.99} {
				m := dz * frac
				vx, vy := engine.Shape(m*math.Cos(angle), m*math.Sin(angle), dz, 1.7, false, false)
				assert.Equal(t, 0.0, vx, "dz=%v angle=%v m=%v", dz, angle, m)
				assert.Equal(t, 0.0, vy, "dz=%v angle=%v m=%v", dz, angle, m)
			}
		}
	}
}

func TestShapeFullDeflectionSaturates(t *testing.T) {
	for _, dz := range []float64{0, 0.03, 0.3, 0.9} {
		for _, accel := range []float64{1, 1.4, 2, 5} {
			for i := 0; i < 12; i++ {
				angle := float64(i) * math.Pi / 6
				vx, vy := engine.Shape(math.Cos(angle), math.Sin(angle), dz, accel, false, false)
				assert.InDelta(t, 1.0, math.Hypot(vx, vy), eps, "dz=%v accel=%v angle=%v", dz, accel, angle)
			}
		}
	}
}

func TestShapeClampsBeyondUnitCircle(t *testing.T) {
	vx, vy := engine.Shape(1, 1, 0.1, 2, false, false)
	assert.InDelta(t, 1.0, math.Hypot(vx, vy), eps)
}

func TestShapePreservesDirection(t *testing.T) {
	inputs := [][2]float64{
		{0.5, 0.1}, {-0.3, 0.8}, {-0.7, -0.7}, {0.2, -0.9}, {0.0, 0.6}, {-0.4, 0},
	}
	for _, in := range inputs {
		vx, vy := engine.Shape(in[0], in[1], 0.1, 1.8, false, false)
		assert.InDelta(t, math.Atan2(in[1], in[0]), math.Atan2(vy, vx), eps, "input %v", in)
	}
}

func TestShapeZeroInput(t *testing.T) {
	vx, vy := engine.Shape(0, 0, 0, 1, true, true)
	assert.Equal(t, 0.0, vx)
	assert.Equal(t, 0.0, vy)
}

func TestShapeLinearAndCurve(t *testing.T) {
	// halfway between the dead-zone edge and full deflection
	_, vy := engine.Shape(0, 0.6, 0.2, 1, false, false)
	assert.InDelta(t, 0.5, vy, eps)

	_, vy = engine.Shape(0, 0.6, 0.2, 2, false, false)
	assert.InDelta(t, 0.25, vy, eps)
}

func TestShapeInversion(t *testing.T) {
	vx, vy := engine.Shape(0.5, 0.5, 0, 1, true, false)
	assert.Less(t, vx, 0.0)
	assert.Greater(t, vy, 0.0)

	vx, vy = engine.Shape(0.5, 0.5, 0, 1, false, true)
	assert.Greater(t, vx, 0.0)
	assert.Less(t, vy, 0.0)
}

func TestShapeDefensiveParameters(t *testing.T) {
	vx, vy := engine.Shape(math.NaN(), math.Inf(1), 0.1, 1, false, false)
	assert.Equal(t, 0.0, vx)
	assert.Equal(t, 0.0, vy)

	// dead zone >= 1 would divide by zero; it is clamped instead
	vx, _ = engine.Shape(1, 0, 1.5, 1, false, false)
	assert.InDelta(t, 1.0, vx, eps)

	// acceleration below 1 is raised to linear
	_, vy = engine.Shape(0, 0.6, 0.2, 0.1, false, false)
	assert.InDelta(t, 0.5, vy, eps)

	// NaN parameters fall back to no dead zone and a linear curve
	vx, _ = engine.Shape(0.5, 0, math.NaN(), math.NaN(), false, false)
	assert.InDelta(t, 0.5, vx, eps)
}
