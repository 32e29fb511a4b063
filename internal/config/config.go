// Package config holds the tunable parameters of the translation engine and
// their on-disk form.
package config

import (
	"math"
	"time"
)

// Config is copied by value into the engine. It originates from
// user-editable state, so consumers call Sanitize before use.
type Config struct {
	MouseSensitivity  float64 `json:"mouseSensitivity"`
	ScrollSensitivity float64 `json:"scrollSensitivity"`
	DeadZone          float64 `json:"deadZone"`
	MouseAcceleration float64 `json:"mouseAcceleration"`

	InvertXAxis          bool `json:"invertXAxis"`
	InvertYAxis          bool `json:"invertYAxis"`
	UseLeftStickForMouse bool `json:"useLeftStickForMouse"`

	LeftClickButton     Button `json:"leftClickButton"`
	RightClickButton    Button `json:"rightClickButton"`
	MiddleClickButton   Button `json:"middleClickButton"`
	DoubleClickButton   Button `json:"doubleClickButton"`
	PrecisionModeButton Button `json:"precisionModeButton"`
	TurboModeButton     Button `json:"turboModeButton"`

	PrecisionMultiplier float64       `json:"precisionMultiplier"`
	TurboMultiplier     float64       `json:"turboMultiplier"`
	DoubleClickWindow   time.Duration `json:"doubleClickWindow"`
	Debounce            time.Duration `json:"debounce"`
}

// Limits enforced by Sanitize.
const (
	MinSensitivity  = 0.01
	MaxSensitivity  = 1000
	MaxDeadZone     = 0.95
	MinAcceleration = 1
	MaxAcceleration = 5
	MinPrecision    = 0.01
	MaxTurbo        = 10
	MaxDoubleClick  = 2 * time.Second
	MaxDebounce     = 100 * time.Millisecond
)

// Default returns the settings the tool ships with.
func Default() Config {
	return Config{
		MouseSensitivity:  60,
		ScrollSensitivity: 3,
		DeadZone:          0.03,
		MouseAcceleration: 1.4,

		UseLeftStickForMouse: true,

		LeftClickButton:     South,
		RightClickButton:    East,
		MiddleClickButton:   West,
		DoubleClickButton:   North,
		PrecisionModeButton: LeftTrigger2,
		TurboModeButton:     RightTrigger2,

		PrecisionMultiplier: 0.3,
		TurboMultiplier:     2.0,
		DoubleClickWindow:   400 * time.Millisecond,
		Debounce:            10 * time.Millisecond,
	}
}

// Sanitize returns a copy of c with every numeric field finite and within
// range and every binding inside the Button enumeration. Non-finite values
// fall back to the default.
func (c Config) Sanitize() Config {
	d := Default()

	c.MouseSensitivity = clampOr(c.MouseSensitivity, d.MouseSensitivity, MinSensitivity, MaxSensitivity)
	c.ScrollSensitivity = clampOr(c.ScrollSensitivity, d.ScrollSensitivity, MinSensitivity, MaxSensitivity)
	c.DeadZone = clampOr(c.DeadZone, d.DeadZone, 0, MaxDeadZone)
	c.MouseAcceleration = clampOr(c.MouseAcceleration, d.MouseAcceleration, MinAcceleration, MaxAcceleration)
	c.PrecisionMultiplier = clampOr(c.PrecisionMultiplier, d.PrecisionMultiplier, MinPrecision, 1)
	c.TurboMultiplier = clampOr(c.TurboMultiplier, d.TurboMultiplier, 1, MaxTurbo)

	if c.DoubleClickWindow <= 0 {
		c.DoubleClickWindow = d.DoubleClickWindow
	}
	c.DoubleClickWindow = min(c.DoubleClickWindow, MaxDoubleClick)
	c.Debounce = max(0, min(c.Debounce, MaxDebounce))

	for _, b := range c.bindings() {
		if !b.Valid() {
			*b = None
		}
	}
	return c
}

// Binding names one action slot for logging and file keys.
type Binding struct {
	Key    string
	Button Button
}

// Bindings returns the button bindings in a fixed order.
func (c Config) Bindings() []Binding {
	return []Binding{
		{KeyLeftClick, c.LeftClickButton},
		{KeyRightClick, c.RightClickButton},
		{KeyMiddleClick, c.MiddleClickButton},
		{KeyDoubleClick, c.DoubleClickButton},
		{KeyPrecisionMode, c.PrecisionModeButton},
		{KeyTurboMode, c.TurboModeButton},
	}
}

func (c *Config) bindings() []*Button {
	return []*Button{
		&c.LeftClickButton,
		&c.RightClickButton,
		&c.MiddleClickButton,
		&c.DoubleClickButton,
		&c.PrecisionModeButton,
		&c.TurboModeButton,
	}
}

func clampOr(v, fallback, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	return math.Max(lo, math.Min(hi, v))
}
