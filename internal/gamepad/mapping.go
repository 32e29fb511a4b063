package gamepad

import (
	"math"

	"github.com/soar/padmouse/internal/config"
)

// AxisTarget names the logical axis a raw joystick axis feeds.
type AxisTarget uint8

const (
	LeftX AxisTarget = iota
	LeftY
	RightX
	RightY
	LeftTriggerAxis
	RightTriggerAxis
)

// Hat bits as reported by SDL.
const (
	HatUp    uint8 = 0x01
	HatRight uint8 = 0x02
	HatDown  uint8 = 0x04
	HatLeft  uint8 = 0x08
)

// TriggerPressThreshold is the analog trigger value above which
// LeftTrigger2/RightTrigger2 read as pressed.
const TriggerPressThreshold = 0.5

// AxisMapping defines how a raw axis index maps to a logical axis.
type AxisMapping struct {
	Index  int32
	Target AxisTarget
	Invert bool
	// For triggers: raw range. Some devices use -32768..32767, others 0..32767.
	RawMin int16
	RawMax int16
}

// IsTrigger reports whether the axis is an analog trigger.
func (a AxisMapping) IsTrigger() bool {
	return a.Target == LeftTriggerAxis || a.Target == RightTriggerAxis
}

// ButtonMapping defines how a raw button index maps to a controller button.
type ButtonMapping struct {
	Index  int32
	Target config.Button
}

// DeviceMapping holds the complete mapping for a specific device type.
type DeviceMapping struct {
	Name    string
	Axes    []AxisMapping
	Buttons []ButtonMapping
	HasHat  bool
}

// RawState is the raw joystick surface a mapping decodes.
type RawState interface {
	Axis(index int32) int16
	Button(index int32) bool
	Hat(index int32) uint8
	NumButtons() int32
	NumHats() int32
}

// Decode converts raw joystick state into a Sample.
func (m *DeviceMapping) Decode(raw RawState) Sample {
	var s Sample

	for _, am := range m.Axes {
		v := raw.Axis(am.Index)
		if am.IsTrigger() {
			val := NormalizeTrigger(v, am.RawMin, am.RawMax)
			switch am.Target {
			case LeftTriggerAxis:
				s.LeftTrigger = val
				s.Set(config.LeftTrigger2, val > TriggerPressThreshold)
			case RightTriggerAxis:
				s.RightTrigger = val
				s.Set(config.RightTrigger2, val > TriggerPressThreshold)
			}
			continue
		}
		val := NormalizeAxis(v)
		if am.Invert {
			val = -val
		}
		switch am.Target {
		case LeftX:
			s.Left.X = val
		case LeftY:
			s.Left.Y = val
		case RightX:
			s.Right.X = val
		case RightY:
			s.Right.Y = val
		}
	}

	numButtons := raw.NumButtons()
	for _, bm := range m.Buttons {
		if bm.Index >= numButtons {
			continue
		}
		// Digital trigger buttons OR with the analog reading.
		s.Set(bm.Target, s.Pressed(bm.Target) || raw.Button(bm.Index))
	}

	if m.HasHat && raw.NumHats() > 0 {
		hat := raw.Hat(0)
		s.Set(config.DPadUp, hat&HatUp != 0)
		s.Set(config.DPadRight, hat&HatRight != 0)
		s.Set(config.DPadDown, hat&HatDown != 0)
		s.Set(config.DPadLeft, hat&HatLeft != 0)
	}
	return s
}

// NormalizeAxis converts a raw axis value (-32768..32767) to -1.0..1.0.
func NormalizeAxis(raw int16) float64 {
	v := float64(raw) / math.MaxInt16
	if v < -1.0 {
		v = -1.0
	}
	return v
}

// NormalizeTrigger converts a raw trigger value to 0.0..1.0.
func NormalizeTrigger(raw int16, rawMin, rawMax int16) float64 {
	if rawMax == rawMin {
		return 0
	}
	v := (float64(raw) - float64(rawMin)) / (float64(rawMax) - float64(rawMin))
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// Built-in mappings for common controllers.

var standardAxes = []AxisMapping{
	{Index: 0, Target: LeftX},
	{Index: 1, Target: LeftY, Invert: true},
	{Index: 2, Target: RightX},
	{Index: 3, Target: RightY, Invert: true},
	{Index: 4, Target: LeftTriggerAxis, RawMin: -32768, RawMax: 32767},
	{Index: 5, Target: RightTriggerAxis, RawMin: -32768, RawMax: 32767},
}

var xboxMapping = &DeviceMapping{
	Name: "xbox",
	Axes: standardAxes,
	Buttons: []ButtonMapping{
		{Index: 0, Target: config.South},
		{Index: 1, Target: config.East},
		{Index: 2, Target: config.West},
		{Index: 3, Target: config.North},
		{Index: 4, Target: config.LeftTrigger},
		{Index: 5, Target: config.RightTrigger},
		{Index: 6, Target: config.Select},
		{Index: 7, Target: config.Start},
		{Index: 8, Target: config.LeftThumb},
		{Index: 9, Target: config.RightThumb},
		{Index: 10, Target: config.Mode},
	},
	HasHat: true,
}

var playstationMapping = &DeviceMapping{
	Name: "playstation",
	Axes: standardAxes,
	Buttons: []ButtonMapping{
		{Index: 0, Target: config.South}, // Cross
		{Index: 1, Target: config.East},  // Circle
		{Index: 2, Target: config.West},  // Square
		{Index: 3, Target: config.North}, // Triangle
		{Index: 4, Target: config.Select},
		{Index: 5, Target: config.Mode}, // PS button
		{Index: 6, Target: config.Start},
		{Index: 7, Target: config.LeftThumb},
		{Index: 8, Target: config.RightThumb},
		{Index: 9, Target: config.LeftTrigger},   // L1
		{Index: 10, Target: config.RightTrigger}, // R1
	},
	HasHat: true,
}

var switchProMapping = &DeviceMapping{
	Name: "switch_pro",
	Axes: standardAxes[:4],
	Buttons: []ButtonMapping{
		{Index: 0, Target: config.South},
		{Index: 1, Target: config.East},
		{Index: 2, Target: config.West},
		{Index: 3, Target: config.North},
		{Index: 4, Target: config.LeftTrigger},
		{Index: 5, Target: config.RightTrigger},
		{Index: 6, Target: config.Select},
		{Index: 7, Target: config.Start},
		{Index: 8, Target: config.LeftThumb},
		{Index: 9, Target: config.RightThumb},
		{Index: 10, Target: config.Mode},
		{Index: 11, Target: config.LeftTrigger2},  // ZL
		{Index: 12, Target: config.RightTrigger2}, // ZR
	},
	HasHat: true,
}

var genericMapping = &DeviceMapping{
	Name:    "generic",
	Axes:    standardAxes,
	Buttons: xboxMapping.Buttons,
	HasHat:  true,
}

// Known vendor/product IDs.
type deviceKey struct {
	VendorID  uint16
	ProductID uint16
}

var knownDevices = map[deviceKey]*DeviceMapping{
	// Microsoft Xbox controllers
	{0x045E, 0x028E}: xboxMapping, // Xbox 360
	{0x045E, 0x02FF}: xboxMapping, // Xbox One
	{0x045E, 0x0B12}: xboxMapping, // Xbox Series X|S
	{0x045E, 0x0B13}: xboxMapping, // Xbox Series X|S (wireless)
	// Sony PlayStation controllers
	{0x054C, 0x0CE6}: playstationMapping, // DualSense
	{0x054C, 0x09CC}: playstationMapping, // DualShock 4 v2
	{0x054C, 0x05C4}: playstationMapping, // DualShock 4 v1
	// Nintendo Switch Pro Controller
	{0x057E, 0x2009}: switchProMapping,
}

// GetMapping returns the appropriate mapping for a device identified by vendor/product ID.
// Falls back to generic mapping if no specific mapping is found.
func GetMapping(vendorID, productID uint16) *DeviceMapping {
	key := deviceKey{VendorID: vendorID, ProductID: productID}
	if m, ok := knownDevices[key]; ok {
		return m
	}
	return genericMapping
}
