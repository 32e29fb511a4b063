// Package gamepad defines the device layer consumed by the translation
// engine: per-tick samples, device handles and the raw-index mappings used
// to decode joystick state.
package gamepad

import (
	"errors"
	"fmt"

	"github.com/soar/padmouse/internal/config"
)

var (
	// ErrNotFound is returned by Open when no device has the requested id.
	ErrNotFound = errors.New("gamepad: device not found")
	// ErrBusy is returned by Open when the device already has an owner.
	ErrBusy = errors.New("gamepad: device busy")
	// ErrIO marks a read failure that may be transient.
	ErrIO = errors.New("gamepad: i/o error")
	// ErrDisconnected marks genuine device loss.
	ErrDisconnected = errors.New("gamepad: device disconnected")
)

// Stick is one analog stick, each axis in [-1,1] with +Y pointing up.
type Stick struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is the device state read once per engine tick.
type Sample struct {
	Left         Stick                    `json:"left"`
	Right        Stick                    `json:"right"`
	LeftTrigger  float64                  `json:"leftTrigger"`
	RightTrigger float64                  `json:"rightTrigger"`
	Buttons      [config.ButtonCount]bool `json:"buttons"`
}

// Pressed reports the level of b. Unbound or invalid buttons are never
// pressed.
func (s *Sample) Pressed(b config.Button) bool {
	if !b.Bound() {
		return false
	}
	return s.Buttons[b]
}

// Set records the level of b, ignoring unbound ids.
func (s *Sample) Set(b config.Button, pressed bool) {
	if b.Bound() {
		s.Buttons[b] = pressed
	}
}

// Info describes an attached device for selection.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Mapping string `json:"mapping"`
}

// Device is an opened controller. Poll and Connected are called from the
// engine goroutine only; Close may be called once.
type Device interface {
	ID() string
	// Poll returns the current state. Errors wrapping ErrDisconnected mean
	// the device is gone; any other error is treated as transient.
	Poll() (Sample, error)
	Connected() bool
	Close() error
}

// Opener is the device backend.
type Opener interface {
	// Open claims the device with the given id. An empty id selects the
	// first attached device.
	Open(id string) (Device, error)
	Enumerate() []Info
}

// Identity builds a device id that survives unplug and replug of the same
// controller.
func Identity(vendorID, productID uint16, name string) string {
	return fmt.Sprintf("%04x:%04x:%s", vendorID, productID, name)
}
