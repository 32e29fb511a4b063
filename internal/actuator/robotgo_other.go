//go:build windows || darwin

package actuator

import (
	"github.com/go-vgo/robotgo"
)

// Robotgo injects events through the host window system.
type Robotgo struct{}

func NewRobotgo() *Robotgo { return &Robotgo{} }

// NewPlatform returns the default backend for this OS. The device name is
// not used by the window-system backend.
func NewPlatform(string) (Actuator, error) {
	return NewRobotgo(), nil
}

func (Robotgo) MoveRelative(dx, dy int) error {
	robotgo.MoveRelative(dx, dy)
	return nil
}

func (Robotgo) Scroll(amount int) error {
	robotgo.Scroll(0, amount, 0)
	return nil
}

func (Robotgo) Press(b Button) error {
	return injectionError("press", robotgo.Toggle(robotgoButton(b)))
}

func (Robotgo) Release(b Button) error {
	return injectionError("release", robotgo.Toggle(robotgoButton(b), "up"))
}

func (Robotgo) Click(b Button) error {
	robotgo.Click(robotgoButton(b))
	return nil
}

func (Robotgo) Close() error { return nil }
