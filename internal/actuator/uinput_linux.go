//go:build linux

package actuator

import (
	"fmt"

	"github.com/bendahl/uinput"
)

const uinputPath = "/dev/uinput"

// Uinput injects events through a virtual mouse created on /dev/uinput.
type Uinput struct {
	mouse uinput.Mouse
}

// NewUinput creates the virtual mouse. The caller needs write access to
// /dev/uinput.
func NewUinput(name string) (*Uinput, error) {
	m, err := uinput.CreateMouse(uinputPath, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("create uinput mouse: %w", err)
	}
	return &Uinput{mouse: m}, nil
}

// NewPlatform returns the default backend for this OS.
func NewPlatform(name string) (Actuator, error) {
	u, err := NewUinput(name)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Uinput) MoveRelative(dx, dy int) error {
	return injectionError("move", u.mouse.Move(int32(dx), int32(dy)))
}

func (u *Uinput) Scroll(amount int) error {
	return injectionError("scroll", u.mouse.Wheel(false, int32(amount)))
}

func (u *Uinput) Press(b Button) error {
	var err error
	switch b {
	case Left:
		err = u.mouse.LeftPress()
	case Right:
		err = u.mouse.RightPress()
	case Middle:
		err = u.mouse.MiddlePress()
	default:
		err = fmt.Errorf("unknown %s", b)
	}
	return injectionError("press", err)
}

func (u *Uinput) Release(b Button) error {
	var err error
	switch b {
	case Left:
		err = u.mouse.LeftRelease()
	case Right:
		err = u.mouse.RightRelease()
	case Middle:
		err = u.mouse.MiddleRelease()
	default:
		err = fmt.Errorf("unknown %s", b)
	}
	return injectionError("release", err)
}

func (u *Uinput) Click(b Button) error {
	var err error
	switch b {
	case Left:
		err = u.mouse.LeftClick()
	case Right:
		err = u.mouse.RightClick()
	case Middle:
		err = u.mouse.MiddleClick()
	default:
		err = fmt.Errorf("unknown %s", b)
	}
	return injectionError("click", err)
}

func (u *Uinput) Close() error {
	return u.mouse.Close()
}
