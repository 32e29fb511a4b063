// Package actuator injects synthetic pointer, wheel and button events into
// the host input stream.
package actuator

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInjection wraps a host rejection of a synthetic input call.
	ErrInjection = errors.New("actuator: injection failed")
	// ErrClaimed is returned by Exclusive.Claim while another owner holds it.
	ErrClaimed = errors.New("actuator: already claimed")
	// ErrUnsupported is returned when the platform has no injection backend.
	ErrUnsupported = errors.New("actuator: platform not supported")
)

// Button is a mouse button.
type Button uint8

const (
	Left Button = iota
	Right
	Middle

	// ButtonCount is the number of mouse buttons.
	ButtonCount
)

func (b Button) String() string {
	switch b {
	case Left:
		return "left"
	case Right:
		return "right"
	case Middle:
		return "middle"
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}

// Actuator is the host synthetic-input facility. Every call may fail with
// an error wrapping ErrInjection.
type Actuator interface {
	MoveRelative(dx, dy int) error
	// Scroll moves the vertical wheel; positive scrolls up.
	Scroll(amount int) error
	Press(b Button) error
	Release(b Button) error
	Click(b Button) error
	Close() error
}

// Claimer is implemented by actuators that allow a single driver at a time.
type Claimer interface {
	Claim() (release func(), err error)
}

// Exclusive wraps an Actuator so that at most one engine drives it.
type Exclusive struct {
	Actuator

	mu      sync.Mutex
	claimed bool
}

func NewExclusive(a Actuator) *Exclusive {
	return &Exclusive{Actuator: a}
}

// Claim takes ownership. The returned release func is idempotent.
func (e *Exclusive) Claim() (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed {
		return nil, ErrClaimed
	}
	e.claimed = true

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.claimed = false
			e.mu.Unlock()
		})
	}, nil
}

func injectionError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrInjection, op, err)
}
