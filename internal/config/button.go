package config

import (
	"fmt"
	"strings"
)

// Button identifies a physical controller button. The zero value is None,
// meaning the action is unbound.
type Button uint8

const (
	None Button = iota
	South
	East
	North
	West
	C
	Z
	LeftTrigger
	LeftTrigger2
	RightTrigger
	RightTrigger2
	Select
	Start
	Mode
	LeftThumb
	RightThumb
	DPadUp
	DPadDown
	DPadLeft
	DPadRight

	// ButtonCount is one past the last valid Button.
	ButtonCount
)

var buttonNames = [ButtonCount]string{
	None:          "None",
	South:         "South",
	East:          "East",
	North:         "North",
	West:          "West",
	C:             "C",
	Z:             "Z",
	LeftTrigger:   "LeftTrigger",
	LeftTrigger2:  "LeftTrigger2",
	RightTrigger:  "RightTrigger",
	RightTrigger2: "RightTrigger2",
	Select:        "Select",
	Start:         "Start",
	Mode:          "Mode",
	LeftThumb:     "LeftThumb",
	RightThumb:    "RightThumb",
	DPadUp:        "DPadUp",
	DPadDown:      "DPadDown",
	DPadLeft:      "DPadLeft",
	DPadRight:     "DPadRight",
}

// Buttons lists every bindable button, None excluded.
func Buttons() []Button {
	out := make([]Button, 0, ButtonCount-1)
	for b := South; b < ButtonCount; b++ {
		out = append(out, b)
	}
	return out
}

// Valid reports whether b is a member of the enumeration.
func (b Button) Valid() bool {
	return b < ButtonCount
}

// Bound reports whether b names a real button.
func (b Button) Bound() bool {
	return b != None && b.Valid()
}

func (b Button) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Button(%d)", uint8(b))
	}
	return buttonNames[b]
}

// ParseButton resolves a button name case-insensitively. An empty name is
// None. Unknown names yield None and false.
func ParseButton(name string) (Button, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return None, true
	}
	for b, n := range buttonNames {
		if strings.EqualFold(n, name) {
			return Button(b), true
		}
	}
	return None, false
}

func (b Button) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid button %d", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *Button) UnmarshalText(text []byte) error {
	v, ok := ParseButton(string(text))
	if !ok {
		return fmt.Errorf("unknown button %q", string(text))
	}
	*b = v
	return nil
}
