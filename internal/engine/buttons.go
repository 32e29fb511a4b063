package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/soar/padmouse/internal/actuator"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/gamepad"
	"github.com/soar/padmouse/internal/log"
)

// ActionKind is the kind of mouse action a Mapper emits.
type ActionKind uint8

const (
	Press ActionKind = iota
	Release
)

func (k ActionKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Action is one actuator call.
type Action struct {
	Kind   ActionKind
	Button actuator.Button
}

type pendingClick struct {
	button config.Button
	at     time.Time
}

// Mapper turns per-tick button levels into mouse actions and mode flags.
// It is not safe for concurrent use; the engine loop owns it.
type Mapper struct {
	logger *slog.Logger

	clickBindings [actuator.ButtonCount]config.Button
	doubleClick   config.Button
	precisionBtn  config.Button
	turboBtn      config.Button
	precisionMul  float64
	turboMul      float64
	window        time.Duration
	debounce      time.Duration

	stable     [config.ButtonCount]bool
	lastChange [config.ButtonCount]time.Time
	pressedAt  [config.ButtonCount]time.Time
	held       [actuator.ButtonCount]bool
	pending    *pendingClick

	precision bool
	turbo     bool

	// bindings already reported as invalid, keyed by slot and value
	warned map[config.Binding]struct{}
}

func NewMapper(cfg config.Config, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{
		logger: logger,
		warned: make(map[config.Binding]struct{}),
	}
	m.bind(cfg)
	return m
}

// Rebind installs new bindings. Held mouse buttons are released and a
// pending double click is discarded, since their bindings may have moved.
func (m *Mapper) Rebind(cfg config.Config) []Action {
	actions := m.ReleaseAll()
	m.pending = nil
	m.bind(cfg)
	return actions
}

func (m *Mapper) bind(cfg config.Config) {
	check := func(key string, b config.Button) config.Button {
		if b.Valid() {
			return b
		}
		k := config.Binding{Key: key, Button: b}
		if _, seen := m.warned[k]; !seen {
			m.warned[k] = struct{}{}
			m.logger.Warn("invalid button binding treated as unbound", "binding", key, "button", b)
		}
		return config.None
	}

	m.clickBindings[actuator.Left] = check(config.KeyLeftClick, cfg.LeftClickButton)
	m.clickBindings[actuator.Right] = check(config.KeyRightClick, cfg.RightClickButton)
	m.clickBindings[actuator.Middle] = check(config.KeyMiddleClick, cfg.MiddleClickButton)
	m.doubleClick = check(config.KeyDoubleClick, cfg.DoubleClickButton)
	m.precisionBtn = check(config.KeyPrecisionMode, cfg.PrecisionModeButton)
	m.turboBtn = check(config.KeyTurboMode, cfg.TurboModeButton)

	m.precisionMul = cfg.PrecisionMultiplier
	m.turboMul = cfg.TurboMultiplier
	m.window = cfg.DoubleClickWindow
	m.debounce = cfg.Debounce
}

// Process consumes one sample. Level changes are debounced per button;
// accepted edges produce actions in button order.
func (m *Mapper) Process(s *gamepad.Sample, now time.Time) []Action {
	var actions []Action

	for b := config.South; b < config.ButtonCount; b++ {
		level := s.Buttons[b]
		if level == m.stable[b] {
			continue
		}
		if last := m.lastChange[b]; !last.IsZero() && now.Sub(last) < m.debounce {
			continue
		}
		m.stable[b] = level
		m.lastChange[b] = now

		if level {
			m.pressedAt[b] = now
			actions = m.rising(b, now, actions)
		} else {
			m.logger.Log(context.Background(), log.LevelTrace, "button released", "button", b, "held", now.Sub(m.pressedAt[b]))
			actions = m.falling(b, actions)
		}
	}

	m.precision = m.precisionBtn.Bound() && m.stable[m.precisionBtn]
	m.turbo = m.turboBtn.Bound() && m.stable[m.turboBtn]
	return actions
}

func (m *Mapper) rising(b config.Button, now time.Time, actions []Action) []Action {
	for mb, bound := range m.clickBindings {
		if bound == b && !m.held[mb] {
			m.held[mb] = true
			actions = append(actions, Action{Press, actuator.Button(mb)})
		}
	}

	if b == m.doubleClick {
		if p := m.pending; p != nil && p.button == b && now.Sub(p.at) <= m.window {
			m.pending = nil
			actions = append(actions,
				Action{Press, actuator.Left},
				Action{Release, actuator.Left},
				Action{Press, actuator.Left},
				Action{Release, actuator.Left},
			)
		} else {
			m.pending = &pendingClick{button: b, at: now}
		}
	}
	return actions
}

func (m *Mapper) falling(b config.Button, actions []Action) []Action {
	for mb, bound := range m.clickBindings {
		if bound == b && m.held[mb] {
			m.held[mb] = false
			actions = append(actions, Action{Release, actuator.Button(mb)})
		}
	}
	return actions
}

// ReleaseAll returns releases for every held mouse button and marks them
// up.
func (m *Mapper) ReleaseAll() []Action {
	var actions []Action
	for mb := range m.held {
		if m.held[mb] {
			m.held[mb] = false
			actions = append(actions, Action{Release, actuator.Button(mb)})
		}
	}
	return actions
}

// Reset forgets all button state, as after device loss. Buttons still held
// when the device returns produce a fresh rising edge.
func (m *Mapper) Reset() []Action {
	actions := m.ReleaseAll()
	m.stable = [config.ButtonCount]bool{}
	m.lastChange = [config.ButtonCount]time.Time{}
	m.pending = nil
	m.precision, m.turbo = false, false
	return actions
}

// Modes reports the active mode flags.
func (m *Mapper) Modes() (precision, turbo bool) {
	return m.precision, m.turbo
}

// Multiplier is the velocity factor of the active modes. Precision and
// turbo held together compose by product.
func (m *Mapper) Multiplier() float64 {
	mul := 1.0
	if m.precision {
		mul *= m.precisionMul
	}
	if m.turbo {
		mul *= m.turboMul
	}
	return mul
}

// heldSince returns when b was last pressed, if it is currently down.
func (m *Mapper) heldSince(b config.Button) (time.Time, bool) {
	if !b.Bound() || !m.stable[b] {
		return time.Time{}, false
	}
	return m.pressedAt[b], true
}
