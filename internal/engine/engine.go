// Package engine translates controller input into pointer, wheel and
// button actuation on a background sampling loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soar/padmouse/internal/actuator"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/gamepad"
	"github.com/soar/padmouse/internal/log"
)

var (
	// ErrConstruction wraps every reason New can fail.
	ErrConstruction = errors.New("engine: construction failed")
	// ErrContended is returned when the config lock is not acquired in
	// time. The caller retries later.
	ErrContended = errors.New("engine: config lock contended")
)

const (
	DefaultTickRate = 100 // Hz

	// Full deflection moves MouseSensitivity*pixelsPerSensitivity px/s and
	// scrolls ScrollSensitivity*detentsPerSensitivity detents/s.
	pixelsPerSensitivity  = 20.0
	detentsPerSensitivity = 4.0

	maxTickDelta         = 100 * time.Millisecond
	maxTransientFailures = 3
	lockWait             = 5 * time.Millisecond
	actuatorLogInterval  = time.Second
)

// State is the engine lifecycle state.
type State uint8

const (
	StateStarting State = iota
	StateRunning
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for v := StateStarting; v <= StateStopped; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown engine state %q", text)
}

// Status is a snapshot of the engine's shared state.
type Status struct {
	State          State     `json:"state"`
	Running        bool      `json:"running"`
	Connected      bool      `json:"connected"`
	Device         string    `json:"device"`
	Precision      bool      `json:"precision"`
	Turbo          bool      `json:"turbo"`
	LastActivity   time.Time `json:"lastActivity"`
	ConnectionLost time.Time `json:"connectionLost,omitzero"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTickRate sets the sampling frequency in Hz.
func WithTickRate(hz int) Option {
	return func(e *Engine) {
		if hz > 0 {
			e.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithTickSource drives the loop from c instead of an internal ticker.
// Each received time is used as the tick timestamp.
func WithTickSource(c <-chan time.Time) Option {
	return func(e *Engine) { e.ticks = c }
}

// Engine owns one device and one sampling goroutine. The zero value is not
// usable; construct with New and always call Stop.
type Engine struct {
	logger   *slog.Logger
	dev      gamepad.Device
	act      actuator.Actuator
	release  func()
	interval time.Duration
	ticks    <-chan time.Time

	running      atomic.Bool
	connected    atomic.Bool
	ticked       atomic.Bool
	precision    atomic.Bool
	turbo        atomic.Bool
	lastActivity atomic.Int64
	lostAt       atomic.Int64

	cfgMu   sync.Mutex
	pending *config.Config

	// loop-owned
	cfg       config.Config
	mapper    *Mapper
	prevTick  time.Time
	accX      float64
	accY      float64
	accScroll float64
	failures  int
	errLogged map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New starts an engine on dev. It fails if dev is absent or the actuator
// is already claimed by another engine. On success the engine owns dev and
// closes it on Stop; on failure the caller keeps it.
func New(dev gamepad.Device, cfg config.Config, act actuator.Actuator, opts ...Option) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: no device", ErrConstruction)
	}
	if act == nil {
		return nil, fmt.Errorf("%w: no actuator", ErrConstruction)
	}
	if !dev.Connected() {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, dev.ID(), gamepad.ErrNotFound)
	}

	e := &Engine{
		logger:    slog.Default(),
		dev:       dev,
		act:       act,
		release:   func() {},
		interval:  time.Second / DefaultTickRate,
		errLogged: make(map[string]time.Time),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "engine", "device", dev.ID())

	if c, ok := act.(actuator.Claimer); ok {
		release, err := c.Claim()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
		}
		e.release = release
	}

	e.cfg = cfg.Sanitize()
	e.mapper = NewMapper(e.cfg, e.logger)
	e.running.Store(true)
	e.connected.Store(true)

	go e.run()

	e.logger.Info("engine started", "interval", e.interval)
	return e, nil
}

// Stop ends the loop and waits until it has exited and the device is
// closed. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// UpdateConfig queues cfg for the next tick boundary. If the config lock
// cannot be taken within a few milliseconds it returns ErrContended.
func (e *Engine) UpdateConfig(cfg config.Config) error {
	if !lockWithin(&e.cfgMu, lockWait) {
		return ErrContended
	}
	c := cfg.Sanitize()
	e.pending = &c
	e.cfgMu.Unlock()
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) IsConnected() bool {
	return e.connected.Load()
}

// Status returns a lock-free snapshot.
func (e *Engine) Status() Status {
	s := Status{
		Running:      e.running.Load(),
		Connected:    e.connected.Load(),
		Device:       e.dev.ID(),
		Precision:    e.precision.Load(),
		Turbo:        e.turbo.Load(),
		LastActivity: unixNano(e.lastActivity.Load()),
	}
	s.ConnectionLost = unixNano(e.lostAt.Load())

	switch {
	case !s.Running:
		s.State = StateStopped
	case !s.Connected:
		s.State = StateDisconnected
	case !e.ticked.Load():
		s.State = StateStarting
	default:
		s.State = StateRunning
	}
	return s
}

func (e *Engine) run() {
	defer close(e.done)

	ticks := e.ticks
	if ticks == nil {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		// stop wins over a ready tick
		select {
		case <-e.stop:
			e.shutdown()
			return
		default:
		}

		select {
		case <-e.stop:
			e.shutdown()
			return
		case now := <-ticks:
			e.step(now)
		}
	}
}

func (e *Engine) step(now time.Time) {
	e.applyPendingConfig()

	dt := e.interval
	if !e.prevTick.IsZero() {
		dt = min(max(now.Sub(e.prevTick), 0), maxTickDelta)
	}
	e.prevTick = now

	sample, ok := e.poll(now)
	if !ok {
		return
	}
	e.ticked.Store(true)
	e.lastActivity.Store(now.UnixNano())

	actions := e.mapper.Process(&sample, now)
	precision, turbo := e.mapper.Modes()
	e.precision.Store(precision)
	e.turbo.Store(turbo)

	e.movePointer(sample, dt)
	e.scroll(sample, dt)
	e.execute(actions)
}

// poll reads the device and tracks connectivity. It reports whether the
// sample may be actuated.
func (e *Engine) poll(now time.Time) (gamepad.Sample, bool) {
	sample, err := e.dev.Poll()
	switch {
	case err == nil && e.dev.Connected():
		e.failures = 0
		if !e.connected.Load() {
			e.markConnected()
		}
		return sample, true

	case err == nil, errors.Is(err, gamepad.ErrDisconnected):
		e.markDisconnected(now, err)

	default:
		e.failures++
		if e.failures >= maxTransientFailures {
			e.markDisconnected(now, err)
		} else {
			e.logger.Debug("transient poll error", "attempt", e.failures, "error", err)
		}
	}
	return gamepad.Sample{}, false
}

func (e *Engine) markDisconnected(now time.Time, cause error) {
	if !e.connected.CompareAndSwap(true, false) {
		return
	}
	e.lostAt.Store(now.UnixNano())
	e.logger.Warn("device connection lost", "error", cause)

	e.execute(e.mapper.Reset())
	e.precision.Store(false)
	e.turbo.Store(false)
	e.accX, e.accY, e.accScroll = 0, 0, 0
}

func (e *Engine) markConnected() {
	e.connected.Store(true)
	e.lostAt.Store(0)
	e.logger.Info("device reconnected")
}

func (e *Engine) applyPendingConfig() {
	e.cfgMu.Lock()
	p := e.pending
	e.pending = nil
	e.cfgMu.Unlock()
	if p == nil {
		return
	}

	e.cfg = *p
	e.execute(e.mapper.Rebind(e.cfg))
	e.accX, e.accY, e.accScroll = 0, 0, 0
	e.logger.Info("config applied",
		"mouse_sensitivity", e.cfg.MouseSensitivity,
		"dead_zone", e.cfg.DeadZone,
		"scroll_sensitivity", e.cfg.ScrollSensitivity,
		"mouse_acceleration", e.cfg.MouseAcceleration,
		"left_stick", e.cfg.UseLeftStickForMouse)
}

func (e *Engine) movePointer(s gamepad.Sample, dt time.Duration) {
	cfg := &e.cfg
	stick := s.Right
	if cfg.UseLeftStickForMouse {
		stick = s.Left
	}

	vx, vy := Shape(stick.X, stick.Y, cfg.DeadZone, cfg.MouseAcceleration, cfg.InvertXAxis, cfg.InvertYAxis)
	if vx == 0 && vy == 0 {
		e.accX, e.accY = 0, 0
		return
	}

	k := cfg.MouseSensitivity * pixelsPerSensitivity * e.mapper.Multiplier() * dt.Seconds()
	// screen y grows downward, stick y grows upward
	e.accX += vx * k
	e.accY -= vy * k

	dx, dy := int(e.accX), int(e.accY)
	e.accX -= float64(dx)
	e.accY -= float64(dy)
	if dx == 0 && dy == 0 {
		return
	}

	e.logger.Log(context.Background(), log.LevelTrace, "move", "dx", dx, "dy", dy)
	e.actuate("move", e.act.MoveRelative(dx, dy))
}

func (e *Engine) scroll(s gamepad.Sample, dt time.Duration) {
	cfg := &e.cfg
	stick := s.Left
	if cfg.UseLeftStickForMouse {
		stick = s.Right
	}

	_, v := Shape(0, stick.Y, cfg.DeadZone, 1, false, false)
	if v == 0 {
		e.accScroll = 0
		return
	}

	e.accScroll += v * cfg.ScrollSensitivity * detentsPerSensitivity * dt.Seconds()
	n := int(e.accScroll)
	e.accScroll -= float64(n)
	if n == 0 {
		return
	}

	e.logger.Log(context.Background(), log.LevelTrace, "scroll", "amount", n)
	e.actuate("scroll", e.act.Scroll(n))
}

func (e *Engine) execute(actions []Action) {
	for _, a := range actions {
		var err error
		switch a.Kind {
		case Press:
			err = e.act.Press(a.Button)
		case Release:
			err = e.act.Release(a.Button)
		}
		e.logger.Debug("mouse button", "action", a.Kind, "button", a.Button)
		e.actuate(a.Kind.String(), err)
	}
}

// actuate logs a failed actuator call at most once per op per interval and
// otherwise ignores it.
func (e *Engine) actuate(op string, err error) {
	if err == nil {
		return
	}
	now := time.Now()
	if last, ok := e.errLogged[op]; ok && now.Sub(last) < actuatorLogInterval {
		return
	}
	e.errLogged[op] = now
	e.logger.Warn("actuator call failed", "op", op, "error", err)
}

func (e *Engine) shutdown() {
	e.execute(e.mapper.ReleaseAll())
	if err := e.dev.Close(); err != nil {
		e.logger.Warn("closing device", "error", err)
	}
	e.release()

	e.precision.Store(false)
	e.turbo.Store(false)
	e.connected.Store(false)
	e.running.Store(false)
	e.logger.Info("engine stopped")
}

// lockWithin tries to take mu for at most d.
func lockWithin(mu *sync.Mutex, d time.Duration) bool {
	if mu.TryLock() {
		return true
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Microsecond)
		if mu.TryLock() {
			return true
		}
	}
	return false
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
