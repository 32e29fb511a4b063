// Package supervisor keeps at most one translation engine alive for the
// selected controller, recreating it across unplug and replug and relaying
// configuration and enable state to it.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/soar/padmouse/internal/actuator"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/engine"
	"github.com/soar/padmouse/internal/gamepad"
)

const (
	DefaultCheckInterval  = time.Second
	DefaultReconnectAfter = 5 * time.Second
)

// Engine is the part of *engine.Engine the supervisor drives.
type Engine interface {
	Stop()
	UpdateConfig(cfg config.Config) error
	IsRunning() bool
	IsConnected() bool
	Status() engine.Status
}

// Factory builds an engine on an opened device.
type Factory func(dev gamepad.Device, cfg config.Config) (Engine, error)

// EngineFactory returns a Factory backed by engine.New.
func EngineFactory(act actuator.Actuator, opts ...engine.Option) Factory {
	return func(dev gamepad.Device, cfg config.Config) (Engine, error) {
		return engine.New(dev, cfg, act, opts...)
	}
}

type Options struct {
	Opener   gamepad.Opener
	Factory  Factory
	Config   config.Config
	DeviceID string // empty selects the first attached controller
	Enabled  bool

	CheckInterval time.Duration
	// ReconnectAfter is how long a disconnected engine is kept before it is
	// torn down and the device reopened.
	ReconnectAfter time.Duration
	Logger         *slog.Logger
}

// Status is what the supervisor publishes to its observers.
type Status struct {
	Enabled   bool           `json:"enabled"`
	Selected  string         `json:"selected"`
	Engine    *engine.Status `json:"engine"`
	Available []gamepad.Info `json:"available"`
}

// Supervisor is safe for concurrent use. Update is expected to be called
// periodically from one goroutine; the setters may be called from any.
type Supervisor struct {
	logger         *slog.Logger
	opener         gamepad.Opener
	factory        Factory
	checkInterval  time.Duration
	reconnectAfter time.Duration

	mu            sync.Mutex
	cfg           config.Config
	cfgPending    bool
	selected      string
	enabled       bool
	eng           Engine
	lastCheck     time.Time
	force         bool
	available     []gamepad.Info
	reportedAlts  []string
	lastOpenError error
	published     statusKey

	changes chan Status
}

type statusKey struct {
	enabled   bool
	selected  string
	hasEngine bool
	state     engine.State
	device    string
	precision bool
	turbo     bool
	available string
}

func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		logger:         logger.With("component", "supervisor"),
		opener:         opts.Opener,
		factory:        opts.Factory,
		checkInterval:  opts.CheckInterval,
		reconnectAfter: opts.ReconnectAfter,
		cfg:            opts.Config.Sanitize(),
		selected:       opts.DeviceID,
		enabled:        opts.Enabled,
		force:          true,
		changes:        make(chan Status, 1),
	}
	if s.checkInterval <= 0 {
		s.checkInterval = DefaultCheckInterval
	}
	if s.reconnectAfter <= 0 {
		s.reconnectAfter = DefaultReconnectAfter
	}
	return s
}

// Changes delivers the latest status whenever it changes. Observers that
// fall behind only see the most recent value.
func (s *Supervisor) Changes() <-chan Status {
	return s.changes
}

// Update runs one supervision step at time now. Pending configuration is
// retried on every call; device checks run at most once per check
// interval unless a setter forced one.
func (s *Supervisor) Update(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushConfig()

	if !s.force && now.Sub(s.lastCheck) < s.checkInterval {
		s.publish()
		return
	}
	s.force = false
	s.lastCheck = now

	s.check(now)
	s.publish()
}

func (s *Supervisor) check(now time.Time) {
	s.available = s.opener.Enumerate()

	if !s.enabled {
		s.stopEngine("disabled")
		return
	}

	if s.eng != nil {
		switch st := s.eng.Status(); {
		case !st.Running:
			s.stopEngine("engine stopped")
		case !st.Connected && !st.ConnectionLost.IsZero() && now.Sub(st.ConnectionLost) >= s.reconnectAfter:
			s.stopEngine("device lost")
		case !st.Connected:
			s.reportAlternatives()
			return
		default:
			s.reportedAlts = nil
			return
		}
	}

	s.start()
}

func (s *Supervisor) start() {
	dev, err := s.opener.Open(s.selected)
	if err != nil {
		s.noteOpenError(err)
		s.reportAlternatives()
		return
	}
	s.lastOpenError = nil

	eng, err := s.factory(dev, s.cfg)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			s.logger.Debug("closing device after failed start", "error", cerr)
		}
		s.noteOpenError(err)
		return
	}

	s.eng = eng
	s.cfgPending = false
	s.reportedAlts = nil
	s.logger.Info("controller attached", "device", dev.ID())
}

// noteOpenError logs err the first time it differs from the previous one.
func (s *Supervisor) noteOpenError(err error) {
	if s.lastOpenError != nil && s.lastOpenError.Error() == err.Error() {
		return
	}
	s.lastOpenError = err

	level := slog.LevelWarn
	if errors.Is(err, gamepad.ErrNotFound) {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "waiting for controller", "device", s.selected, "error", err)
}

// reportAlternatives logs other attached controllers while the selected
// one is absent. Selection never switches on its own.
func (s *Supervisor) reportAlternatives() {
	if s.selected == "" {
		return
	}
	var alts []string
	for _, info := range s.available {
		if info.ID != s.selected {
			alts = append(alts, info.ID)
		}
	}
	if len(alts) == 0 || slices.Equal(alts, s.reportedAlts) {
		return
	}
	s.reportedAlts = alts
	s.logger.Info("selected controller absent, others attached", "selected", s.selected, "available", alts)
}

func (s *Supervisor) stopEngine(reason string) {
	if s.eng == nil {
		return
	}
	s.eng.Stop()
	s.eng = nil
	s.logger.Info("engine released", "reason", reason)
}

func (s *Supervisor) pushConfig() {
	if !s.cfgPending || s.eng == nil {
		return
	}
	switch err := s.eng.UpdateConfig(s.cfg); {
	case err == nil:
		s.cfgPending = false
	case errors.Is(err, engine.ErrContended):
		s.logger.Debug("config update contended, retrying")
	default:
		s.cfgPending = false
		s.logger.Warn("config update failed", "error", err)
	}
}

// SetConfig stores cfg and hands it to the engine on the next Update.
func (s *Supervisor) SetConfig(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Sanitize()
	s.cfgPending = true
}

func (s *Supervisor) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetEnabled turns actuation on or off at the next Update.
func (s *Supervisor) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	s.force = true
	s.logger.Info("actuation toggled", "enabled", enabled)
}

func (s *Supervisor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Select switches to another controller id. The running engine, if any, is
// released at the next Update.
func (s *Supervisor) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == id {
		return
	}
	s.selected = id
	s.stopEngine("device selection changed")
	s.lastOpenError = nil
	s.reportedAlts = nil
	s.force = true
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Supervisor) status() Status {
	st := Status{
		Enabled:   s.enabled,
		Selected:  s.selected,
		Available: slices.Clone(s.available),
	}
	if s.eng != nil {
		es := s.eng.Status()
		st.Engine = &es
	}
	return st
}

func (s *Supervisor) publish() {
	st := s.status()
	key := statusKey{
		enabled:  st.Enabled,
		selected: st.Selected,
	}
	if st.Engine != nil {
		key.hasEngine = true
		key.state = st.Engine.State
		key.device = st.Engine.Device
		key.precision = st.Engine.Precision
		key.turbo = st.Engine.Turbo
	}
	for _, info := range st.Available {
		key.available += info.ID + "\n"
	}
	if key == s.published {
		return
	}
	s.published = key

	// keep only the newest value
	select {
	case <-s.changes:
	default:
	}
	select {
	case s.changes <- st:
	default:
	}
}

// Close releases the engine. The supervisor must not be used afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopEngine("shutdown")
}
