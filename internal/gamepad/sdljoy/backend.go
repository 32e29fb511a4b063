// Package sdljoy is the SDL3 joystick backend of the device layer.
//
// All SDL calls happen on the goroutine running Backend.Run, which locks
// its OS thread. Device handles read the snapshots that goroutine publishes,
// so engines never touch SDL directly.
package sdljoy

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jupiterrider/purego-sdl3/sdl"

	"github.com/soar/padmouse/internal/gamepad"
)

const pollDelayNS = 4_000_000 // ~250Hz, faster than any engine tick

type joystickInfo struct {
	joystick *sdl.Joystick
	mapping  *gamepad.DeviceMapping
	name     string
	id       string
}

// slot is the published state of one device identity. It outlives the SDL
// instance so a replugged controller lands in the same slot.
type slot struct {
	info      gamepad.Info
	connected bool
	claimed   bool
	sample    gamepad.Sample
}

// Backend reads all attached joysticks and serves device handles.
type Backend struct {
	logger *slog.Logger

	mu    sync.RWMutex
	slots map[string]*slot
	order []string

	// owned by the Run goroutine
	joysticks map[sdl.JoystickID]*joystickInfo

	ready   chan struct{}
	initErr error
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger:    logger.With("component", "sdl"),
		slots:     make(map[string]*slot),
		joysticks: make(map[sdl.JoystickID]*joystickInfo),
		ready:     make(chan struct{}),
	}
}

// Ready is closed once SDL is initialised, or failed to initialise.
func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

// Err returns the initialisation error after Ready is closed.
func (b *Backend) Err() error {
	<-b.ready
	return b.initErr
}

// Run initializes SDL and runs the event and polling loop on the current
// thread until ctx is cancelled.
func (b *Backend) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !sdl.Init(sdl.InitJoystick) {
		b.initErr = fmt.Errorf("%w: SDL init failed: %s", gamepad.ErrIO, sdl.GetError())
		close(b.ready)
		return b.initErr
	}
	defer sdl.Quit()

	b.logger.Info("SDL3 joystick subsystem initialized")

	for _, id := range sdl.GetJoysticks() {
		b.openJoystick(id)
	}
	close(b.ready)

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return nil
		default:
		}

		b.processEvents()
		b.pollState()
		sdl.DelayNS(pollDelayNS)
	}
}

// Enumerate lists connected devices in attach order.
func (b *Backend) Enumerate() []gamepad.Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]gamepad.Info, 0, len(b.order))
	for _, id := range b.order {
		if s := b.slots[id]; s.connected {
			out = append(out, s.info)
		}
	}
	return out
}

// Open claims a connected device. An empty id picks the first connected,
// unclaimed device.
func (b *Backend) Open(id string) (gamepad.Device, error) {
	select {
	case <-b.ready:
	default:
		return nil, fmt.Errorf("%w: backend not running", gamepad.ErrIO)
	}
	if b.initErr != nil {
		return nil, b.initErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		for _, cand := range b.order {
			if s := b.slots[cand]; s.connected && !s.claimed {
				id = cand
				break
			}
		}
		if id == "" {
			return nil, gamepad.ErrNotFound
		}
	}

	s, ok := b.slots[id]
	if !ok || !s.connected {
		return nil, fmt.Errorf("%w: %s", gamepad.ErrNotFound, id)
	}
	if s.claimed {
		return nil, fmt.Errorf("%w: %s", gamepad.ErrBusy, id)
	}
	s.claimed = true
	b.logger.Info("device claimed", "id", id, "name", s.info.Name)
	return &handle{backend: b, id: id}, nil
}

func (b *Backend) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.slots[id]; ok {
		s.claimed = false
		s.sample = gamepad.Sample{}
	}
	b.logger.Info("device released", "id", id)
}

func (b *Backend) snapshot(id string) (gamepad.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.slots[id]
	if !ok || !s.connected {
		return gamepad.Sample{}, false
	}
	return s.sample, true
}

func (b *Backend) processEvents() {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickAdded:
			devEvent := event.JDevice()
			b.openJoystick(devEvent.Which)

		case sdl.EventJoystickRemoved:
			devEvent := event.JDevice()
			b.removeJoystick(devEvent.Which)
		}
	}
}

func (b *Backend) openJoystick(instanceID sdl.JoystickID) {
	if _, exists := b.joysticks[instanceID]; exists {
		return
	}

	js := sdl.OpenJoystick(instanceID)
	if js == nil {
		b.logger.Warn("failed to open joystick", "instance", instanceID, "error", sdl.GetError())
		return
	}

	jsID := sdl.GetJoystickID(js)
	vendorID := sdl.GetJoystickVendor(js)
	productID := sdl.GetJoystickProduct(js)
	name := sdl.GetJoystickName(js)
	mapping := gamepad.GetMapping(vendorID, productID)

	b.mu.Lock()
	id := b.assignIdentity(gamepad.Identity(vendorID, productID, name))
	s, ok := b.slots[id]
	if !ok {
		s = &slot{}
		b.slots[id] = s
		b.order = append(b.order, id)
	}
	s.info = gamepad.Info{ID: id, Name: name, Mapping: mapping.Name}
	s.connected = true
	b.mu.Unlock()

	b.joysticks[jsID] = &joystickInfo{
		joystick: js,
		mapping:  mapping,
		name:     name,
		id:       id,
	}

	b.logger.Info("joystick connected",
		"name", name,
		"vid", fmt.Sprintf("%04X", vendorID),
		"pid", fmt.Sprintf("%04X", productID),
		"mapping", mapping.Name,
		"axes", sdl.GetNumJoystickAxes(js),
		"buttons", sdl.GetNumJoystickButtons(js),
		"hats", sdl.GetNumJoystickHats(js),
		"id", id)
}

// assignIdentity disambiguates identical controllers attached at the same
// time. Caller holds b.mu.
func (b *Backend) assignIdentity(base string) string {
	id := base
	for n := 2; ; n++ {
		s, ok := b.slots[id]
		if !ok || !s.connected {
			return id
		}
		id = fmt.Sprintf("%s#%d", base, n)
	}
}

func (b *Backend) removeJoystick(instanceID sdl.JoystickID) {
	info, exists := b.joysticks[instanceID]
	if !exists {
		return
	}

	b.logger.Warn("joystick disconnected", "name", info.name, "id", info.id)
	sdl.CloseJoystick(info.joystick)
	delete(b.joysticks, instanceID)

	b.mu.Lock()
	if s, ok := b.slots[info.id]; ok {
		s.connected = false
		s.sample = gamepad.Sample{}
	}
	b.mu.Unlock()
}

func (b *Backend) closeAll() {
	for id, info := range b.joysticks {
		sdl.CloseJoystick(info.joystick)
		delete(b.joysticks, id)
	}
	b.mu.Lock()
	for _, s := range b.slots {
		s.connected = false
	}
	b.mu.Unlock()
}

func (b *Backend) pollState() {
	for _, info := range b.joysticks {
		b.mu.RLock()
		s := b.slots[info.id]
		claimed := s != nil && s.claimed
		b.mu.RUnlock()
		if !claimed {
			continue
		}

		if !sdl.JoystickConnected(info.joystick) {
			continue
		}
		sample := info.mapping.Decode(rawJoystick{info.joystick})

		b.mu.Lock()
		s.sample = sample
		b.mu.Unlock()
	}
}

// rawJoystick adapts an SDL joystick to gamepad.RawState.
type rawJoystick struct{ js *sdl.Joystick }

func (r rawJoystick) Axis(index int32) int16  { return sdl.GetJoystickAxis(r.js, index) }
func (r rawJoystick) Button(index int32) bool { return sdl.GetJoystickButton(r.js, index) }
func (r rawJoystick) Hat(index int32) uint8   { return sdl.GetJoystickHat(r.js, index) }
func (r rawJoystick) NumButtons() int32       { return sdl.GetNumJoystickButtons(r.js) }
func (r rawJoystick) NumHats() int32          { return sdl.GetNumJoystickHats(r.js) }

// handle is a claimed device.
type handle struct {
	backend *Backend
	id      string
	closed  atomic.Bool
}

func (h *handle) ID() string { return h.id }

func (h *handle) Poll() (gamepad.Sample, error) {
	if h.closed.Load() {
		return gamepad.Sample{}, fmt.Errorf("%w: handle closed", gamepad.ErrDisconnected)
	}
	s, ok := h.backend.snapshot(h.id)
	if !ok {
		return gamepad.Sample{}, gamepad.ErrDisconnected
	}
	return s, nil
}

func (h *handle) Connected() bool {
	if h.closed.Load() {
		return false
	}
	_, ok := h.backend.snapshot(h.id)
	return ok
}

func (h *handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.backend.release(h.id)
	}
	return nil
}
