package supervisor

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soar/padmouse/internal/actuator"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/engine"
	"github.com/soar/padmouse/internal/gamepad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDevice struct {
	id     string
	closed bool
}

func (d *fakeDevice) ID() string                    { return d.id }
func (d *fakeDevice) Poll() (gamepad.Sample, error) { return gamepad.Sample{}, nil }
func (d *fakeDevice) Connected() bool               { return true }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	attached []string
	opened   []*fakeDevice
}

func (o *fakeOpener) attach(ids ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attached = ids
}

func (o *fakeOpener) Open(id string) (gamepad.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.attached {
		if id == "" || a == id {
			d := &fakeDevice{id: a}
			o.opened = append(o.opened, d)
			return d, nil
		}
	}
	return nil, gamepad.ErrNotFound
}

func (o *fakeOpener) Enumerate() []gamepad.Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []gamepad.Info
	for _, a := range o.attached {
		out = append(out, gamepad.Info{ID: a, Name: a})
	}
	return out
}

type fakeEngine struct {
	dev       gamepad.Device
	cfgs      []config.Config
	contend   int
	stopped   bool
	connected bool
	lostAt    time.Time
}

func (e *fakeEngine) Stop() { e.stopped = true }

func (e *fakeEngine) UpdateConfig(cfg config.Config) error {
	if e.contend > 0 {
		e.contend--
		return engine.ErrContended
	}
	e.cfgs = append(e.cfgs, cfg)
	return nil
}

func (e *fakeEngine) IsRunning() bool   { return !e.stopped }
func (e *fakeEngine) IsConnected() bool { return e.connected }

func (e *fakeEngine) Status() engine.Status {
	st := engine.Status{
		Running:        !e.stopped,
		Connected:      e.connected && !e.stopped,
		Device:         e.dev.ID(),
		ConnectionLost: e.lostAt,
	}
	switch {
	case e.stopped:
		st.State = engine.StateStopped
	case !e.connected:
		st.State = engine.StateDisconnected
	default:
		st.State = engine.StateRunning
	}
	return st
}

type fixture struct {
	opener  *fakeOpener
	engines []*fakeEngine
	fail    error
	sup     *Supervisor
	now     time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		opener: &fakeOpener{},
		now:    time.Unix(1_700_000_000, 0),
	}
	opts.Opener = f.opener
	opts.Factory = func(dev gamepad.Device, cfg config.Config) (Engine, error) {
		if f.fail != nil {
			return nil, f.fail
		}
		e := &fakeEngine{dev: dev, connected: true, cfgs: []config.Config{cfg}}
		f.engines = append(f.engines, e)
		return e, nil
	}
	if opts.Logger == nil {
		opts.Logger = discard
	}
	f.sup = New(opts)
	t.Cleanup(f.sup.Close)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	f.sup.Update(f.now)
}

func (f *fixture) current() *fakeEngine {
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

func TestStartsWhenDeviceAppears(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, Config: config.Default()})

	f.advance(0)
	assert.Nil(t, f.sup.Status().Engine)

	f.opener.attach("pad-1")
	f.advance(500 * time.Millisecond)
	assert.Nil(t, f.sup.Status().Engine, "no check before the interval elapses")

	f.advance(500 * time.Millisecond)
	st := f.sup.Status()
	require.NotNil(t, st.Engine)
	assert.Equal(t, "pad-1", st.Engine.Device)
	assert.Len(t, f.engines, 1)

	f.advance(time.Second)
	f.advance(time.Second)
	assert.Len(t, f.engines, 1, "running engine is kept")
}

func TestSelectedDevice(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, DeviceID: "pad-2"})
	f.opener.attach("pad-1", "pad-2")

	f.advance(0)
	require.NotNil(t, f.current())
	assert.Equal(t, "pad-2", f.current().dev.ID())

	f.sup.Select("pad-1")
	assert.True(t, f.engines[0].stopped)
	f.advance(time.Millisecond)
	require.Len(t, f.engines, 2)
	assert.Equal(t, "pad-1", f.current().dev.ID())
}

func TestRecreatesStoppedEngine(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	f.opener.attach("pad-1")
	f.advance(0)
	require.Len(t, f.engines, 1)

	f.engines[0].stopped = true
	f.advance(time.Second)
	require.Len(t, f.engines, 2)
	assert.False(t, f.current().stopped)
}

func TestReconnect(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, ReconnectAfter: 3 * time.Second})
	f.opener.attach("pad-1")
	f.advance(0)
	first := f.current()

	first.connected = false
	first.lostAt = f.now
	f.opener.attach()
	f.advance(time.Second)
	f.advance(time.Second)
	assert.False(t, first.stopped, "disconnected engine kept within grace")
	assert.Equal(t, engine.StateDisconnected, f.sup.Status().Engine.State)

	f.advance(time.Second)
	assert.True(t, first.stopped)
	assert.Nil(t, f.sup.Status().Engine)

	f.opener.attach("pad-1")
	f.advance(time.Second)
	require.Len(t, f.engines, 2)
	assert.Equal(t, engine.StateRunning, f.sup.Status().Engine.State)
}

func TestPendingConfigRetried(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	f.opener.attach("pad-1")
	f.advance(0)
	e := f.current()
	e.contend = 2

	cfg := config.Default()
	cfg.MouseSensitivity = 5
	f.sup.SetConfig(cfg)

	f.advance(10 * time.Millisecond)
	f.advance(10 * time.Millisecond)
	assert.Len(t, e.cfgs, 1)

	f.advance(10 * time.Millisecond)
	require.Len(t, e.cfgs, 2)
	assert.InDelta(t, 5, e.cfgs[1].MouseSensitivity, 1e-9)

	f.advance(10 * time.Millisecond)
	assert.Len(t, e.cfgs, 2, "applied config is not resent")
	assert.InDelta(t, 5, f.sup.Config().MouseSensitivity, 1e-9)
}

func TestConfigCarriedToNewEngine(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	cfg := config.Default()
	cfg.DeadZone = 0.2
	f.sup.SetConfig(cfg)

	f.opener.attach("pad-1")
	f.advance(0)
	require.NotNil(t, f.current())
	assert.InDelta(t, 0.2, f.current().cfgs[0].DeadZone, 1e-9)

	f.advance(10 * time.Millisecond)
	assert.Len(t, f.current().cfgs, 1)
}

func TestSetEnabled(t *testing.T) {
	f := newFixture(t, Options{Enabled: false})
	f.opener.attach("pad-1")

	f.advance(0)
	assert.Empty(t, f.engines)
	assert.False(t, f.sup.Status().Enabled)

	f.sup.SetEnabled(true)
	f.advance(time.Millisecond)
	require.Len(t, f.engines, 1)

	f.sup.SetEnabled(false)
	f.advance(time.Millisecond)
	assert.True(t, f.engines[0].stopped)
	assert.Nil(t, f.sup.Status().Engine)
}

func TestFactoryFailureClosesDevice(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	f.opener.attach("pad-1")
	f.fail = actuator.ErrClaimed

	f.advance(0)
	assert.Empty(t, f.engines)
	require.Len(t, f.opener.opened, 1)
	assert.True(t, f.opener.opened[0].closed)

	f.fail = nil
	f.advance(time.Second)
	assert.Len(t, f.engines, 1)
}

func TestLogsAlternatives(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, Options{
		Enabled:  true,
		DeviceID: "pad-9",
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	})
	f.opener.attach("pad-1", "pad-2")

	f.advance(0)
	f.advance(time.Second)
	f.advance(time.Second)

	assert.Empty(t, f.engines, "selection never switches on its own")
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "others attached"))
	assert.Contains(t, out, "pad-1")
	assert.Equal(t, 1, strings.Count(out, "waiting for controller"))
}

func TestChanges(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	f.opener.attach("pad-1")

	f.advance(0)
	select {
	case st := <-f.sup.Changes():
		require.NotNil(t, st.Engine)
		assert.Equal(t, "pad-1", st.Engine.Device)
		assert.Len(t, st.Available, 1)
	default:
		t.Fatal("no status published")
	}

	f.advance(10 * time.Millisecond)
	select {
	case <-f.sup.Changes():
		t.Fatal("unchanged status published")
	default:
	}

	f.sup.SetEnabled(false)
	f.advance(10 * time.Millisecond)
	f.sup.SetEnabled(true)
	f.advance(10 * time.Millisecond)

	// the consumer fell behind; only the newest status is queued
	st := <-f.sup.Changes()
	assert.True(t, st.Enabled)
	assert.NotNil(t, st.Engine)
}

func TestWithRealEngine(t *testing.T) {
	opener := &fakeOpener{}
	opener.attach("pad-1")
	act := actuator.NewExclusive(actuator.NewLog(discard))

	sup := New(Options{
		Opener:  opener,
		Factory: EngineFactory(act, engine.WithLogger(discard)),
		Enabled: true,
		Config:  config.Default(),
		Logger:  discard,
	})
	sup.Update(time.Now())

	st := sup.Status()
	require.NotNil(t, st.Engine)
	assert.True(t, st.Engine.Running)

	assert.Eventually(t, func() bool {
		return sup.Status().Engine.State == engine.StateRunning
	}, time.Second, 5*time.Millisecond)

	sup.Close()
	assert.Nil(t, sup.Status().Engine)
	assert.True(t, opener.opened[0].closed)

	// the claim was released with the engine
	release, err := act.Claim()
	require.NoError(t, err)
	release()
}
