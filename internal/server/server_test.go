package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/engine"
	"github.com/soar/padmouse/internal/gamepad"
	"github.com/soar/padmouse/internal/hub"
	"github.com/soar/padmouse/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html>
  <head>
    <title>padmouse</title>
    <style>
      body   {   color : #222222 ;  }
    </style>
  </head>
  <body>
    <p id="state">idle</p>
    <script>
      const   answer   =   40 + 2 ;
    </script>
  </body>
</html>
`

type fakeController struct {
	mu      sync.Mutex
	status  supervisor.Status
	cfg     config.Config
	enabled *bool
	device  *string
}

func (c *fakeController) Status() supervisor.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *fakeController) SetConfig(cfg config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *fakeController) SetEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = &v
}

func (c *fakeController) Select(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = &id
}

type fixture struct {
	ctl   *fakeController
	saved []config.Config
	srv   *httptest.Server
	hub   *hub.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		ctl: &fakeController{
			cfg: config.Default(),
			status: supervisor.Status{
				Enabled: true,
				Engine: &engine.Status{
					State:     engine.StateRunning,
					Running:   true,
					Connected: true,
					Device:    "045e:028e:Xbox Controller",
				},
				Available: []gamepad.Info{{ID: "045e:028e:Xbox Controller", Name: "Xbox Controller", Mapping: "xbox"}},
			},
		},
	}

	f.hub = hub.NewHub(logger)
	go f.hub.Run(ctx)
	b := hub.NewBroadcaster(f.hub, f.ctl.Status(), make(chan supervisor.Status))
	go b.Run(ctx)

	s, err := New(Options{
		Hub:         f.hub,
		Broadcaster: b,
		Controller:  f.ctl,
		Save: func(cfg config.Config) error {
			f.saved = append(f.saved, cfg)
			return nil
		},
		Page:   fstest.MapFS{IndexFile: {Data: []byte(page)}},
		Logger: logger,
	})
	require.NoError(t, err)

	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	st := decode[supervisor.Status](t, resp)
	assert.True(t, st.Enabled)
	require.NotNil(t, st.Engine)
	assert.Equal(t, engine.StateRunning, st.Engine.State)
	assert.Equal(t, "045e:028e:Xbox Controller", st.Engine.Device)
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	devices := decode[[]gamepad.Info](t, resp)
	require.Len(t, devices, 1)
	assert.Equal(t, "xbox", devices[0].Mapping)

	f.ctl.status.Available = nil
	resp = f.do(t, http.MethodGet, "/api/devices", "")
	assert.Empty(t, decode[[]gamepad.Info](t, resp))
}

func TestButtons(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/buttons", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	names := decode[[]string](t, resp)
	require.Len(t, names, int(config.ButtonCount)-1)
	assert.Equal(t, "South", names[0])
	assert.Contains(t, names, "RightThumb")
	assert.NotContains(t, names, "None")
}

func TestConfig(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[config.Config](t, resp)
	assert.Equal(t, config.Default(), cfg)

	resp = f.do(t, http.MethodPut, "/api/config", `{"scrollSensitivity": 7, "turboModeButton": "rightthumb"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg = decode[config.Config](t, resp)
	assert.InDelta(t, 7, cfg.ScrollSensitivity, 1e-9)
	assert.Equal(t, config.RightThumb, cfg.TurboModeButton)
	assert.Equal(t, cfg, f.ctl.Config())
	assert.Empty(t, f.saved)

	resp = f.do(t, http.MethodPut, "/api/config?save=1", `{"deadZone": 0.1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.saved, 1)
	assert.InDelta(t, 0.1, f.saved[0].DeadZone, 1e-9)
	assert.InDelta(t, 7, f.saved[0].ScrollSensitivity, 1e-9)

	resp = f.do(t, http.MethodPut, "/api/config", `{"deadZone": "wide"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "invalid config")
}

func TestConfigSaveFailure(t *testing.T) {
	f := newFixture(t)
	s, err := New(Options{
		Hub:        f.hub,
		Controller: f.ctl,
		Save:       func(config.Config) error { return errors.New("read-only") },
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/config?save=1", strings.NewReader(`{"deadZone": 0.2}`))
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEnabledAndDevice(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/enabled", `{"enabled": false}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NotNil(t, f.ctl.enabled)
	assert.False(t, *f.ctl.enabled)

	resp = f.do(t, http.MethodPut, "/api/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/device", `{"device": "054c:0ce6:DualSense"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NotNil(t, f.ctl.device)
	assert.Equal(t, "054c:0ce6:DualSense", *f.ctl.device)
}

func TestPage(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Less(t, len(body), len(page))
	assert.Contains(t, string(body), "<title>padmouse</title>")
	assert.Contains(t, string(body), "idle")
	assert.NotContains(t, string(body), "   ")

	resp = f.do(t, http.MethodGet, "/missing.js", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewMissingPage(t *testing.T) {
	_, err := New(Options{Page: fstest.MapFS{}})
	assert.Error(t, err)
}

func TestWebSocket(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg hub.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, hub.TypeFull, msg.Type)
	require.NotNil(t, msg.Data)
	require.NotNil(t, msg.Data.Engine)
	assert.Equal(t, engine.StateRunning, msg.Data.Engine.State)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": hub.CmdSetEnabled, "enabled": false}))
	msg = hub.WSMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, hub.TypeAck, msg.Type)
	assert.Equal(t, hub.CmdSetEnabled, msg.Command)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "warp"}))
	msg = hub.WSMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, hub.TypeError, msg.Type)
	assert.Contains(t, msg.Error, "unknown command")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": hub.CmdSaveConfig}))
	msg = hub.WSMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, hub.TypeAck, msg.Type)

	f.ctl.mu.Lock()
	defer f.ctl.mu.Unlock()
	require.NotNil(t, f.ctl.enabled)
	assert.False(t, *f.ctl.enabled)
}

func TestWebSocketOrigin(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {f.srv.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestSameOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8080/ws", nil)
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://127.0.0.1:8080")
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "http://127.0.0.1:9090")
	assert.False(t, sameOrigin(req))

	req.Header.Set("Origin", "://bad")
	assert.False(t, sameOrigin(req))
}

func TestShutdownBeforeServe(t *testing.T) {
	s, err := New(Options{Hub: hub.NewHub(nil), Controller: &fakeController{}})
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	assert.ErrorIs(t, s.Serve(ln), http.ErrServerClosed)
}

func TestServeThenShutdown(t *testing.T) {
	s, err := New(Options{Hub: hub.NewHub(nil), Controller: &fakeController{}})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/buttons")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
