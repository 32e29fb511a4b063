package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/gamepad"
	"github.com/soar/padmouse/internal/hub"
)

const maxBody = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := hub.NewClient(s.opts.Hub, conn)
	s.opts.Hub.Register(client)

	// Send current state to the new client
	s.opts.Broadcaster.SendInitialState(client)

	go client.WritePump()
	go client.ReadPumpWithHandler(s.opts.Controller, s.opts.Save)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.opts.Controller.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.opts.Controller.Status().Available
	if devices == nil {
		devices = []gamepad.Info{}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

// handleButtons lists the names accepted by the binding fields.
func (s *Server) handleButtons(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, config.Buttons())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.opts.Controller.Config())
}

// handlePutConfig merges a partial config. With ?save=1 the result is also
// written to disk.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.command(&hub.ClientMessage{Type: hub.CmdUpdateConfig, Config: body}); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if save := r.URL.Query().Get("save"); save == "1" || save == "true" {
		if err := s.command(&hub.ClientMessage{Type: hub.CmdSaveConfig}); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.opts.Controller.Config())
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.command(&hub.ClientMessage{Type: hub.CmdSetEnabled, Enabled: req.Enabled}); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device *string `json:"device"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.command(&hub.ClientMessage{Type: hub.CmdSelectDevice, Device: req.Device}); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(s.page)
}

func (s *Server) command(msg *hub.ClientMessage) error {
	err := hub.Handle(s.opts.Controller, s.opts.Save, msg)
	if err != nil {
		s.logger.Warn("api command failed", "command", msg.Type, "error", err)
	}
	return err
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
