package hub

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/soar/padmouse/internal/supervisor"
)

// Message types sent to clients.
const (
	TypeFull  = "full"
	TypeDelta = "delta"
	TypeAck   = "ack"
	TypeError = "error"
)

// Command types accepted from clients.
const (
	CmdUpdateConfig = "update_config"
	CmdSetEnabled   = "set_enabled"
	CmdSelectDevice = "select_device"
	CmdSaveConfig   = "save_config"
)

// WSMessage represents a WebSocket message sent from server to client.
type WSMessage struct {
	Type      string             `json:"type"`              // "full", "delta", "ack" or "error"
	Seq       int64              `json:"seq"`               // Sequence number for ordering
	Timestamp int64              `json:"timestamp"`         // Unix timestamp in milliseconds
	Data      *supervisor.Status `json:"data,omitempty"`    // Full status for type "full"
	Changes   *StatusDelta       `json:"changes,omitempty"` // Changed fields for type "delta"
	Command   string             `json:"command,omitempty"` // Command answered by "ack" or "error"
	Error     string             `json:"error,omitempty"`
}

// NewFullMessage creates a "full" type message containing the complete status.
func NewFullMessage(seq int64, st *supervisor.Status) *WSMessage {
	return &WSMessage{
		Type:      TypeFull,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      st,
	}
}

// NewDeltaMessage creates a "delta" type message containing only changed fields.
func NewDeltaMessage(seq int64, changes *StatusDelta) *WSMessage {
	return &WSMessage{
		Type:      TypeDelta,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Changes:   changes,
	}
}

// NewReply answers a client command.
func NewReply(command string, err error) *WSMessage {
	msg := &WSMessage{
		Type:      TypeAck,
		Timestamp: time.Now().UnixMilli(),
		Command:   command,
	}
	if err != nil {
		msg.Type = TypeError
		msg.Error = err.Error()
	}
	return msg
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type    string          `json:"type"`
	Config  json.RawMessage `json:"config,omitempty"`  // partial config for update_config
	Enabled *bool           `json:"enabled,omitempty"` // for set_enabled
	Device  *string         `json:"device,omitempty"`  // for select_device
}

// StatusDelta carries the status fields that changed since the previous
// message. Nil fields are unchanged.
type StatusDelta struct {
	Enabled   *bool           `json:"enabled,omitempty"`
	Selected  *string         `json:"selected,omitempty"`
	State     *string         `json:"state,omitempty"`
	Device    *string         `json:"device,omitempty"`
	Connected *bool           `json:"connected,omitempty"`
	Precision *bool           `json:"precision,omitempty"`
	Turbo     *bool           `json:"turbo,omitempty"`
	Available *[]DeviceDigest `json:"available,omitempty"`
}

// DeviceDigest is the per-device part of a delta.
type DeviceDigest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsEmpty reports whether nothing changed.
func (d *StatusDelta) IsEmpty() bool {
	return *d == StatusDelta{}
}

// StateName is the engine state shown to clients, "idle" when no engine
// exists.
func StateName(st *supervisor.Status) string {
	if st.Engine == nil {
		return "idle"
	}
	return st.Engine.State.String()
}

type flatStatus struct {
	enabled   bool
	selected  string
	state     string
	device    string
	connected bool
	precision bool
	turbo     bool
	available []DeviceDigest
}

func flatten(st *supervisor.Status) flatStatus {
	f := flatStatus{
		enabled:  st.Enabled,
		selected: st.Selected,
		state:    StateName(st),
	}
	if e := st.Engine; e != nil {
		f.device = e.Device
		f.connected = e.Connected
		f.precision = e.Precision
		f.turbo = e.Turbo
	}
	f.available = make([]DeviceDigest, 0, len(st.Available))
	for _, info := range st.Available {
		f.available = append(f.available, DeviceDigest{ID: info.ID, Name: info.Name})
	}
	return f
}

// ComputeDelta returns the fields of cur that differ from prev.
func ComputeDelta(prev, cur *supervisor.Status) *StatusDelta {
	p, c := flatten(prev), flatten(cur)
	d := &StatusDelta{}

	if p.enabled != c.enabled {
		d.Enabled = &c.enabled
	}
	if p.selected != c.selected {
		d.Selected = &c.selected
	}
	if p.state != c.state {
		d.State = &c.state
	}
	if p.device != c.device {
		d.Device = &c.device
	}
	if p.connected != c.connected {
		d.Connected = &c.connected
	}
	if p.precision != c.precision {
		d.Precision = &c.precision
	}
	if p.turbo != c.turbo {
		d.Turbo = &c.turbo
	}
	if !slices.Equal(p.available, c.available) {
		d.Available = &c.available
	}
	return d
}
