package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/supervisor"
)

// Controller is the supervisor surface exposed to clients.
type Controller interface {
	Status() supervisor.Status
	Config() config.Config
	SetConfig(cfg config.Config)
	SetEnabled(enabled bool)
	Select(id string)
}

// Saver persists a config.
type Saver func(cfg config.Config) error

var errUnknownCommand = errors.New("unknown command")

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client attached to the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// WritePump sends messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	defer func() {
		c.conn.Close()
	}()

	for msg := range c.send {
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		if err != nil {
			break
		}
	}
}

// ReadPumpWithHandler reads messages from the WebSocket and handles client commands.
func (c *Client) ReadPumpWithHandler(ctl Controller, save Saver) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.hub.logger.Warn("parsing client message", "error", err)
			c.reply(NewReply("", fmt.Errorf("malformed message: %w", err)))
			continue
		}

		err = Handle(ctl, save, &clientMsg)
		if err != nil {
			c.hub.logger.Warn("client command failed", "command", clientMsg.Type, "error", err)
		} else {
			c.hub.logger.Info("client command", "command", clientMsg.Type)
		}
		c.reply(NewReply(clientMsg.Type, err))
	}
}

func (c *Client) reply(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client has been closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close closes the send channel once. Later sends are dropped.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Handle applies one client command.
func Handle(ctl Controller, save Saver, msg *ClientMessage) error {
	switch msg.Type {
	case CmdUpdateConfig:
		cfg, err := MergeConfig(ctl.Config(), msg.Config)
		if err != nil {
			return err
		}
		ctl.SetConfig(cfg)
		return nil

	case CmdSetEnabled:
		if msg.Enabled == nil {
			return errors.New("missing enabled")
		}
		ctl.SetEnabled(*msg.Enabled)
		return nil

	case CmdSelectDevice:
		if msg.Device == nil {
			return errors.New("missing device")
		}
		ctl.Select(*msg.Device)
		return nil

	case CmdSaveConfig:
		if save == nil {
			return errors.New("saving disabled")
		}
		return save(ctl.Config())

	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, msg.Type)
	}
}

// MergeConfig overlays the JSON object patch onto base. Fields absent from
// patch keep their current value.
func MergeConfig(base config.Config, patch json.RawMessage) (config.Config, error) {
	if len(patch) == 0 {
		return base, errors.New("missing config")
	}
	if err := json.Unmarshal(patch, &base); err != nil {
		return base, fmt.Errorf("invalid config: %w", err)
	}
	return base.Sanitize(), nil
}
