// Package websocket streams agent session events to connected clients.
// A client sends a query message and receives every orchestration event
// in order, ending with the answer event.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"medrun/internal/agent"
	"medrun/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Runner runs one query and exposes its event stream.
type Runner interface {
	Run(ctx context.Context, query string) (*agent.Session, <-chan agent.Event)
}

// clientMessage is what peers send: a query to run or a ping.
type clientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// controlMessage is what the server sends outside of agent events.
type controlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Client is one WebSocket connection. A connection runs at most one
// query at a time; events from a running session stream as they happen.
type Client struct {
	id     string
	conn   *websocket.Conn
	runner Runner
	send   chan []byte
	busy   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// ServeWS upgrades the request and starts the client's pumps.
func ServeWS(runner Runner, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		runner: runner,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendControl("error", "messages must be JSON")
			continue
		}

		switch msg.Type {
		case "ping":
			c.sendControl("pong", "")
		case "query", "":
			if strings.TrimSpace(msg.Query) == "" {
				c.sendControl("error", "query must not be empty")
				continue
			}
			if !c.busy.CompareAndSwap(false, true) {
				c.sendControl("error", "a query is already running on this connection")
				continue
			}
			go c.runQuery(msg.Query)
		default:
			c.sendControl("error", "unknown message type: "+msg.Type)
		}
	}
}

// runQuery streams every session event to the peer. The session stops if
// the connection drops.
func (c *Client) runQuery(query string) {
	defer c.busy.Store(false)

	_, events := c.runner.Run(c.ctx, query)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error().Err(err).Msg("event marshal failed")
			continue
		}
		select {
		case c.send <- data:
		case <-c.ctx.Done():
			// Drain the rest so the session goroutine can finish.
			for range events {
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) sendControl(typ, message string) {
	data, _ := json.Marshal(controlMessage{Type: typ, Message: message})
	select {
	case c.send <- data:
	default:
	}
}
