package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. It belongs to at most one room at a
// time; room and player are set by Room.join and only read afterwards on
// the connection's own read pump.
type Client struct {
	conn *websocket.Conn
	send chan serverEnvelope
	addr string

	room   *Room
	player Player

	mu        sync.Mutex
	closed    bool
	leaveOnce sync.Once
}

func newClient(conn *websocket.Conn, addr string) *Client {
	return &Client{
		conn: conn,
		send: make(chan serverEnvelope, 32),
		addr: addr,
	}
}

// enqueue hands a message to the write pump without blocking. Returns false
// if the buffer is full or the client is gone, in which case the room
// evicts the connection.
func (c *Client) enqueue(msg serverEnvelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound channel exactly once, regardless of whether
// eviction, leave, or the reaper gets there first.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// detach runs the leave path exactly once, no matter how many teardown
// signals race (read error, forced disconnect, reaper).
func (c *Client) detach(cfg *Config) {
	c.leaveOnce.Do(func() {
		if c.room != nil {
			c.room.leave(cfg, c)
		}
		c.closeSend()
	})
}

// sendError reports a rule violation to this connection only.
func (c *Client) sendError(err error) {
	c.enqueue(serverEnvelope{
		Type:    msgError,
		Payload: errorPayload{Message: err.Error()},
	})
}

// serveWS upgrades the connection and runs the read pump until the client
// goes away.
func serveWS(cfg *Config, registry *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: WebSocket upgrade from %s: %v", realIP(r), err)
			return
		}

		client := newClient(conn, realIP(r))

		logf(cfg, "SERVE: WebSocket connected from %s", client.addr)

		go client.writePump()
		client.readPump(cfg, registry)
	}
}

func (c *Client) readPump(cfg *Config, registry *RoomRegistry) {
	defer func() {
		c.detach(cfg)
		_ = c.conn.Close()
		logf(cfg, "SERVE: WebSocket disconnected from %s", c.addr)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// A frame that is not valid JSON costs the sender an ERROR reply,
		// not the connection.
		var env clientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(fmt.Errorf("%w: invalid JSON frame", errProtocol))
			continue
		}

		if err := c.dispatch(cfg, registry, env); err != nil {
			c.sendError(err)
		}
	}
}

// dispatch routes one decoded frame. Errors are reported to this connection
// only and never terminate it.
func (c *Client) dispatch(cfg *Config, registry *RoomRegistry, env clientEnvelope) error {
	switch env.Type {
	case msgJoinRoom:
		if c.room != nil {
			return errAlreadyJoined
		}
		var p joinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad JOIN_ROOM payload", errProtocol)
		}
		if p.RoomID == "" {
			return fmt.Errorf("%w: roomId is required", errValidation)
		}
		if p.Username == "" {
			return fmt.Errorf("%w: username is required", errValidation)
		}
		return registry.join(cfg, c, p.RoomID, p.Username)

	case msgChatMessage:
		if c.room == nil {
			return fmt.Errorf("%w: join a room first", errProtocol)
		}
		var p chatMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad CHAT_MESSAGE payload", errProtocol)
		}
		return c.room.postChat(cfg, c, p.Message)

	case msgGameAction:
		if c.room == nil {
			return fmt.Errorf("%w: join a room first", errProtocol)
		}
		var p gameActionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad GAME_ACTION payload", errProtocol)
		}
		return c.room.applyGameAction(cfg, c, p)

	default:
		return fmt.Errorf("%w: unknown message type %q", errProtocol, env.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
