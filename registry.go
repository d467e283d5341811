package main

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// RoomRegistry is the process-wide mapping from room id to live Room. Rooms
// appear on first join and disappear when their last member disconnects, or
// when the reaper closes them for idling.
type RoomRegistry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRoomRegistry(idleTimeout time.Duration) *RoomRegistry {
	registry := &RoomRegistry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go registry.reaperLoop()
	}
	return registry
}

// getOrCreate returns the live room for roomID, creating it on first join.
// Concurrent callers for the same unseen id observe the same room.
func (reg *RoomRegistry) getOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	room := newRoom(roomID, reg)
	reg.rooms[roomID] = room
	return room
}

// join resolves the room and joins it. A join can race the empty-room
// removal; when it loses, the room it fetched is already closed and the
// loop simply resolves a fresh one.
func (reg *RoomRegistry) join(cfg *Config, c *Client, roomID, username string) error {
	for {
		room := reg.getOrCreate(roomID)
		err := room.join(cfg, c, username)
		if errors.Is(err, errRoomClosed) {
			continue
		}
		if err == nil {
			logf(cfg, "ROOMS: %d rooms live", reg.count())
		}
		return err
	}
}

// removeIfEmpty drops the room from the registry, but only if it is still
// empty at the moment of removal. Locks are taken registry first, room
// second, same as every other path that holds both.
func (reg *RoomRegistry) removeIfEmpty(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r.mu.Lock()
	if len(r.clients) > 0 || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if reg.rooms[r.id] == r {
		delete(reg.rooms, r.id)
	}
}

func (reg *RoomRegistry) count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// reaperLoop periodically force-closes rooms that have been idle longer
// than idleTimeout. Closing the member connections drives the normal leave
// path on each read pump.
func (reg *RoomRegistry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		var idle []*Room
		for id, room := range reg.rooms {
			room.mu.Lock()
			if room.lastActive.Before(cutoff) {
				room.closed = true
				idle = append(idle, room)
				delete(reg.rooms, id)
			}
			room.mu.Unlock()
		}
		reg.mu.Unlock()

		for _, room := range idle {
			room.closeAll()
		}
	}
}

// newRoomID mints a crypto-random 8-char room id that does not collide with
// any live room.
func (reg *RoomRegistry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		reg.mu.Lock()
		_, exists := reg.rooms[id]
		reg.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// serveNewRoom hands lobbies a fresh unused room id.
func serveNewRoom(cfg *Config, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := reg.newRoomID()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": roomID})

		logf(cfg, "ROOMS: Minted room id %s for %s", roomID, realIP(r))
	}
}

// qrHandler renders a PNG QR code pointing a phone at the room, so sharing
// a session does not require typing the id.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/?room=" + strings.TrimSpace(roomID)

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGameServer wires the game routes:
//   - /ws                → WebSocket endpoint (rooms are chosen via JOIN_ROOM)
//   - /new               → mint a fresh room id
//   - /invite/:roomid/qr → PNG QR code for sharing a room
func registerGameServer(cfg *Config, mux *httprouter.Router) *RoomRegistry {
	reg := newRoomRegistry(cfg.sessionTimeout)

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, reg))
	mux.GET(cfg.prefix+"/new", serveNewRoom(cfg, reg))
	mux.GET(cfg.prefix+"/invite/:roomid/qr", qrHandler(cfg))

	return reg
}
