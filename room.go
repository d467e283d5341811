// Gamestate room server
//
// Each room is an isolated session identified by a client-chosen string id.
// Rooms own their entire state: player roster in join order, append-only chat
// log, and the embedded tic-tac-toe game.
//
// Seat rules:
// - First joiner becomes host and takes X; second joiner takes O
// - Turn opens (X first) once both symbols are held
// - Members past the two symbol-holders are spectators: all broadcasts,
//   chat allowed, moves rejected
// - A vacated symbol seat goes back up for grabs before the game starts;
//   once in progress, a symbol-holder leaving forfeits to the opponent
// - Finished games stay finished; a fresh game needs a fresh room

package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Player is one room member. The id is minted per connection and never
// reused.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChatMessage is immutable once appended to a room's log.
type ChatMessage struct {
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// GameState is everything a joiner needs to render the room.
type GameState struct {
	RoomID  string         `json:"roomId"`
	Players []Player       `json:"players"`
	Chat    []ChatMessage  `json:"chat"`
	Game    TicTacToeState `json:"game"`
	HostID  string         `json:"hostId"`
}

// Room owns one GameState and the set of live connections joined to it.
// All mutations hold mu, so at most one is in flight per room; outbound
// messages are only enqueued onto per-client buffered channels while the
// lock is held, which preserves commit order per connection without doing
// network I/O under the lock.
type Room struct {
	id      string
	clients map[*Client]bool
	state   GameState

	mu     sync.RWMutex
	closed bool

	createdAt  time.Time
	lastActive time.Time

	registry *RoomRegistry
}

func newRoom(id string, registry *RoomRegistry) *Room {
	now := time.Now()
	return &Room{
		id:      id,
		clients: make(map[*Client]bool),
		state: GameState{
			RoomID: id,
			Game:   newTicTacToeState(),
		},
		createdAt:  now,
		lastActive: now,
		registry:   registry,
	}
}

// newPlayerID mints an opaque connection-scoped player id.
func newPlayerID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// join adds a connection to the room, assigns a fresh player id, claims an
// open symbol seat if one exists, replies ROOM_JOINED to the joiner, and
// broadcasts PLAYER_JOINED to everyone else.
func (r *Room) join(cfg *Config, c *Client, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomClosed
	}
	if len(r.clients) >= cfg.maxRoomSize {
		return errRoomFull
	}

	player := Player{
		ID:       newPlayerID(),
		Username: username,
	}

	r.clients[c] = true
	r.state.Players = append(r.state.Players, player)
	if r.state.HostID == "" {
		r.state.HostID = player.ID
	}

	r.claimSeatLocked(player.ID)
	r.touchLocked()

	c.room = r
	c.player = player

	r.sendLocked(c, serverEnvelope{
		Type:    msgRoomJoined,
		Payload: r.snapshotLocked(player.ID),
	})

	r.broadcastOthersLocked(c, serverEnvelope{
		Type: msgPlayerJoined,
		Payload: playerJoinedPayload{
			ID:       player.ID,
			Username: player.Username,
		},
	})

	logf(cfg, "ROOMS: Player %q (%s) joined %s (%d members)", username, player.ID, r.id, len(r.state.Players))

	return nil
}

// claimSeatLocked hands a vacant symbol seat to playerID the moment they
// arrive. Turn opens, X first, once both seats are held on an unfinished
// board.
func (r *Room) claimSeatLocked(playerID string) {
	game := &r.state.Game

	switch {
	case game.XPlayer == "":
		game.XPlayer = playerID
	case game.OPlayer == "":
		game.OPlayer = playerID
	default:
		return // spectator
	}

	if game.XPlayer != "" && game.OPlayer != "" && game.Winner == "" && game.Turn == "" {
		game.Turn = game.XPlayer
	}
}

// leave removes the connection's player from the room. Idempotent: keyed on
// roster presence, so the eviction path and the read-pump teardown can both
// land here. If the leaver held a symbol mid-game, the opponent wins by
// forfeit. The last member out asks the registry to drop the room.
func (r *Room) leave(cfg *Config, c *Client) {
	r.mu.Lock()

	if r.clients[c] {
		delete(r.clients, c)
		c.closeSend()
	}

	idx := -1
	for i, p := range r.state.Players {
		if p.ID == c.player.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		empty := len(r.clients) == 0
		r.mu.Unlock()
		if empty {
			r.registry.removeIfEmpty(r)
		}
		return
	}

	player := r.state.Players[idx]

	// Rebuild rather than shift in place: earlier ROOM_JOINED snapshots may
	// still alias the old backing array from a pending write.
	players := make([]Player, 0, len(r.state.Players)-1)
	players = append(players, r.state.Players[:idx]...)
	players = append(players, r.state.Players[idx+1:]...)
	r.state.Players = players

	forfeit := r.vacateSeatLocked(player.ID)
	r.touchLocked()

	r.broadcastLocked(serverEnvelope{
		Type: msgPlayerLeft,
		Payload: playerLeftPayload{
			ID:       player.ID,
			Username: player.Username,
		},
	})

	if forfeit {
		r.broadcastLocked(serverEnvelope{
			Type: msgGameUpdate,
			Payload: gameUpdatePayload{
				From:    player.ID,
				Action:  "FORFEIT",
				Details: r.state.Game,
			},
		})
	}

	empty := len(r.clients) == 0
	r.mu.Unlock()

	logf(cfg, "ROOMS: Player %q (%s) left %s", player.Username, player.ID, r.id)

	if empty {
		r.registry.removeIfEmpty(r)
	}
}

// vacateSeatLocked clears playerID's symbol seat, if any. Returns true when
// the departure decided an in-progress game by forfeit.
func (r *Room) vacateSeatLocked(playerID string) bool {
	game := &r.state.Game

	var opponent string
	switch playerID {
	case game.XPlayer:
		game.XPlayer = ""
		opponent = game.OPlayer
	case game.OPlayer:
		game.OPlayer = ""
		opponent = game.XPlayer
	default:
		return false
	}

	if game.Winner != "" {
		return false // finished board stays as it ended
	}

	if opponent != "" {
		game.Winner = opponent
		game.Turn = ""
		return true
	}

	// Game never started; reopen the seat for the next joiner.
	game.Turn = ""
	return false
}

// postChat appends to the room's chat log and fans the message out to every
// member, the sender included.
func (r *Room) postChat(cfg *Config, c *Client, text string) error {
	if strings.TrimSpace(text) == "" {
		return errValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Chat = append(r.state.Chat, ChatMessage{
		From:      c.player.Username,
		Message:   text,
		Timestamp: time.Now(),
	})
	r.touchLocked()

	r.broadcastLocked(serverEnvelope{
		Type: msgNewChatMessage,
		Payload: newChatMessagePayload{
			From:    c.player.Username,
			Message: text,
		},
	})

	logf(cfg, "CHAT: %q in %s: %d bytes", c.player.Username, r.id, len(text))

	return nil
}

// applyGameAction validates and applies a game action from c. On success the
// new game state is broadcast to every member; on failure the error goes
// back to the caller, which reports it to the acting connection only.
func (r *Room) applyGameAction(cfg *Config, c *Client, action gameActionPayload) error {
	if action.Action != "MAKE_MOVE" {
		return errValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := applyMove(r.state.Game, c.player.ID, action.Details.Index)
	if err != nil {
		return err
	}

	r.state.Game = next
	r.touchLocked()

	r.broadcastLocked(serverEnvelope{
		Type: msgGameUpdate,
		Payload: gameUpdatePayload{
			From:    c.player.ID,
			Action:  action.Action,
			Details: next,
		},
	})

	logf(cfg, "GAME: %q played cell %d in %s", c.player.Username, action.Details.Index, r.id)

	return nil
}

// snapshotLocked copies the room state for a ROOM_JOINED payload. The copies
// matter: the envelope is serialized on the write pump after the lock is
// released.
func (r *Room) snapshotLocked(playerID string) roomJoinedPayload {
	return roomJoinedPayload{
		GameState: GameState{
			RoomID:  r.state.RoomID,
			Players: append([]Player(nil), r.state.Players...),
			Chat:    append([]ChatMessage(nil), r.state.Chat...),
			Game:    r.state.Game,
			HostID:  r.state.HostID,
		},
		PlayerID: playerID,
	}
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

// sendLocked enqueues for one member. A member whose buffer is full is
// evicted so a slow connection cannot stall or reorder the room's events
// for everyone else; their read pump will notice the closed connection and
// finish the leave.
func (r *Room) sendLocked(c *Client, msg serverEnvelope) {
	if !c.enqueue(msg) {
		delete(r.clients, c)
		c.closeSend()
	}
}

func (r *Room) broadcastLocked(msg serverEnvelope) {
	for c := range r.clients {
		r.sendLocked(c, msg)
	}
}

func (r *Room) broadcastOthersLocked(except *Client, msg serverEnvelope) {
	for c := range r.clients {
		if c == except {
			continue
		}
		r.sendLocked(c, msg)
	}
}

// memberCount reports the roster size.
func (r *Room) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state.Players)
}

// closeAll force-disconnects every member (used by the idle reaper). The
// read pumps observe the closed connections and run the normal leave path.
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		c.closeSend()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(r.clients, c)
	}
}
