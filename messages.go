package main

import (
	"encoding/json"
)

// Client to server message types
const (
	msgJoinRoom    = "JOIN_ROOM"
	msgChatMessage = "CHAT_MESSAGE"
	msgGameAction  = "GAME_ACTION"
)

// Server to client message types
const (
	msgRoomJoined     = "ROOM_JOINED"
	msgPlayerJoined   = "PLAYER_JOINED"
	msgPlayerLeft     = "PLAYER_LEFT"
	msgNewChatMessage = "NEW_CHAT_MESSAGE"
	msgGameUpdate     = "GAME_UPDATE"
	msgError          = "ERROR"
)

// clientEnvelope frames every inbound message; the payload is decoded
// per-type after dispatch on the tag.
type clientEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serverEnvelope frames every outbound message.
type serverEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type chatMessagePayload struct {
	Message string `json:"message"`
}

type gameActionPayload struct {
	Action  string      `json:"action"`  // "MAKE_MOVE"
	Details moveDetails `json:"details"`
}

type moveDetails struct {
	Index int `json:"index"` // board cell, 0-8
}

// roomJoinedPayload is sent only to the joiner: the full room state plus
// the player id this connection was assigned.
type roomJoinedPayload struct {
	GameState
	PlayerID string `json:"playerId"`
}

type playerJoinedPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type playerLeftPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// newChatMessagePayload omits the timestamp: receivers attach their own
// local one for display.
type newChatMessagePayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type gameUpdatePayload struct {
	From    string         `json:"from"`   // acting player id
	Action  string         `json:"action"` // the action that produced this state
	Details TicTacToeState `json:"details"`
}

type errorPayload struct {
	Message string `json:"message"`
}
