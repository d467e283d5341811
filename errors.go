package main

import (
	"errors"
	"log"
	"time"
)

// Every rule violation a client can trigger is a distinct sentinel, so
// handlers can pick them apart with errors.Is. All of them are recoverable:
// the offending connection gets an ERROR frame and nothing else changes.
var (
	errValidation    = errors.New("invalid input")
	errNotYourTurn   = errors.New("it is not your turn")
	errGameOver      = errors.New("the game is already over")
	errCellOccupied  = errors.New("that cell is already occupied")
	errInvalidIndex  = errors.New("cell index must be between 0 and 8")
	errNotAPlayer    = errors.New("you do not hold a symbol in this game")
	errRoomFull      = errors.New("the room is full")
	errProtocol      = errors.New("malformed or unknown message")
	errAlreadyJoined = errors.New("this connection has already joined a room")

	// errRoomClosed is internal: a join raced the registry's empty-room
	// removal and must retry against a fresh room.
	errRoomClosed = errors.New("room is closed")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
