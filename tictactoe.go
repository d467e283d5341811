package main

import (
	"encoding/json"
)

const (
	symbolX = "X"
	symbolO = "O"

	// winnerDraw is stored in TicTacToeState.Winner when the board fills
	// with no three-in-a-row.
	winnerDraw = "draw"
)

// Board holds the nine cells in row-major order. Empty cells are the empty
// string internally but serialize as null, which is what the client renders.
type Board [9]string

func (b Board) MarshalJSON() ([]byte, error) {
	cells := make([]*string, len(b))
	for i := range b {
		if b[i] != "" {
			cells[i] = &b[i]
		}
	}
	return json.Marshal(cells)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var cells []*string
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	for i := range b {
		b[i] = ""
		if i < len(cells) && cells[i] != nil {
			b[i] = *cells[i]
		}
	}
	return nil
}

// TicTacToeState is the pure game state: no connection or room references,
// so moves can be validated and applied without any I/O.
//
// The machine has three phases: waiting (fewer than two symbol-holders),
// in progress (both assigned, no winner), and finished (Winner set to a
// player id or "draw"). Finished is terminal.
type TicTacToeState struct {
	Board   Board  `json:"board"`
	Turn    string `json:"turn"`    // player id allowed to move, empty while waiting
	Winner  string `json:"winner"`  // player id, "draw", or empty
	XPlayer string `json:"xPlayer"` // player id holding X, empty if vacant
	OPlayer string `json:"oPlayer"` // player id holding O, empty if vacant
}

func newTicTacToeState() TicTacToeState {
	return TicTacToeState{}
}

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// applyMove validates a move by playerID at index against state and returns
// the successor state. The input state is never modified; on error it is
// returned unchanged. Identical inputs always produce identical outputs.
func applyMove(state TicTacToeState, playerID string, index int) (TicTacToeState, error) {
	if state.Winner != "" {
		return state, errGameOver
	}
	if state.Turn == "" || state.Turn != playerID {
		return state, errNotYourTurn
	}
	if index < 0 || index > 8 {
		return state, errInvalidIndex
	}
	if state.Board[index] != "" {
		return state, errCellOccupied
	}

	var symbol string
	switch playerID {
	case state.XPlayer:
		symbol = symbolX
	case state.OPlayer:
		symbol = symbolO
	default:
		return state, errNotAPlayer
	}

	next := state
	next.Board[index] = symbol

	switch {
	case next.hasWin(symbol):
		next.Winner = playerID
	case next.boardFull():
		next.Winner = winnerDraw
	default:
		if playerID == next.XPlayer {
			next.Turn = next.OPlayer
		} else {
			next.Turn = next.XPlayer
		}
	}

	return next, nil
}

func (s TicTacToeState) hasWin(symbol string) bool {
	for _, line := range winningLines {
		if s.Board[line[0]] == symbol && s.Board[line[1]] == symbol && s.Board[line[2]] == symbol {
			return true
		}
	}
	return false
}

func (s TicTacToeState) boardFull() bool {
	for _, cell := range s.Board {
		if cell == "" {
			return false
		}
	}
	return true
}
