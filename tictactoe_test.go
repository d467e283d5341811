package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inProgressState() TicTacToeState {
	return TicTacToeState{
		Turn:    "player-x",
		XPlayer: "player-x",
		OPlayer: "player-o",
	}
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name     string
		state    func() TicTacToeState
		playerID string
		index    int
		wantErr  error
		validate func(t *testing.T, next TicTacToeState)
	}{
		{
			name:     "valid opening move",
			state:    inProgressState,
			playerID: "player-x",
			index:    4,
			validate: func(t *testing.T, next TicTacToeState) {
				assert.Equal(t, symbolX, next.Board[4])
				assert.Equal(t, "player-o", next.Turn)
				assert.Empty(t, next.Winner)
			},
		},
		{
			name:     "move out of turn",
			state:    inProgressState,
			playerID: "player-o",
			index:    0,
			wantErr:  errNotYourTurn,
		},
		{
			name: "move before both seats are held",
			state: func() TicTacToeState {
				return TicTacToeState{XPlayer: "player-x"}
			},
			playerID: "player-x",
			index:    0,
			wantErr:  errNotYourTurn,
		},
		{
			name: "move after game over",
			state: func() TicTacToeState {
				s := inProgressState()
				s.Winner = "player-x"
				s.Turn = ""
				return s
			},
			playerID: "player-o",
			index:    5,
			wantErr:  errGameOver,
		},
		{
			name:     "index below range",
			state:    inProgressState,
			playerID: "player-x",
			index:    -1,
			wantErr:  errInvalidIndex,
		},
		{
			name:     "index above range",
			state:    inProgressState,
			playerID: "player-x",
			index:    9,
			wantErr:  errInvalidIndex,
		},
		{
			name: "occupied cell",
			state: func() TicTacToeState {
				s := inProgressState()
				s.Board[4] = symbolO
				return s
			},
			playerID: "player-x",
			index:    4,
			wantErr:  errCellOccupied,
		},
		{
			name: "turn holder without a seat",
			state: func() TicTacToeState {
				s := inProgressState()
				s.Turn = "ghost"
				return s
			},
			playerID: "ghost",
			index:    0,
			wantErr:  errNotAPlayer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state()
			next, err := applyMove(state, tt.playerID, tt.index)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, state, next, "failed moves must leave state unchanged")
				return
			}

			require.NoError(t, err)
			tt.validate(t, next)
		})
	}
}

func TestApplyMoveIsDeterministic(t *testing.T) {
	state := inProgressState()
	state.Board[0] = symbolX
	state.Board[3] = symbolO
	state.Turn = "player-x"

	first, err1 := applyMove(state, "player-x", 1)
	second, err2 := applyMove(state, "player-x", 1)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestApplyMoveChangesExactlyOneCell(t *testing.T) {
	state := inProgressState()

	moves := []struct {
		playerID string
		index    int
	}{
		{"player-x", 4}, {"player-o", 0}, {"player-x", 8}, {"player-o", 2},
	}

	for _, m := range moves {
		next, err := applyMove(state, m.playerID, m.index)
		require.NoError(t, err)

		changed := 0
		for i := range next.Board {
			if next.Board[i] != state.Board[i] {
				changed++
			}
		}
		assert.Equal(t, 1, changed)

		state = next
	}
}

func TestApplyMoveDetectsAllWinningLines(t *testing.T) {
	for _, line := range winningLines {
		state := inProgressState()

		// X takes the first two cells of the line, O plays elsewhere, X
		// completes the line.
		var oCells []int
		for i := 0; i < 9; i++ {
			if i != line[0] && i != line[1] && i != line[2] {
				oCells = append(oCells, i)
			}
		}

		var err error
		xMoves := []int{line[0], line[1], line[2]}
		for i := 0; i < 2; i++ {
			state, err = applyMove(state, "player-x", xMoves[i])
			require.NoError(t, err)
			state, err = applyMove(state, "player-o", oCells[i])
			require.NoError(t, err)
		}

		state, err = applyMove(state, "player-x", xMoves[2])
		require.NoError(t, err)
		assert.Equal(t, "player-x", state.Winner, "line %v", line)

		// Finished is terminal.
		_, err = applyMove(state, "player-o", oCells[2])
		assert.ErrorIs(t, err, errGameOver)
	}
}

func TestApplyMoveDetectsDraw(t *testing.T) {
	state := inProgressState()

	// X O X
	// X O O
	// O X X
	sequence := []struct {
		playerID string
		index    int
	}{
		{"player-x", 0}, {"player-o", 1}, {"player-x", 2},
		{"player-o", 4}, {"player-x", 3}, {"player-o", 5},
		{"player-x", 7}, {"player-o", 6}, {"player-x", 8},
	}

	var err error
	for i, m := range sequence {
		state, err = applyMove(state, m.playerID, m.index)
		require.NoError(t, err, "move %d", i)

		if i < len(sequence)-1 {
			assert.Empty(t, state.Winner, "no winner before the board fills")
		}
	}

	assert.Equal(t, winnerDraw, state.Winner)
	assert.True(t, state.boardFull())
}

func TestBoardJSONRoundTrip(t *testing.T) {
	board := Board{symbolX, "", symbolO, "", "", "", "", symbolX, ""}

	data, err := json.Marshal(board)
	require.NoError(t, err)
	assert.JSONEq(t, `["X",null,"O",null,null,null,null,"X",null]`, string(data))

	var decoded Board
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, board, decoded)
}
