package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ChessEngine implements Engine on top of corentings/chess. Moves are
// accepted in UCI (preferred) or SAN.
type ChessEngine struct{}

func NewChessEngine() *ChessEngine { return &ChessEngine{} }

func (*ChessEngine) NewGame() State { return nchess.NewGame() }

func (*ChessEngine) Apply(st State, move string) (State, string, error) {
	game, ok := st.(*nchess.Game)
	if !ok || game == nil {
		return nil, "", fmt.Errorf("not a chess state")
	}
	raw := strings.TrimSpace(move)
	if raw == "" {
		return nil, "", ErrIllegalMove
	}
	pos := game.Position()

	uci := strings.ToLower(raw)
	if mv, derr := (nchess.UCINotation{}).Decode(pos, uci); derr == nil {
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.Move(mv, nil); err != nil {
			return nil, "", ErrIllegalMove
		}
		return game, san, nil
	}

	// fallback: SAN input
	if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return nil, "", ErrIllegalMove
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return nil, "", ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, moves[len(moves)-1])
	return game, san, nil
}

func (*ChessEngine) TurnOf(st State) Color {
	game, ok := st.(*nchess.Game)
	if !ok || game == nil {
		return White
	}
	if game.Position().Turn() == nchess.Black {
		return Black
	}
	return White
}

func (*ChessEngine) Outcome(st State) Outcome {
	game, ok := st.(*nchess.Game)
	if !ok || game == nil {
		return OutcomeNone
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		return OutcomeWhiteWon
	case nchess.BlackWon:
		return OutcomeBlackWon
	case nchess.Draw:
		return OutcomeDraw
	default:
		return OutcomeNone
	}
}

func (*ChessEngine) Encode(st State) string {
	game, ok := st.(*nchess.Game)
	if !ok || game == nil {
		return ""
	}
	return game.FEN()
}
