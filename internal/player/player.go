// Package player binds a side to a move-selection strategy.
package player

import (
	"fmt"
	"strings"

	"lukechampine.com/frand"

	"connectfour/internal/game"
	"connectfour/internal/search"
)

const (
	MinPly     = 1
	MaxPly     = 10
	DefaultPly = 9
)

// Kind names a move-selection strategy.
type Kind string

const (
	KindRandom    Kind = "random"
	KindGreedy    Kind = "greedy"
	KindMinimax   Kind = "minimax"
	KindAlphaBeta Kind = "alphabeta"
)

// ParseKind accepts the Kind names and a few aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return KindRandom, nil
	case "greedy", "simple":
		return KindGreedy, nil
	case "minimax":
		return KindMinimax, nil
	case "alphabeta", "alpha-beta", "pruning", "":
		return KindAlphaBeta, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Player is a computer opponent for one side. It holds no board.
type Player struct {
	Color game.Color
	Kind  Kind
	Ply   int
	// Intn draws the random baseline's choice; nil uses frand.
	Intn func(n int) int
}

// Option configures a Player.
type Option func(*Player)

// WithKind selects the strategy.
func WithKind(k Kind) Option { return func(p *Player) { p.Kind = k } }

// WithPly sets the search depth.
func WithPly(ply int) Option { return func(p *Player) { p.Ply = ply } }

// WithPruning picks alpha-beta when on and plain minimax when off.
func WithPruning(on bool) Option {
	return func(p *Player) {
		if on {
			p.Kind = KindAlphaBeta
		} else {
			p.Kind = KindMinimax
		}
	}
}

// New returns an alpha-beta player at DefaultPly unless options say
// otherwise.
func New(color game.Color, opts ...Option) *Player {
	p := &Player{Color: color, Kind: KindAlphaBeta, Ply: DefaultPly}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preset maps a difficulty level 1..10 onto a player: level 1 moves at
// random, level 2 is greedy, and higher levels search level-1 plies with
// pruning.
func Preset(color game.Color, level int) (*Player, error) {
	switch {
	case level < MinPly || level > MaxPly:
		return nil, fmt.Errorf("%w: level %d outside %d..%d", search.ErrInvalidPly, level, MinPly, MaxPly)
	case level == 1:
		return New(color, WithKind(KindRandom), WithPly(1)), nil
	case level == 2:
		return New(color, WithKind(KindGreedy), WithPly(1)), nil
	}
	return New(color, WithPly(level-1)), nil
}

// BestMove returns the column this player would play on b.
func (p *Player) BestMove(b game.Board) (int, error) {
	switch p.Kind {
	case KindRandom:
		return RandomMove(b, p.Intn)
	case KindGreedy:
		return GreedyMove(b, p.Color)
	case KindMinimax, KindAlphaBeta:
		res, err := p.Search(b)
		if err != nil {
			return -1, err
		}
		return res.Column, nil
	}
	return -1, fmt.Errorf("unknown strategy %q", p.Kind)
}

// Search runs the player's tree search and returns the full result.
func (p *Player) Search(b game.Board) (search.Result, error) {
	return search.Search(b, search.Config{
		Ply:     p.Ply,
		Pruning: p.Kind != KindMinimax,
		Side:    p.Color,
	})
}

// BestMove is the decision entry point: the column color plays on b when
// searching ply deep, with or without pruning.
func BestMove(b game.Board, color game.Color, ply int, usePruning bool) (int, error) {
	return New(color, WithPly(ply), WithPruning(usePruning)).BestMove(b)
}

// Hint suggests a move for the side to move at a shallower depth than ply,
// the way the interactive help does.
func Hint(b game.Board, ply int) (search.Result, error) {
	depth := int(float64(ply) / 1.5)
	if depth < MinPly {
		depth = MinPly
	}
	return search.Search(b, search.Config{Ply: depth, Pruning: true})
}

// RandomMove picks uniformly among the legal columns.
func RandomMove(b game.Board, intn func(int) int) (int, error) {
	moves := b.LegalMoves()
	if len(moves) == 0 {
		return -1, search.ErrNoLegalMoves
	}
	if intn == nil {
		intn = frand.Intn
	}
	return moves[intn(len(moves))], nil
}

// GreedyMove scores every immediate reply without looking further and
// keeps the best for color; ties go to the lowest column.
func GreedyMove(b game.Board, color game.Color) (int, error) {
	moves := b.LegalMoves()
	if len(moves) == 0 {
		return -1, search.ErrNoLegalMoves
	}
	best, bestScore := -1, 0.0
	for _, col := range moves {
		next, err := b.ApplyMove(col)
		if err != nil {
			return -1, err
		}
		score := next.Score()
		if best < 0 ||
			(color.Maximizing() && score > bestScore) ||
			(!color.Maximizing() && score < bestScore) {
			best, bestScore = col, score
		}
	}
	return best, nil
}
