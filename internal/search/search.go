// Package search picks Connect Four moves by minimax, optionally with
// alpha-beta pruning, over a depth-bounded game tree.
package search

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"connectfour/internal/game"
)

var (
	ErrNoLegalMoves = errors.New("no legal moves")
	ErrInvalidPly   = errors.New("invalid ply")
)

// Evaluator scores a board from Red's perspective.
type Evaluator func(game.Board) float64

// Config controls one search.
type Config struct {
	// Ply is the search depth in half-moves; it must be at least 1.
	Ply     int
	Pruning bool
	// Evaluator defaults to game.Evaluate.
	Evaluator Evaluator
	// Side picks the root polarity: Red maximizes, Yellow minimizes.
	// Empty means the side to move.
	Side game.Color
	// KeepTree materializes every visited node in Result.Tree.
	KeepTree bool
}

// Line is a root move and the value the search backed up for it. Under
// pruning, values of moves that were not chosen may be bounds rather than
// exact.
type Line struct {
	Column int     `json:"column"`
	Value  float64 `json:"value"`
}

// Stats counts the work done by a search.
type Stats struct {
	Nodes   int `json:"nodes"`
	Leaves  int `json:"leaves"`
	Cutoffs int `json:"cutoffs"`
}

// Result is the outcome of a search.
type Result struct {
	Column int     `json:"column"`
	Value  float64 `json:"value"`
	Lines  []Line  `json:"lines"`
	Stats  Stats   `json:"stats"`
	Tree   *Tree   `json:"-"`
}

// Minimax searches b to ply without pruning.
func Minimax(b game.Board, ply int) (Result, error) {
	return Search(b, Config{Ply: ply})
}

// AlphaBeta searches b to ply with alpha-beta pruning.
func AlphaBeta(b game.Board, ply int) (Result, error) {
	return Search(b, Config{Ply: ply, Pruning: true})
}

// Search backs up values from a tree of all continuations of b to
// cfg.Ply and returns the root move. Children are visited in ascending
// column order and the root keeps the first child unless a later one is
// strictly better, so ties go to the lowest column.
//
// The root is always expanded. Below it, positions holding four in a row
// are leaves whatever depth remains.
func Search(b game.Board, cfg Config) (Result, error) {
	if cfg.Ply < 1 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidPly, cfg.Ply)
	}
	if len(b.LegalMoves()) == 0 {
		return Result{}, ErrNoLegalMoves
	}
	s := &searcher{eval: cfg.Evaluator, pruning: cfg.Pruning}
	if s.eval == nil {
		s.eval = game.Evaluate
	}
	if cfg.KeepTree {
		s.tree = &Tree{}
	}
	side := cfg.Side
	if side == game.Empty {
		side = b.Turn()
	}

	start := time.Now()
	value := s.visit(b, NoNode, -1, cfg.Ply, math.Inf(-1), math.Inf(1), true)
	best := selectLine(s.lines, side.Maximizing())

	log.Debug().
		Int("ply", cfg.Ply).
		Bool("pruning", cfg.Pruning).
		Str("side", side.String()).
		Int("column", best.Column).
		Float64("value", value).
		Int("nodes", s.stats.Nodes).
		Int("leaves", s.stats.Leaves).
		Int("cutoffs", s.stats.Cutoffs).
		Dur("elapsed", time.Since(start)).
		Msg("search-complete")

	return Result{
		Column: best.Column,
		Value:  value,
		Lines:  s.lines,
		Stats:  s.stats,
		Tree:   s.tree,
	}, nil
}

type searcher struct {
	eval    Evaluator
	pruning bool
	tree    *Tree
	stats   Stats
	lines   []Line
}

// visit returns the backed-up value of b searched ply deep within the
// window [alpha, beta]. The side to move on b decides whether the node
// maximizes or minimizes.
func (s *searcher) visit(b game.Board, parent NodeID, move, ply int, alpha, beta float64, root bool) float64 {
	id := s.tree.add(parent, move, b)
	s.stats.Nodes++
	score := s.eval(b)
	resolved := game.IsResolvedScore(score)

	moves := b.LegalMoves()
	if len(moves) == 0 || (!root && (ply == 0 || resolved)) {
		s.stats.Leaves++
		s.tree.settle(id, score, resolved)
		return score
	}

	maximizing := b.Turn().Maximizing()
	value := math.Inf(1)
	if maximizing {
		value = math.Inf(-1)
	}
	for _, col := range moves {
		child, err := b.ApplyMove(col)
		if err != nil {
			// LegalMoves only lists playable columns.
			panic(err)
		}
		v := s.visit(child, id, col, ply-1, alpha, beta, false)
		if root {
			s.lines = append(s.lines, Line{Column: col, Value: v})
		}
		if maximizing {
			value = max(value, v)
			alpha = max(alpha, v)
		} else {
			value = min(value, v)
			beta = min(beta, v)
		}
		if s.pruning && alpha > beta {
			s.stats.Cutoffs++
			break
		}
	}
	s.tree.settle(id, value, resolved)
	return value
}

func selectLine(lines []Line, maximizing bool) Line {
	best := lines[0]
	for _, l := range lines[1:] {
		if (maximizing && l.Value > best.Value) || (!maximizing && l.Value < best.Value) {
			best = l
		}
	}
	return best
}
