package search

import (
	"strconv"
	"strings"

	"connectfour/internal/game"
)

// NodeID addresses a node inside its Tree.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is one position in a search tree. The board is kept packed.
type Node struct {
	// Move is the column that produced this node from its parent, -1 at
	// the root.
	Move     int
	Parent   NodeID
	Children []NodeID
	// Value is the backed-up value; a leaf holds its own score.
	Value float64
	// Terminal is set when the position already holds four in a row.
	Terminal bool
	Depth    int
	board    game.Packed
}

// Tree is the arena of nodes built by one search. Node 0 is the root.
// A nil *Tree records nothing, which is how searches run without one.
type Tree struct {
	nodes []Node
}

func (t *Tree) add(parent NodeID, move int, b game.Board) NodeID {
	if t == nil {
		return NoNode
	}
	id := NodeID(len(t.nodes))
	n := Node{Move: move, Parent: parent, board: b.Pack()}
	if parent != NoNode {
		n.Depth = t.nodes[parent].Depth + 1
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}
	t.nodes = append(t.nodes, n)
	return id
}

func (t *Tree) settle(id NodeID, value float64, terminal bool) {
	if t == nil {
		return
	}
	t.nodes[id].Value = value
	t.nodes[id].Terminal = terminal
}

// Root returns the root id.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Node returns a copy of the node. The Children slice is shared.
func (t *Tree) Node(id NodeID) Node { return t.nodes[id] }

// Children returns the ids of the children of id in column order.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].Children }

// Board unpacks the position stored at id.
func (t *Tree) Board(id NodeID) (game.Board, error) {
	return t.nodes[id].board.Unpack()
}

// Path returns the columns played from the root to reach id.
func (t *Tree) Path(id NodeID) []int {
	var path []int
	for n := t.nodes[id]; n.Parent != NoNode; n = t.nodes[n.Parent] {
		path = append(path, n.Move)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Route renders Path as " -> 3 -> 4". The root renders as "".
func (t *Tree) Route(id NodeID) string {
	var sb strings.Builder
	for _, col := range t.Path(id) {
		sb.WriteString(" -> ")
		sb.WriteString(strconv.Itoa(col))
	}
	return sb.String()
}
