package search

import (
	"testing"

	"connectfour/internal/game"
)

func TestTreeShape(t *testing.T) {
	res, err := Search(game.NewBoard(), Config{Ply: 2, KeepTree: true})
	if err != nil {
		t.Fatal(err)
	}
	tree := res.Tree
	if tree == nil {
		t.Fatal("tree not kept")
	}
	if got, want := tree.Len(), 1+7+49; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	root := tree.Node(tree.Root())
	if root.Parent != NoNode || root.Move != -1 || root.Depth != 0 {
		t.Errorf("root = %+v", root)
	}
	if root.Value != res.Value {
		t.Errorf("root value %v, result value %v", root.Value, res.Value)
	}
	if len(root.Children) != game.Columns {
		t.Fatalf("root has %d children", len(root.Children))
	}
	for i, id := range root.Children {
		child := tree.Node(id)
		if child.Move != i || child.Parent != tree.Root() || child.Depth != 1 {
			t.Errorf("child %d = %+v", i, child)
		}
		if child.Value != res.Lines[i].Value {
			t.Errorf("child %d value %v, line value %v", i, child.Value, res.Lines[i].Value)
		}
	}
}

func TestTreePathAndBoard(t *testing.T) {
	start := play(t, 3)
	res, err := Search(start, Config{Ply: 2, KeepTree: true})
	if err != nil {
		t.Fatal(err)
	}
	tree := res.Tree
	child := tree.Children(tree.Root())[2]
	grandchild := tree.Children(child)[5]

	path := tree.Path(grandchild)
	if len(path) != 2 || path[0] != 2 || path[1] != 5 {
		t.Fatalf("Path() = %v, want [2 5]", path)
	}
	if got := tree.Route(grandchild); got != " -> 2 -> 5" {
		t.Errorf("Route() = %q", got)
	}
	if got := tree.Route(tree.Root()); got != "" {
		t.Errorf("root Route() = %q", got)
	}

	got, err := tree.Board(grandchild)
	if err != nil {
		t.Fatal(err)
	}
	want := play(t, 3, 2, 5)
	if got != want {
		t.Errorf("Board() = %s, want %s", got.Encode(), want.Encode())
	}
	if got := tree.Node(grandchild); got.Value != want.Score() {
		t.Errorf("leaf value %v, score %v", got.Value, want.Score())
	}
}

func TestTreeResolvedNodesAreLeaves(t *testing.T) {
	// Red wins at once in column 2; that child must not be expanded even
	// with depth left.
	b := play(t, 2, 5, 2, 5, 2, 6)
	for _, pruning := range []bool{false, true} {
		res, err := Search(b, Config{Ply: 3, Pruning: pruning, KeepTree: true})
		if err != nil {
			t.Fatal(err)
		}
		tree := res.Tree
		win := tree.Node(tree.Children(tree.Root())[2])
		if win.Move != 2 || !win.Terminal || len(win.Children) != 0 {
			t.Errorf("pruning=%v: winning node %+v", pruning, win)
		}
		other := tree.Node(tree.Children(tree.Root())[0])
		if other.Terminal || len(other.Children) == 0 {
			t.Errorf("pruning=%v: quiet node not expanded: %+v", pruning, other)
		}
	}
}

func TestTreePrunedChildrenIncomplete(t *testing.T) {
	var table [game.Columns][game.Columns]float64
	for b := range table[0] {
		table[0][b] = 5
	}
	res, err := Search(game.NewBoard(), Config{Ply: 2, Pruning: true, KeepTree: true, Evaluator: twoPlyEvaluator(table)})
	if err != nil {
		t.Fatal(err)
	}
	tree := res.Tree
	kids := tree.Children(tree.Root())
	if n := len(tree.Children(kids[0])); n != game.Columns {
		t.Errorf("first child has %d children, want all %d", n, game.Columns)
	}
	for _, id := range kids[1:] {
		if n := len(tree.Children(id)); n != 1 {
			t.Errorf("node %s has %d children after cut, want 1", tree.Route(id), n)
		}
	}
}

func TestNoTreeByDefault(t *testing.T) {
	res, err := AlphaBeta(game.NewBoard(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tree != nil || res.Tree.Len() != 0 {
		t.Errorf("tree kept without KeepTree")
	}
}
