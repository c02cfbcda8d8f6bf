package main

import (
	"go/ast"
	"reflect"
	"strings"
	"testing"

	"github.com/xyproto/autopar/internal/liveset"
)

// parseFunc type checks src and returns the named function with an
// analyser for its file
func parseFunc(t *testing.T, src, name string) (*Unit, *Analyser, *ast.FuncDecl) {
	t.Helper()
	u, err := NewUnitFromSource("work.go", src)
	if err != nil {
		t.Fatalf("NewUnitFromSource: %v", err)
	}
	f := u.Files[0]
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
			return u, NewAnalyser(u.Fset, f, u.Info, AnalyserOptions{}), fn
		}
	}
	t.Fatalf("function %s not found", name)
	return nil, nil, nil
}

func analyse(t *testing.T, src, name string) DependencyTree {
	t.Helper()
	_, a, fn := parseFunc(t, src, name)
	tree, _, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatalf("AnalyseFunc(%s): %v", name, err)
	}
	return tree
}

func depsOf(tree DependencyTree) [][]int {
	out := make([][]int, len(tree))
	for i, n := range tree {
		out[i] = append([]int{}, n.Deps()...)
	}
	return out
}

const independentSrc = `package p

func work() {
	a := 4
	b := 3
	c := 5
	a += 1
	b += 1
	println(a, c)
	println(a, b)
}
`

func TestAnalyseIndependentAssignments(t *testing.T) {
	tree := analyse(t, independentSrc, "work")
	want := [][]int{{}, {}, {}, {0}, {1}, {2, 3}, {3, 4}}
	if got := depsOf(tree); !reflect.DeepEqual(got, want) {
		t.Errorf("deps = %v, want %v\n%s", got, want, tree.Dump())
	}
	for i, n := range tree {
		if n.Kind() != KindExpr {
			t.Errorf("node %d kind = %s, want Expr", i, n.Kind())
		}
	}
}

func TestAnalyseAntiDependency(t *testing.T) {
	src := `package p

func anti() {
	x := 1
	println(x)
	x = 2
	println(x)
}
`
	tree := analyse(t, src, "anti")
	// the assignment waits for the earlier reader
	want := [][]int{{}, {0}, {0, 1}, {2}}
	if got := depsOf(tree); !reflect.DeepEqual(got, want) {
		t.Errorf("deps = %v, want %v\n%s", got, want, tree.Dump())
	}
}

func TestAnalyseReadModes(t *testing.T) {
	src := `package p

func modes(xs []int, n int) {
	m := n
	ys := xs
	println(m, len(ys))
}
`
	tree := analyse(t, src, "modes")
	_, out0 := tree[0].Env()
	if out0.ContainsName("n") {
		t.Errorf("copying an int released it: out = %v", out0)
	}
	_, out1 := tree[1].Env()
	if !out1.ContainsName("xs") || !out1.ContainsName("ys") {
		t.Errorf("copying a slice must release it: out = %v", out1)
	}
}

func TestAnalyseLenIsCopyRead(t *testing.T) {
	src := `package p

func size(xs []int) int {
	n := len(xs)
	return n
}
`
	tree := analyse(t, src, "size")
	in, out := tree[0].Env()
	if !in.ContainsName("xs") {
		t.Errorf("len(xs) does not read xs: in = %v", in)
	}
	if out.ContainsName("xs") {
		t.Errorf("len(xs) released xs: out = %v", out)
	}
}

func TestAnalyseClosureCaptures(t *testing.T) {
	src := `package p

func closures() {
	x := 1
	f := func() int { return x }
	x = 2
	println(f())
}
`
	tree := analyse(t, src, "closures")
	in, _ := tree[3].Env()
	if !in.ContainsName("x") || !in.ContainsName("f") {
		t.Errorf("calling f must read its captures: in = %v", in)
	}
	// assigning x changes what f returns, so it also produces f
	if got, want := tree[3].Deps(), []int{2}; !reflect.DeepEqual(got, want) {
		t.Errorf("deps = %v, want %v", got, want)
	}
}

func TestAnalyseNestedBlocks(t *testing.T) {
	src := `package p

func guarded(cond bool) {
	v := 3
	if cond {
		println(v)
	} else {
		println(0)
	}
}
`
	tree := analyse(t, src, "guarded")
	if len(tree) != 2 {
		t.Fatalf("len(tree) = %d, want 2", len(tree))
	}
	eb, ok := tree[1].(*ExprBlockNode)
	if !ok {
		t.Fatalf("node 1 is %s, want ExprBlock", tree[1].Kind())
	}
	if len(eb.Children) != 2 || len(eb.slots) != 2 {
		t.Errorf("if/else has %d blocks and %d slots, want 2", len(eb.Children), len(eb.slots))
	}
	in, _ := eb.Env()
	if !in.Equal(liveset.Names("cond", "v")) {
		t.Errorf("in = %v, want {cond, v}", in)
	}
	if got := eb.Deps(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("deps = %v, want [0]", got)
	}
	if len(eb.Stmt().(*ast.IfStmt).Body.List) != 0 {
		t.Error("the blocks of the stored statement are not erased")
	}
}

func TestAnalyseDeclarationsAreOpaque(t *testing.T) {
	src := `package p

func decls() int {
	type pair struct{ a, b int }
	const k = 2
	p := pair{1, k}
	return p.a
}
`
	tree := analyse(t, src, "decls")
	for i := 0; i < 2; i++ {
		if tree[i].Kind() != KindMac {
			t.Errorf("node %d kind = %s, want Mac", i, tree[i].Kind())
		}
		if len(tree[i].Deps()) != 0 {
			t.Errorf("declaration %d has deps %v", i, tree[i].Deps())
		}
	}
}

func TestAnalyseInputsResolved(t *testing.T) {
	src := `package p

func mixed(n int, xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	scaled := total * n
	if scaled > 10 {
		scaled = 10
	}
	return scaled
}
`
	_, a, fn := parseFunc(t, src, "mixed")
	tree, in, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range tree {
		nodeIn, _ := n.Env()
		for _, name := range nodeIn.Paths() {
			found := in.Contains(name)
			for _, d := range n.Deps() {
				if d >= i {
					t.Errorf("node %d depends on %d", i, d)
				}
				if _, out := tree[d].Env(); out.Contains(name) {
					found = true
				}
			}
			if !found {
				t.Errorf("node %d reads %s without a producer", i, name)
			}
		}
	}
	if !in.Equal(liveset.Names("n", "xs")) {
		t.Errorf("function in = %v, want {n, xs}", in)
	}
}

func TestAnalyseStrictMoves(t *testing.T) {
	src := `package p

func twice(n int) {
	m := n
	println(m, n)
}
`
	_, a, fn := parseFunc(t, src, "twice")
	a.opts.StrictMoves = true
	_, _, _, err := a.AnalyseFunc(fn)
	if err == nil {
		t.Fatal("expected an error for a name read twice without a release")
	}
	ce, ok := asCompilerError(err)
	if !ok || ce.Category != CategoryAnalysis || !strings.Contains(ce.Message, "consumer not released") {
		t.Errorf("unexpected error: %v", err)
	}

	_, a, fn = parseFunc(t, src, "twice")
	if _, _, _, err := a.AnalyseFunc(fn); err != nil {
		t.Errorf("without strict moves: %v", err)
	}
}

func TestAnalysePlacement(t *testing.T) {
	src := `package p

func placed(xs []int) int {
	defer println("done")
	for _, x := range xs {
		if x < 0 {
			break
		}
	}
	for _, x := range xs {
		if x > 0 {
			return x
		}
	}
	return 0
}
`
	tree := analyse(t, src, "placed")
	if !tree[0].placement().pinned {
		t.Error("defer is not pinned")
	}
	if tree[1].placement().exits {
		t.Error("a break inside its loop leaves the level")
	}
	if !tree[2].placement().exits {
		t.Error("a return inside a loop does not leave the level")
	}
	if !sequentialLevel(tree) {
		t.Error("a level with defer must stay sequential")
	}
}

const aliasSrc = `package p

type box struct{ v int }

func (b *box) set(v int) { b.v = v }

func copied() int {
	a := []int{1, 2}
	b := a
	b[0] = 5
	x := a[0]
	return x
}

func method(bx *box) int {
	q := bx
	q.set(7)
	r := bx.v
	return r
}

func address(x int) int {
	p := &x
	*p = 3
	y := x
	return y
}
`

func TestAnalyseAliases(t *testing.T) {
	tests := []struct {
		name string
		want [][]int
	}{
		// the read of a waits for the write through b
		{"copied", [][]int{{}, {0}, {1}, {2}, {3}}},
		{"method", [][]int{{}, {0}, {1}, {2}}},
		{"address", [][]int{{}, {0}, {1}, {2}}},
	}
	for _, tt := range tests {
		tree := analyse(t, aliasSrc, tt.name)
		if got := depsOf(tree); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: deps = %v, want %v\n%s", tt.name, got, tt.want, tree.Dump())
		}
	}
}

func TestAnalyseAddressTaken(t *testing.T) {
	_, a, fn := parseFunc(t, aliasSrc, "address")
	if _, _, _, err := a.AnalyseFunc(fn); err != nil {
		t.Fatal(err)
	}
	x := fn.Type.Params.List[0].Names[0]
	p, _ := a.res.declared(x)
	if !a.res.shared[captureKey(p)] {
		t.Error("x has its address taken but is not shared")
	}
	_, a, fn = parseFunc(t, aliasSrc, "copied")
	if _, _, _, err := a.AnalyseFunc(fn); err != nil {
		t.Fatal(err)
	}
	if len(a.res.shared) != 0 {
		t.Errorf("copying a slice shares its variable: %v", a.res.shared)
	}
}
