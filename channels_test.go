package main

import (
	"strings"
	"testing"

	"github.com/xyproto/autopar/internal/liveset"
)

const fibSrc = `package p

//autopar:parallelise
func fib(n int) int {
	switch n {
	case 0, 1:
		return 1
	default:
		return fib(n-1) + fib(n-2)
	}
}
`

func TestChannelsDiamond(t *testing.T) {
	_, a, fn := parseFunc(t, diamondSrc, "diamond")
	tree, _, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatal(err)
	}
	sched := schedule(t, tree)
	a.res.FillChannels(tree, sched)

	chans := PlanChannels(sched)
	if len(chans) != 1 {
		t.Fatalf("got %d channels, want 1", len(chans))
	}
	ch := chans[0]
	if ch.To != tree[3].StmtID() || ch.From != tree[2].StmtID() {
		t.Errorf("channel %s -> %s, want %s -> %s", ch.From, ch.To, tree[2].StmtID(), tree[3].StmtID())
	}
	if !ch.Env.Equal(liveset.Names("c")) {
		t.Errorf("carried = %v, want {c}", ch.Env)
	}
	if want := "sync_" + tree[3].StmtID().String() + "_" + tree[2].StmtID().String(); ch.Name() != want {
		t.Errorf("Name() = %q, want %q", ch.Name(), want)
	}
}

func TestCarriedEnvSkipsOuterNames(t *testing.T) {
	src := `package p

func outer(n int) int {
	a := n
	b := n
	n++
	c := a + b + n
	return c
}
`
	_, a, fn := parseFunc(t, src, "outer")
	tree, _, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatal(err)
	}
	declared := a.res.levelDeclared(tree)
	if declared.ContainsName("n") {
		t.Errorf("parameter n counted as declared on the level: %v", declared)
	}
	// n is produced by n++ but lives in the enclosing scope
	env := CarriedEnv(tree, 2, 3, declared)
	if !env.Empty() {
		t.Errorf("carried = %v, want nothing", env)
	}
	if env := CarriedEnv(tree, 0, 3, declared); !env.Equal(liveset.Names("a")) {
		t.Errorf("carried = %v, want {a}", env)
	}
}

func TestCatalogueNestedLevels(t *testing.T) {
	_, a, fn := parseFunc(t, fibSrc, "fib")
	if n := a.Normalise(fn); n != 2 {
		t.Fatalf("Normalise hoisted %d calls, want 2", n)
	}
	tree, _, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatal(err)
	}
	sched := schedule(t, tree)
	a.res.FillChannels(tree, sched)

	if chans := PlanChannels(sched); len(chans) != 0 {
		t.Errorf("the function level has %d channels", len(chans))
	}
	catalogue := CatalogueAll(sched)
	if len(catalogue) != 1 {
		t.Fatalf("got %d levels with channels, want 1", len(catalogue))
	}
	sw := tree[0].(*ExprBlockNode)
	if catalogue[0].Level != sw.Children[1].StmtID() {
		t.Errorf("channels on level %s, want the default clause %s", catalogue[0].Level, sw.Children[1].StmtID())
	}
	ch := catalogue[0].Channels[0]
	if ch.Env.Len() != 1 || !strings.HasPrefix(ch.Env.Idents()[0], "par_") {
		t.Errorf("carried = %v, want one hoisted call", ch.Env)
	}
}

const sharedSrc = `package p

func f() int { return 2 }

func pointed() int {
	x := f()
	p := &x
	b := f()
	b += 1
	b += 2
	y := x + b
	return y
}
`

func TestFillChannelsSkipsSharedStorage(t *testing.T) {
	_, a, fn := parseFunc(t, sharedSrc, "pointed")
	tree, _, _, err := a.AnalyseFunc(fn)
	if err != nil {
		t.Fatal(err)
	}
	sched := schedule(t, tree)
	a.res.FillChannels(tree, sched)
	chans := PlanChannels(sched)
	if len(chans) != 1 || chans[0].From != tree[1].StmtID() {
		t.Fatalf("got channels %v, want one from p := &x\n%s", chans, sched.Dump())
	}
	// p points to x, so x must stay the one variable of the level
	if !chans[0].Env.Equal(liveset.Names("p")) {
		t.Errorf("carried = %v, want {p}", chans[0].Env)
	}

	out, _ := rewrite(t, sharedSrc, "pointed", ReconstructOptions{})
	if !strings.Contains(out, "var x int\n") {
		t.Errorf("x is not declared for the whole level\n%s", out)
	}
}
