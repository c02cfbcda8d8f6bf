package main

import (
	"testing"
)

func schedule(t *testing.T, tree DependencyTree) Schedule {
	t.Helper()
	sched, err := BuildSchedule(tree)
	if err != nil {
		t.Fatalf("BuildSchedule: %v\n%s", err, tree.Dump())
	}
	return sched
}

// checkSyncs verifies that every sync entry has exactly one receiver
func checkSyncs(t *testing.T, sched Schedule) {
	t.Helper()
	var all []*ScheduleTree
	var syncs []*ScheduleTree
	var walk func(e *ScheduleTree)
	walk = func(e *ScheduleTree) {
		if e.Kind == ScheduleSync {
			syncs = append(syncs, e)
			return
		}
		all = append(all, e)
		for _, c := range e.Children {
			walk(c)
		}
	}
	for _, root := range sched {
		walk(root)
	}
	for _, s := range syncs {
		receivers := 0
		for _, e := range all {
			if e.ID() != s.Target {
				continue
			}
			for _, p := range e.Prereqs {
				if p == s.Source {
					receivers++
				}
			}
		}
		if receivers != 1 {
			t.Errorf("sync %s -> %s has %d receivers", s.Source, s.Target, receivers)
		}
	}
}

func countSyncs(sched Schedule) int {
	n := 0
	var walk func(e *ScheduleTree)
	walk = func(e *ScheduleTree) {
		if e.Kind == ScheduleSync {
			n++
			return
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	for _, root := range sched {
		walk(root)
	}
	return n
}

func TestScheduleIndependentAssignments(t *testing.T) {
	tree := analyse(t, independentSrc, "work")
	sched := schedule(t, tree)
	checkSyncs(t, sched)

	if len(sched) != 3 {
		t.Fatalf("got %d spanning trees, want 3\n%s", len(sched), sched.Dump())
	}
	for i, root := range sched {
		if root.Index != i {
			t.Errorf("tree %d is rooted at node %d", i, root.Index)
		}
	}
	third := sched[0].Children[0]
	if third.Index != 3 || third.Weight != 2 {
		t.Errorf("a += 1 placed as node %d weight %d", third.Index, third.Weight)
	}
	if len(third.Children) != 2 || third.Children[0].Index != 5 || third.Children[1].Index != 6 {
		t.Fatalf("both prints should follow a += 1\n%s", sched.Dump())
	}
	if got := third.Children[0].Prereqs; len(got) != 1 || got[0] != tree[2].StmtID() {
		t.Errorf("println(a, c) prereqs = %v, want [%s]", got, tree[2].StmtID())
	}
	if got := third.Children[1].Prereqs; len(got) != 1 || got[0] != tree[4].StmtID() {
		t.Errorf("println(a, b) prereqs = %v, want [%s]", got, tree[4].StmtID())
	}
	if countSyncs(sched) != 2 {
		t.Errorf("got %d sync edges, want 2", countSyncs(sched))
	}
}

func TestScheduleLinear(t *testing.T) {
	src := `package p

func f() int { return 1 }

func linear() {
	x := f()
	y := x + 1
	println(y)
}
`
	sched := schedule(t, analyse(t, src, "linear"))
	if len(sched) != 1 {
		t.Fatalf("got %d spanning trees, want 1", len(sched))
	}
	if n := len(sched[0].Nodes()); n != 3 {
		t.Errorf("tree has %d nodes, want 3", n)
	}
	if countSyncs(sched) != 0 {
		t.Errorf("got %d sync edges, want none", countSyncs(sched))
	}
	if w := sched[0].Nodes()[2].Weight; w != 3 {
		t.Errorf("weight of the last node = %d, want 3", w)
	}
}

const diamondSrc = `package p

func diamond() int {
	a := 1
	b := a
	c := a
	d := b + c
	return d
}
`

func TestScheduleDiamond(t *testing.T) {
	tree := analyse(t, diamondSrc, "diamond")
	sched := schedule(t, tree)
	checkSyncs(t, sched)

	if len(sched) != 1 {
		t.Fatalf("got %d spanning trees, want 1", len(sched))
	}
	root := sched[0]
	if len(root.Children) != 2 {
		t.Fatalf("a has %d children, want 2\n%s", len(root.Children), sched.Dump())
	}
	b, c := root.Children[0], root.Children[1]
	if b.Index != 1 || c.Index != 2 {
		t.Fatalf("children of a are nodes %d and %d", b.Index, c.Index)
	}
	// equal weights: the first dependency is the parent
	if len(b.Children) != 1 || b.Children[0].Index != 3 {
		t.Fatalf("d is not placed below b\n%s", sched.Dump())
	}
	if len(c.Children) != 1 || c.Children[0].Kind != ScheduleSync || c.Children[0].Target != tree[3].StmtID() {
		t.Errorf("c does not send to d\n%s", sched.Dump())
	}
	if got := b.Children[0].Prereqs; len(got) != 1 || got[0] != tree[2].StmtID() {
		t.Errorf("d prereqs = %v", got)
	}
}

func TestScheduleBlockWithExternalDependency(t *testing.T) {
	src := `package p

func guarded(cond bool) {
	v := 3
	if cond {
		println(v)
	}
}
`
	sched := schedule(t, analyse(t, src, "guarded"))
	if len(sched) != 1 || len(sched[0].Children) != 1 {
		t.Fatalf("the block should hang below v\n%s", sched.Dump())
	}
	block := sched[0].Children[0]
	if block.Kind != ScheduleBlock || len(block.Inner) != 1 {
		t.Errorf("if entry kind %s with %d inner schedules", block.Kind, len(block.Inner))
	}
	if countSyncs(sched) != 0 {
		t.Errorf("got %d sync edges, want none", countSyncs(sched))
	}
}

func TestScheduleHeaviestParent(t *testing.T) {
	src := `package p

func heavy(n int) int {
	a := n
	b := n
	b += 1
	b += 2
	c := a + b
	return c
}
`
	tree := analyse(t, src, "heavy")
	sched := schedule(t, tree)
	checkSyncs(t, sched)
	e := sched.Find(tree[4].StmtID())
	if e == nil {
		t.Fatal("c := a + b is not scheduled")
	}
	// b's chain weighs 3, a weighs 1
	if e.Weight != 4 {
		t.Errorf("weight = %d, want 4", e.Weight)
	}
	if len(e.Prereqs) != 1 || e.Prereqs[0] != tree[0].StmtID() {
		t.Errorf("prereqs = %v, want the light branch", e.Prereqs)
	}
}

func TestScheduleCycle(t *testing.T) {
	a, b := &ExprNode{}, &ExprNode{}
	a.id, b.id = StmtId{Lo: 1, Hi: 2}, StmtId{Lo: 3, Hi: 4}
	a.setDeps([]int{1})
	b.setDeps([]int{0})
	_, err := BuildSchedule(DependencyTree{a, b})
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if ce, ok := asCompilerError(err); !ok || ce.Category != CategoryCycle {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScheduleAncestorNeedsNoSync(t *testing.T) {
	src := `package p

func chain() int {
	a := 1
	b := a + 1
	c := a + b
	return c
}
`
	tree := analyse(t, src, "chain")
	sched := schedule(t, tree)
	checkSyncs(t, sched)
	// a runs before c on the same path, so only b is a parent of c
	if n := countSyncs(sched); n != 0 {
		t.Errorf("got %d sync edges, want none\n%s", n, sched.Dump())
	}
	if e := sched.Find(tree[2].StmtID()); e == nil || len(e.Prereqs) != 0 {
		t.Errorf("c waits for a message\n%s", sched.Dump())
	}
}
