package main

import (
	"go/ast"
	"strings"
	"testing"
)

func TestTargets(t *testing.T) {
	u, err := NewUnitFromSource("work.go", annotatedSrc)
	if err != nil {
		t.Fatal(err)
	}
	targets, err := u.Targets()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tg := range targets {
		names = append(names, funcName(tg.Fn))
	}
	if got := strings.Join(names, ","); got != "diamond,scan" {
		t.Errorf("Targets() = %s, want diamond,scan", got)
	}
}

func TestTargetsMisplaced(t *testing.T) {
	tests := []string{
		`package p

//autopar:parallelise
var x = 1
`,
		`package p

type (
	//autopar:parallelise
	T int
)
`,
		`package p

const (
	//autopar:parallelise
	c = 1
)
`,
	}
	for i, src := range tests {
		u, err := NewUnitFromSource("work.go", src)
		if err != nil {
			t.Fatal(err)
		}
		_, err = u.Targets()
		if err == nil {
			t.Errorf("%d: accepted a directive outside of a function", i)
			continue
		}
		if ce, ok := asCompilerError(err); !ok || ce.Category != CategoryHost {
			t.Errorf("%d: unexpected error %v", i, err)
		}
	}
}

func TestFuncName(t *testing.T) {
	src := `package p

type List[T any] struct{ items []T }

func (l *List[T]) Push(v T) { l.items = append(l.items, v) }

func (List[T]) Len() int { return 0 }

type Pair[K comparable, V any] struct{}

func (p Pair[K, V]) Get(k K) (v V) { return }

func free() {}
`
	u, err := NewUnitFromSource("names.go", src)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range u.Files[0].Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			names = append(names, funcName(fn))
		}
	}
	if got := strings.Join(names, ","); got != "List.Push,List.Len,Pair.Get,free" {
		t.Errorf("names = %s", got)
	}
}

func TestPerIterationLoopVars(t *testing.T) {
	u, err := NewUnitFromSource("new.go", "package p\n")
	if err != nil {
		t.Fatal(err)
	}
	if !u.PerIterationLoopVars(u.Files[0]) {
		t.Error("go1.24 file without per iteration loop variables")
	}

	u, err = NewUnitFromSource("old.go", "//go:build go1.21\n\npackage p\n")
	if err != nil {
		t.Fatal(err)
	}
	if u.PerIterationLoopVars(u.Files[0]) {
		t.Error("go1.21 file with per iteration loop variables")
	}

	u.GoVersion = "devel"
	u.Info = nil
	if u.PerIterationLoopVars(u.Files[0]) {
		t.Error("an invalid version enabled per iteration loop variables")
	}
}
