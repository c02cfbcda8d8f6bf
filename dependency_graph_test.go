package main

import (
	"bytes"
	"strings"
	"testing"
)

const callsSrc = `package p

type T struct{}

func (t *T) m() { t.n() }

func (t T) n() { helper() }

func helper() { println() }

func a(n int) {
	if n > 0 {
		b(n - 1)
	}
}

func b(n int) { a(n) }

func lit() {
	f := func() { helper() }
	f()
}

func self(n int) int {
	if n == 0 {
		return 0
	}
	return self(n - 1)
}
`

func callGraph(t *testing.T) *DependencyGraph {
	t.Helper()
	u, err := NewUnitFromSource("calls.go", callsSrc)
	if err != nil {
		t.Fatal(err)
	}
	return BuildCallGraph(u.Files, u.Info)
}

func TestCalledFunctions(t *testing.T) {
	dg := callGraph(t)
	tests := []struct {
		name string
		want string
	}{
		{"T.m", "T.n,helper"},
		{"T.n", "helper"},
		{"helper", ""},
		{"a", "b"},
		{"lit", "helper"},
		{"self", ""},
	}
	for _, tt := range tests {
		if got := strings.Join(dg.CalledFunctions(tt.name), ","); got != tt.want {
			t.Errorf("CalledFunctions(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRecursive(t *testing.T) {
	dg := callGraph(t)
	for name, want := range map[string]bool{
		"self":   true,
		"a":      true,
		"b":      true,
		"T.m":    false,
		"helper": false,
		"lit":    false,
	} {
		if got := dg.Recursive(name); got != want {
			t.Errorf("Recursive(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestPrintDependencyTree(t *testing.T) {
	dg := callGraph(t)
	dg.MarkRoot("T.m")
	var buf bytes.Buffer
	dg.PrintDependencyTree(&buf)
	out := buf.String()
	for _, want := range []string{"  - T.m\n", "Reachable Functions: 3\n", "  T.m -> [T.n]\n", "  helper (leaf)\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}
