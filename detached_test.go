package main

import (
	"go/ast"
	"strings"
	"testing"
)

const detachSrc = `package p

type Counter struct{ n int }

func add(a, b int) int { return a + b }

func total(base int, xs ...int) int {
	for _, x := range xs {
		base += x
	}
	return base
}

func (c *Counter) Inc(_ int) { c.n++ }

func (Counter) Zero() int { return 0 }

func clash(handle int) (r int) {
	res0 := handle
	r = res0
	return
}

func first[T any](xs []T) T { return xs[0] }

func pair() (int, string) { return 1, "a" }
`

// detachAll detaches every function of the file and returns the type
// checked result
func detachAll(t *testing.T) string {
	t.Helper()
	u, err := NewUnitFromSource("detach.go", detachSrc)
	if err != nil {
		t.Fatal(err)
	}
	f := u.Files[0]
	var fns []*ast.FuncDecl
	for _, d := range f.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			fns = append(fns, fn)
		}
	}
	for _, fn := range fns {
		detached, wrapper := Detach(fn)
		replaceDecl(f, fn, wrapper, detached)
	}
	out := render(t, u, f)
	if _, err := NewUnitFromSource("out.go", out); err != nil {
		t.Fatalf("detached file does not type check: %v\n%s", err, out)
	}
	return out
}

func TestDetach(t *testing.T) {
	out := detachAll(t)
	for _, want := range []string{
		"func addDetached(a, b int) <-chan func() int {",
		"return (<-addDetached(a, b))()",
		"return (<-totalDetached(base, xs...))()",
		"func (c *Counter) Inc(arg0 int) {",
		"(<-c.IncDetached(arg0))()",
		"return (<-recv.ZeroDetached())()",
		"handle1 := make(chan func() int, 1)",
		"return (<-firstDetached[T](xs))()",
		"func pairDetached() <-chan func() (int, string) {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestDetachKeepsOrder(t *testing.T) {
	out := detachAll(t)
	if strings.Index(out, "func add(") > strings.Index(out, "func addDetached(") {
		t.Errorf("the wrapper must take the place of the function\n%s", out)
	}
	if strings.Index(out, "func addDetached(") > strings.Index(out, "func total(") {
		t.Errorf("the detached function must follow its wrapper\n%s", out)
	}
}
