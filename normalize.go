// Completion: 90% - Call hoisting so independent calls become statements
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"
)

// Normalise hoists independent call operands out of return statements and
// single value := statements, so that each call becomes a statement of its
// own and can be scheduled on its own goroutine:
//
//	return fib(n-1) + fib(n-2)
//
// becomes
//
//	par_10_18 := fib(n - 1)
//	par_21_29 := fib(n - 2)
//	return par_10_18 + par_21_29
//
// Names derive from the call spans, so running it on the same source always
// gives the same result. It returns the number of hoisted calls.
func (a *Analyser) Normalise(fn *ast.FuncDecl) int {
	if fn.Body == nil || a.info == nil {
		// the result type of a call is needed for the channel payload
		return 0
	}
	hoisted := 0
	astutil.Apply(fn.Body, func(c *astutil.Cursor) bool {
		switch n := c.Node().(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			if c.Index() < 0 {
				return true
			}
			calls := a.hoistable(n.Results...)
			if len(calls) < 2 {
				return true
			}
			names := a.hoist(calls, c)
			for i, r := range n.Results {
				n.Results[i] = replaceCalls(r, names)
			}
			hoisted += len(calls)
		case *ast.AssignStmt:
			if c.Index() < 0 || n.Tok != token.DEFINE || len(n.Lhs) != 1 || len(n.Rhs) != 1 {
				return true
			}
			calls := a.hoistable(n.Rhs[0])
			if len(calls) < 2 {
				return true
			}
			n.Rhs[0] = replaceCalls(n.Rhs[0], a.hoist(calls, c))
			hoisted += len(calls)
		}
		return true
	}, nil)
	if hoisted > 0 && VerboseMode {
		trace("hoisted calls", "func", fn.Name.Name, "count", hoisted)
	}
	return hoisted
}

// hoistable collects the call operands of the arithmetic trees in exprs,
// left to right. Short circuit operators stop the search since their right
// operand is not always evaluated.
func (a *Analyser) hoistable(exprs ...ast.Expr) []*ast.CallExpr {
	var calls []*ast.CallExpr
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		switch x := e.(type) {
		case *ast.ParenExpr:
			walk(x.X)
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				return
			}
			walk(x.X)
			walk(x.Y)
		case *ast.UnaryExpr:
			if x.Op != token.AND && x.Op != token.ARROW {
				walk(x.X)
			}
		case *ast.CallExpr:
			if a.isPlainCall(x) {
				calls = append(calls, x)
			}
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return calls
}

// isPlainCall reports whether c calls a function with a single known result,
// as opposed to a conversion or a builtin
func (a *Analyser) isPlainCall(c *ast.CallExpr) bool {
	if tv, ok := a.info.Types[c.Fun]; ok && tv.IsType() {
		return false
	}
	if id, ok := ast.Unparen(c.Fun).(*ast.Ident); ok {
		if _, builtin := a.info.Uses[id].(*types.Builtin); builtin {
			return false
		}
	}
	t, ok := a.res.singleValue(c)
	if !ok {
		return false
	}
	if b, isBasic := t.(*types.Basic); isBasic && b.Kind() == types.Invalid {
		return false
	}
	return true
}

// hoist inserts one temporary per call before the cursor
func (a *Analyser) hoist(calls []*ast.CallExpr, c *astutil.Cursor) map[*ast.CallExpr]*ast.Ident {
	names := make(map[*ast.CallExpr]*ast.Ident, len(calls))
	for _, call := range calls {
		if _, done := names[call]; done {
			continue
		}
		id := spanOf(a.file, call)
		name := fmt.Sprintf("par_%s", id)
		t, _ := a.res.singleValue(call)
		a.res.synthetic[name] = t
		names[call] = &ast.Ident{Name: name, NamePos: call.Pos()}
		lhs := &ast.Ident{Name: name, NamePos: call.Pos()}
		c.InsertBefore(&ast.AssignStmt{
			Lhs:    []ast.Expr{lhs},
			TokPos: call.Pos(),
			Tok:    token.DEFINE,
			Rhs:    []ast.Expr{call},
		})
	}
	return names
}

// replaceCalls returns e with the hoisted calls replaced by their temporaries
func replaceCalls(e ast.Expr, names map[*ast.CallExpr]*ast.Ident) ast.Expr {
	return astutil.Apply(e, func(cur *astutil.Cursor) bool {
		if call, ok := cur.Node().(*ast.CallExpr); ok {
			if id, found := names[call]; found {
				cur.Replace(id)
				return false
			}
		}
		return true
	}, nil).(ast.Expr)
}
