package main

import (
	"go/ast"

	"github.com/xyproto/autopar/internal/liveset"
)

// patternEnv collects the names bound by a pattern position: the left side
// of :=, the names of a var spec, range keys, type switch guards and the
// receive clause of a select case.
func (d *deconstructor) patternEnv(exprs ...ast.Expr) liveset.Environment {
	var env liveset.Environment
	for _, e := range exprs {
		d.checkPattern(e, &env)
	}
	return env
}

func (d *deconstructor) checkPattern(e ast.Expr, env *liveset.Environment) {
	switch p := e.(type) {
	case nil:
	case *ast.Ident:
		if path, ok := d.res.declared(p); ok {
			env.Add(path)
		}
	case *ast.ParenExpr:
		d.checkPattern(p.X, env)
	case *ast.StarExpr:
		d.checkPattern(p.X, env)
	case *ast.UnaryExpr:
		d.checkPattern(p.X, env)
	case *ast.CompositeLit:
		for _, elt := range p.Elts {
			d.checkPattern(elt, env)
		}
	case *ast.KeyValueExpr:
		d.checkPattern(p.Value, env)
	}
}

// identsOf returns the identifiers of a name list, skipping blanks
func identsOf(names []*ast.Ident) []ast.Expr {
	out := make([]ast.Expr, 0, len(names))
	for _, n := range names {
		if n != nil && n.Name != "_" {
			out = append(out, n)
		}
	}
	return out
}

// fieldNames returns the names declared by a parameter or result list
func fieldNames(fields *ast.FieldList) []*ast.Ident {
	if fields == nil {
		return nil
	}
	var out []*ast.Ident
	for _, f := range fields.List {
		out = append(out, f.Names...)
	}
	return out
}

// signatureEnv is the pattern environment of a function signature
func (d *deconstructor) signatureEnv(ft *ast.FuncType) liveset.Environment {
	var env liveset.Environment
	if ft == nil {
		return env
	}
	for _, id := range fieldNames(ft.Params) {
		d.checkPattern(id, &env)
	}
	for _, id := range fieldNames(ft.Results) {
		d.checkPattern(id, &env)
	}
	return env
}

// commPattern returns the names declared by the communication of a select case
func (d *deconstructor) commPattern(comm ast.Stmt) liveset.Environment {
	if as, ok := comm.(*ast.AssignStmt); ok && as.Tok.String() == ":=" {
		return d.patternEnv(as.Lhs...)
	}
	return liveset.Environment{}
}
