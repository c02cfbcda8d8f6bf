// Completion: 90% - Detached emission: the whole body runs behind a handle
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
)

// detachedSuffix is appended to the name of the function running detached
const detachedSuffix = "Detached"

// Detach splits fn, whose body is already rewritten, into two functions:
//
//	func nameDetached(params) <-chan func() (results) {
//		handle := make(chan func() (results), 1)
//		go func() {
//			defer func() {
//				if r := recover(); r != nil {
//					handle <- func() (results) { panic(r) }
//				}
//			}()
//			res0, res1 := func() (results) { body }()
//			handle <- func() (results) { return res0, res1 }
//		}()
//		return handle
//	}
//
//	func name(params) (results) {
//		return (<-nameDetached(params))()
//	}
//
// The caller gets a synchronous function with the original signature, and
// callers that want to overlap their own work can use the handle.
func Detach(fn *ast.FuncDecl) (detached, wrapper *ast.FuncDecl) {
	used := usedNames(fn)
	fresh := func(base string) string {
		name := base
		for i := 1; used[name]; i++ {
			name = base + strconv.Itoa(i)
		}
		used[name] = true
		return name
	}

	params, args, variadic := forwardedParams(fn.Type.Params, fresh)
	var recv *ast.FieldList
	var recvName string
	if fn.Recv != nil && len(fn.Recv.List) == 1 {
		r := fn.Recv.List[0]
		if len(r.Names) == 1 && r.Names[0].Name != "_" {
			recvName = r.Names[0].Name
		} else {
			recvName = fresh("recv")
		}
		recv = &ast.FieldList{List: []*ast.Field{field(recvName, r.Type)}}
	}

	results := unnamedResults(fn.Type.Results)
	handleType := &ast.ChanType{Dir: ast.RECV, Value: &ast.FuncType{Params: &ast.FieldList{}, Results: results}}

	handle := fresh("handle")
	recovered := fresh("r")
	var values []ast.Expr
	for i := range resultCount(fn.Type.Results) {
		values = append(values, ident(fresh("res"+strconv.Itoa(i))))
	}

	body := &ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}, Results: fn.Type.Results},
		Body: fn.Body,
	}
	var run, deliver ast.Stmt
	if len(values) == 0 {
		run = &ast.ExprStmt{X: call(body)}
		deliver = &ast.SendStmt{Chan: ident(handle), Value: &ast.FuncLit{
			Type: &ast.FuncType{Params: &ast.FieldList{}},
			Body: &ast.BlockStmt{},
		}}
	} else {
		run = define(values, call(body))
		deliver = &ast.SendStmt{Chan: ident(handle), Value: &ast.FuncLit{
			Type: &ast.FuncType{Params: &ast.FieldList{}, Results: results},
			Body: &ast.BlockStmt{List: []ast.Stmt{&ast.ReturnStmt{Results: values}}},
		}}
	}
	repanic := &ast.DeferStmt{Call: call(&ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{List: []ast.Stmt{&ast.IfStmt{
			Init: define([]ast.Expr{ident(recovered)}, call(ident("recover"))),
			Cond: &ast.BinaryExpr{X: ident(recovered), Op: token.NEQ, Y: ident("nil")},
			Body: &ast.BlockStmt{List: []ast.Stmt{&ast.SendStmt{Chan: ident(handle), Value: &ast.FuncLit{
				Type: &ast.FuncType{Params: &ast.FieldList{}, Results: results},
				Body: &ast.BlockStmt{List: []ast.Stmt{&ast.ExprStmt{X: call(ident("panic"), ident(recovered))}}},
			}}}},
		}}},
	})}

	detachedName := fn.Name.Name + detachedSuffix
	detached = &ast.FuncDecl{
		Recv: recv,
		Name: ident(detachedName),
		Type: &ast.FuncType{
			TypeParams: fn.Type.TypeParams,
			Params:     params,
			Results:    &ast.FieldList{List: []*ast.Field{{Type: handleType}}},
		},
		Body: &ast.BlockStmt{List: []ast.Stmt{
			define([]ast.Expr{ident(handle)}, call(ident("make"),
				&ast.ChanType{Dir: ast.SEND | ast.RECV, Value: handleType.Value},
				&ast.BasicLit{Kind: token.INT, Value: "1"})),
			&ast.GoStmt{Call: call(&ast.FuncLit{
				Type: &ast.FuncType{Params: &ast.FieldList{}},
				Body: &ast.BlockStmt{List: []ast.Stmt{repanic, run, deliver}},
			})},
			&ast.ReturnStmt{Results: []ast.Expr{ident(handle)}},
		}},
	}

	var target ast.Expr = ident(detachedName)
	if recv != nil {
		target = &ast.SelectorExpr{X: ident(recvName), Sel: ident(detachedName)}
	}
	target = instantiate(target, fn.Type.TypeParams)
	forward := call(target, args...)
	if variadic {
		forward.Ellipsis = fn.Pos()
	}
	join := call(&ast.ParenExpr{X: recvExpr(forward)})
	var stmt ast.Stmt = &ast.ExprStmt{X: join}
	if len(values) > 0 {
		stmt = &ast.ReturnStmt{Results: []ast.Expr{join}}
	}
	wrapper = &ast.FuncDecl{
		Doc:  fn.Doc,
		Recv: recv,
		Name: ident(fn.Name.Name),
		Type: &ast.FuncType{TypeParams: fn.Type.TypeParams, Params: params, Results: results},
		Body: &ast.BlockStmt{List: []ast.Stmt{stmt}},
	}
	return detached, wrapper
}

// forwardedParams names every parameter so the wrapper can pass it on.
// Blank and unnamed parameters become argN.
func forwardedParams(list *ast.FieldList, fresh func(string) string) (*ast.FieldList, []ast.Expr, bool) {
	out := &ast.FieldList{}
	var args []ast.Expr
	variadic := false
	if list == nil {
		return out, nil, false
	}
	n := 0
	for _, f := range list.List {
		if _, ok := f.Type.(*ast.Ellipsis); ok {
			variadic = true
		}
		names := f.Names
		if len(names) == 0 {
			names = []*ast.Ident{nil}
		}
		field := &ast.Field{Type: f.Type}
		for _, name := range names {
			var id *ast.Ident
			if name == nil || name.Name == "_" {
				id = ident(fresh(fmt.Sprintf("arg%d", n)))
			} else {
				id = ident(name.Name)
			}
			n++
			field.Names = append(field.Names, id)
			args = append(args, ident(id.Name))
		}
		out.List = append(out.List, field)
	}
	return out, args, variadic
}

// unnamedResults drops the names of a result list, repeating the type of
// grouped names
func unnamedResults(list *ast.FieldList) *ast.FieldList {
	if list == nil || len(list.List) == 0 {
		return nil
	}
	out := &ast.FieldList{}
	for _, f := range list.List {
		for range max(1, len(f.Names)) {
			out.List = append(out.List, &ast.Field{Type: f.Type})
		}
	}
	return out
}

func resultCount(list *ast.FieldList) int {
	if list == nil {
		return 0
	}
	n := 0
	for _, f := range list.List {
		n += max(1, len(f.Names))
	}
	return n
}

// instantiate adds the type parameters of a generic function as explicit
// type arguments
func instantiate(fun ast.Expr, tparams *ast.FieldList) ast.Expr {
	if tparams == nil || len(tparams.List) == 0 {
		return fun
	}
	var indices []ast.Expr
	for _, f := range tparams.List {
		for _, name := range f.Names {
			indices = append(indices, ident(name.Name))
		}
	}
	if len(indices) == 1 {
		return &ast.IndexExpr{X: fun, Index: indices[0]}
	}
	return &ast.IndexListExpr{X: fun, Indices: indices}
}

// usedNames collects every identifier of fn so generated names stay unique
func usedNames(fn *ast.FuncDecl) map[string]bool {
	used := make(map[string]bool)
	ast.Inspect(fn, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			used[id.Name] = true
		}
		return true
	})
	return used
}
