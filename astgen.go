package main

import (
	"go/ast"
	"go/token"
)

// Constructors for the statements the reconstructor emits

func ident(name string) *ast.Ident {
	return ast.NewIdent(name)
}

func define(lhs []ast.Expr, rhs ...ast.Expr) *ast.AssignStmt {
	return &ast.AssignStmt{Lhs: lhs, Tok: token.DEFINE, Rhs: rhs}
}

func assignTo(lhs []ast.Expr, rhs ...ast.Expr) *ast.AssignStmt {
	return &ast.AssignStmt{Lhs: lhs, Tok: token.ASSIGN, Rhs: rhs}
}

func call(fun ast.Expr, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Fun: fun, Args: args}
}

func recvExpr(ch ast.Expr) *ast.UnaryExpr {
	return &ast.UnaryExpr{Op: token.ARROW, X: ch}
}

// oneLine puts both braces of a synthesized field list on the same line,
// which the printer needs to print struct{} instead of struct {\n}
const oneLine = token.Pos(1)

func emptyStruct() *ast.StructType {
	return &ast.StructType{Fields: &ast.FieldList{Opening: oneLine, Closing: oneLine}}
}

// varDecl builds var name typ
func varDecl(name string, typ ast.Expr) ast.Stmt {
	return &ast.DeclStmt{Decl: &ast.GenDecl{
		Tok:   token.VAR,
		Specs: []ast.Spec{&ast.ValueSpec{Names: []*ast.Ident{ident(name)}, Type: typ}},
	}}
}

// makeChan builds name := make(chan elem, 1)
func makeChan(name string, elem ast.Expr) ast.Stmt {
	return define([]ast.Expr{ident(name)},
		call(ident("make"), &ast.ChanType{Dir: ast.SEND | ast.RECV, Value: elem}, &ast.BasicLit{Kind: token.INT, Value: "1"}))
}

// spawn builds a goroutine running body. Its outcome, nil or the recovered
// panic, is sent on done.
//
//	go func() {
//		defer func() { done <- recover() }()
//		body
//	}()
func spawn(done string, body []ast.Stmt) ast.Stmt {
	report := &ast.DeferStmt{Call: call(&ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{List: []ast.Stmt{
			&ast.SendStmt{Chan: ident(done), Value: call(ident("recover"))},
		}},
	})}
	return &ast.GoStmt{Call: call(&ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{List: append([]ast.Stmt{report}, body...)},
	})}
}

// join waits for a goroutine started by spawn and re-raises its panic
//
//	if r := <-done; r != nil {
//		panic(r)
//	}
func join(done ast.Expr) ast.Stmt {
	return &ast.IfStmt{
		Init: define([]ast.Expr{ident("r")}, recvExpr(done)),
		Cond: &ast.BinaryExpr{X: ident("r"), Op: token.NEQ, Y: ident("nil")},
		Body: &ast.BlockStmt{List: []ast.Stmt{
			&ast.ExprStmt{X: call(ident("panic"), ident("r"))},
		}},
	}
}

// use silences the unused variable check for a received name
func use(name string) ast.Stmt {
	return assignTo([]ast.Expr{ident("_")}, ident(name))
}

func field(name string, typ ast.Expr) *ast.Field {
	f := &ast.Field{Type: typ}
	if name != "" {
		f.Names = []*ast.Ident{ident(name)}
	}
	return f
}
