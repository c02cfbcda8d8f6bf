package main

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/token"
	"testing"
)

func TestEmptyStructPrintsOnOneLine(t *testing.T) {
	tests := []struct {
		node ast.Node
		want string
	}{
		{makeChan("signal", emptyStruct()), "signal := make(chan struct{}, 1)"},
		{&ast.SendStmt{Chan: ident("signal"), Value: &ast.CompositeLit{Type: emptyStruct()}}, "signal <- struct{}{}"},
		{varDecl("x", ident("int")), "var x int"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := format.Node(&buf, token.NewFileSet(), tt.node); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != tt.want {
			t.Errorf("printed %q, want %q", got, tt.want)
		}
	}
}
