// Completion: 100% - Erasing and restitching the blocks of a statement
package main

import (
	"fmt"
	"go/ast"
	"go/token"
)

// fillFunc supplies the statements of the block or clause starting at pos.
// isClause tells whether the slot is a case clause rather than a block.
type fillFunc func(pos, end token.Pos, isClause bool) ([]ast.Stmt, error)

// erase returns a shallow copy of s whose blocks and clause bodies are
// empty. Header expressions are shared with s.
func erase(s ast.Stmt) ast.Stmt {
	out, _ := rebuild(s, func(token.Pos, token.Pos, bool) ([]ast.Stmt, error) {
		return nil, nil
	})
	return out
}

// stitcher fills the erased slots of a statement left to right and checks
// each slot against the id recorded for it
type stitcher struct {
	file   *token.File
	slots  []StmtId
	bodies [][]ast.Stmt
	next   int
}

func (st *stitcher) take(pos, end token.Pos, isClause bool) ([]ast.Stmt, error) {
	if st.next >= len(st.slots) || st.next >= len(st.bodies) {
		return nil, fmt.Errorf("statement has more blocks than the %d recorded", len(st.slots))
	}
	want := st.slots[st.next]
	got := spanRange(st.file, pos, end)
	if got.Lo != want.Lo || (!isClause && got.Hi != want.Hi) {
		return nil, fmt.Errorf("block %s does not match the recorded block %s", got, want)
	}
	body := st.bodies[st.next]
	st.next++
	return body, nil
}

// restitch returns a copy of the erased statement s with its blocks
// replaced by bodies, in left to right order
func restitch(file *token.File, s ast.Stmt, slots []StmtId, bodies [][]ast.Stmt) (ast.Stmt, error) {
	st := &stitcher{file: file, slots: slots, bodies: bodies}
	out, err := rebuild(s, st.take)
	if err != nil {
		return nil, SourceChangedError(err.Error(), SourceLocation{})
	}
	if st.next != len(slots) {
		return nil, SourceChangedError(fmt.Sprintf("statement has %d blocks, %d recorded", st.next, len(slots)), SourceLocation{})
	}
	return out, nil
}

func rebuildBlock(b *ast.BlockStmt, fill fillFunc) (*ast.BlockStmt, error) {
	if b == nil {
		return nil, nil
	}
	list, err := fill(b.Lbrace, b.Rbrace+1, false)
	if err != nil {
		return nil, err
	}
	return &ast.BlockStmt{Lbrace: b.Lbrace, List: list, Rbrace: b.Rbrace}, nil
}

func rebuild(s ast.Stmt, fill fillFunc) (ast.Stmt, error) {
	switch st := s.(type) {
	case *ast.BlockStmt:
		return rebuildBlock(st, fill)
	case *ast.LabeledStmt:
		inner, err := rebuild(st.Stmt, fill)
		if err != nil {
			return nil, err
		}
		out := *st
		out.Stmt = inner
		return &out, nil
	case *ast.IfStmt:
		out := *st
		body, err := rebuildBlock(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		if st.Else != nil {
			els, err := rebuild(st.Else, fill)
			if err != nil {
				return nil, err
			}
			out.Else = els
		}
		return &out, nil
	case *ast.ForStmt:
		out := *st
		body, err := rebuildBlock(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return &out, nil
	case *ast.RangeStmt:
		out := *st
		body, err := rebuildBlock(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return &out, nil
	case *ast.SwitchStmt:
		out := *st
		body, err := rebuildClauses(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return &out, nil
	case *ast.TypeSwitchStmt:
		out := *st
		body, err := rebuildClauses(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return &out, nil
	case *ast.SelectStmt:
		out := *st
		body, err := rebuildClauses(st.Body, fill)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return &out, nil
	}
	return s, nil
}

func rebuildClauses(b *ast.BlockStmt, fill fillFunc) (*ast.BlockStmt, error) {
	out := &ast.BlockStmt{Lbrace: b.Lbrace, Rbrace: b.Rbrace, List: make([]ast.Stmt, 0, len(b.List))}
	for _, c := range b.List {
		switch cc := c.(type) {
		case *ast.CaseClause:
			list, err := fill(cc.Case, cc.End(), true)
			if err != nil {
				return nil, err
			}
			clause := *cc
			clause.Body = list
			out.List = append(out.List, &clause)
		case *ast.CommClause:
			list, err := fill(cc.Case, cc.End(), true)
			if err != nil {
				return nil, err
			}
			clause := *cc
			clause.Body = list
			out.List = append(out.List, &clause)
		default:
			return nil, fmt.Errorf("unexpected %s in a switch body", nodeName(c))
		}
	}
	return out, nil
}
