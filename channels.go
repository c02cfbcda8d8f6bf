// Completion: 100% - Sync edge catalogue and carried environments
package main

import (
	"fmt"
	"go/ast"
	"go/token"

	"github.com/xyproto/autopar/internal/liveset"
)

// Channel is one sync edge of a level, realised as a buffered channel
// that receives exactly one message per execution of the level
type Channel struct {
	To, From StmtId
	Env      liveset.Environment
}

// Name is the variable holding the channel in the rewritten code
func (c Channel) Name() string {
	return fmt.Sprintf("sync_%s_%s", c.To, c.From)
}

// PlanChannels lists the sync edges of one level in the order the
// scheduler created them. Duplicate edges are reported once.
func PlanChannels(sched Schedule) []Channel {
	var out []Channel
	seen := make(map[[2]StmtId]bool)
	var walk func(e *ScheduleTree)
	walk = func(e *ScheduleTree) {
		if e.Kind == ScheduleSync {
			key := [2]StmtId{e.Target, e.Source}
			if !seen[key] {
				seen[key] = true
				out = append(out, Channel{To: e.Target, From: e.Source, Env: e.Env.Clone()})
			}
			return
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	for _, root := range sched {
		walk(root)
	}
	return out
}

// LevelChannels is the channel catalogue of one block level
type LevelChannels struct {
	Level    StmtId // id of the block, zero for the function body
	Channels []Channel
}

// CatalogueAll returns the catalogue of every level of a schedule, the
// outermost level first
func CatalogueAll(sched Schedule) []LevelChannels {
	var out []LevelChannels
	var walk func(level StmtId, s Schedule)
	walk = func(level StmtId, s Schedule) {
		if chans := PlanChannels(s); len(chans) > 0 {
			out = append(out, LevelChannels{Level: level, Channels: chans})
		}
		for _, root := range s {
			for _, e := range root.Nodes() {
				blocks := blocksOf(e.Node)
				for i, inner := range e.Inner {
					id := e.Node.StmtID()
					if i < len(blocks) {
						id = blocks[i].StmtID()
					}
					walk(id, inner)
				}
			}
		}
	}
	walk(StmtId{}, sched)
	return out
}

// blocksOf returns the block nodes whose contents form the inner schedules
// of n
func blocksOf(n DependencyNode) []*BlockNode {
	switch node := n.(type) {
	case *BlockNode:
		return []*BlockNode{node}
	case *ExprBlockNode:
		out := make([]*BlockNode, 0, len(node.Children))
		for _, c := range node.Children {
			if b, ok := c.(*BlockNode); ok {
				out = append(out, b)
			}
		}
		return out
	}
	return nil
}

// nearestProducer returns the index of the closest node before at that
// produces name, or -1 when the name comes from the enclosing scope
func nearestProducer(tree DependencyTree, at int, name liveset.PathName) int {
	for back := at - 1; back >= 0; back-- {
		if _, out := tree[back].Env(); out.Contains(name) {
			return back
		}
	}
	return -1
}

// CarriedEnv returns the names the edge from -> to must transfer: the
// names to reads whose nearest producer is from, restricted to the names
// declared on this level. Names of enclosing scopes are shared by every
// goroutine of the level, so for them the message is only a signal.
func CarriedEnv(tree DependencyTree, from, to int, declared liveset.Environment) liveset.Environment {
	var env liveset.Environment
	in, _ := tree[to].Env()
	for _, name := range in.Paths() {
		if !declared.Contains(name) {
			continue
		}
		if nearestProducer(tree, to, name) == from {
			env.Add(name)
		}
	}
	return env
}

// FillChannels computes the carried environment of every sync edge of the
// schedule, including the inner schedules of nested blocks
func (r *identResolver) FillChannels(tree DependencyTree, sched Schedule) {
	index := make(map[StmtId]int, len(tree))
	for i, n := range tree {
		index[n.StmtID()] = i
	}
	declared := r.levelDeclared(tree)
	for _, p := range declared.Paths() {
		if r.shared[captureKey(p)] {
			// declared once for the level, never copied
			declared.Remove(p)
		}
	}
	for _, root := range sched {
		var walk func(e *ScheduleTree)
		walk = func(e *ScheduleTree) {
			if e.Kind == ScheduleSync {
				from, okFrom := index[e.Source]
				to, okTo := index[e.Target]
				if okFrom && okTo {
					e.Env = CarriedEnv(tree, from, to, declared)
				}
				return
			}
			blocks := blocksOf(e.Node)
			for i, inner := range e.Inner {
				if i < len(blocks) {
					r.FillChannels(blocks[i].Children, inner)
				}
			}
			for _, c := range e.Children {
				walk(c)
			}
		}
		walk(root)
	}
}

// levelDeclared returns the names declared by the statements of a level
func (r *identResolver) levelDeclared(tree DependencyTree) liveset.Environment {
	var env liveset.Environment
	for _, n := range tree {
		if n.Kind() != KindExpr {
			continue
		}
		for _, id := range r.declaredIdents(n.Stmt()) {
			if p, ok := r.declared(id); ok {
				env.Add(p)
			}
		}
	}
	return env
}

// declaredIdents returns the identifiers a statement declares in the
// enclosing scope. Names redeclared by := are assignments.
func (r *identResolver) declaredIdents(s ast.Stmt) []*ast.Ident {
	switch st := s.(type) {
	case *ast.LabeledStmt:
		return r.declaredIdents(st.Stmt)
	case *ast.AssignStmt:
		if st.Tok != token.DEFINE {
			return nil
		}
		var out []*ast.Ident
		for _, l := range st.Lhs {
			if id, ok := l.(*ast.Ident); ok && id.Name != "_" && !r.redeclared(id, st) {
				out = append(out, id)
			}
		}
		return out
	case *ast.DeclStmt:
		gd, ok := st.Decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			return nil
		}
		var out []*ast.Ident
		for _, spec := range gd.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok {
				for _, id := range vs.Names {
					if id.Name != "_" {
						out = append(out, id)
					}
				}
			}
		}
		return out
	}
	return nil
}
