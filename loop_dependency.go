// Completion: 85% - Loop dependency analysis and iteration pipelining
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"sort"

	"github.com/xyproto/autopar/internal/liveset"
)

// DependencyType represents the type of dependency between loop iterations
type DependencyType int

const (
	NoDependency      DependencyType = iota // No dependency - iterations may overlap freely
	FlowDependency                          // Read-after-write (true dependency)
	AntiDependency                          // Write-after-read (anti dependency)
	OutputDependency                        // Write-after-write (output dependency)
	UnknownDependency                       // Conservative - assume dependency exists
)

// String returns the string representation of dependency type
func (dt DependencyType) String() string {
	switch dt {
	case NoDependency:
		return "None"
	case FlowDependency:
		return "Flow (RAW)"
	case AntiDependency:
		return "Anti (WAR)"
	case OutputDependency:
		return "Output (WAW)"
	default:
		return "Unknown"
	}
}

// Dependency represents a dependency on a variable between two iterations
type Dependency struct {
	Type     DependencyType
	Variable string
	Distance int // Iteration distance (0 = same iteration, 1 = next iteration)
}

// LoopDependencyAnalyzer finds the variables that carry values from one
// iteration of a loop to the next
type LoopDependencyAnalyzer struct {
	writes map[string][]int // Variable -> body positions writing it
	reads  map[string][]int // Variable -> body positions reading it
	paths  map[string]liveset.PathName
}

// NewLoopDependencyAnalyzer creates a new dependency analyzer
func NewLoopDependencyAnalyzer() *LoopDependencyAnalyzer {
	return &LoopDependencyAnalyzer{
		writes: make(map[string][]int),
		reads:  make(map[string][]int),
		paths:  make(map[string]liveset.PathName),
	}
}

// AnalyzeDependencies returns the cross iteration dependencies of a loop
// body. Names in local are declared by the body or the loop header for
// every iteration and never carry anything.
func (lda *LoopDependencyAnalyzer) AnalyzeDependencies(body DependencyTree, local liveset.Environment) []Dependency {
	lda.collectAccesses(body, local)

	var deps []Dependency
	for name, writePos := range lda.writes {
		deps = append(deps, Dependency{Type: OutputDependency, Variable: name, Distance: 1})
		readPos := lda.reads[name]
		if len(readPos) == 0 {
			continue
		}
		// a read in iteration k+1 sees the write of iteration k
		deps = append(deps, Dependency{Type: FlowDependency, Variable: name, Distance: 1})
		if readPos[0] < writePos[len(writePos)-1] {
			deps = append(deps, Dependency{Type: AntiDependency, Variable: name, Distance: 1})
		}
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Variable != deps[j].Variable {
			return deps[i].Variable < deps[j].Variable
		}
		return deps[i].Type < deps[j].Type
	})
	return deps
}

// collectAccesses records the body positions reading and writing every
// name that is not local to an iteration
func (lda *LoopDependencyAnalyzer) collectAccesses(body DependencyTree, local liveset.Environment) {
	for pos, n := range body {
		in, out := n.Env()
		for _, p := range out.Paths() {
			if local.Contains(p) {
				continue
			}
			lda.writes[p.Key()] = append(lda.writes[p.Key()], pos)
			lda.paths[p.Key()] = p
		}
		for _, p := range in.Paths() {
			if local.Contains(p) {
				continue
			}
			lda.reads[p.Key()] = append(lda.reads[p.Key()], pos)
		}
	}
	trace("loop accesses", "writes", len(lda.writes), "reads", len(lda.reads))
}

// Carried returns the names written by one iteration and seen by the next
func (lda *LoopDependencyAnalyzer) Carried() liveset.Environment {
	var env liveset.Environment
	for name := range lda.writes {
		env.Add(lda.paths[name])
	}
	return env
}

// ReleasePoint returns the last body position touching a carried name, or
// -1 when iterations share nothing. The next iteration may start its own
// accesses once this position is done.
func (lda *LoopDependencyAnalyzer) ReleasePoint() int {
	last := -1
	for name, positions := range lda.writes {
		for _, p := range positions {
			last = max(last, p)
		}
		for _, p := range lda.reads[name] {
			last = max(last, p)
		}
	}
	return last
}

// GetDependencyReport generates a human-readable dependency report
func GetDependencyReport(deps []Dependency) string {
	if len(deps) == 0 {
		return "No dependencies detected - loop is fully parallel"
	}
	report := "Dependencies detected:\n"
	for _, dep := range deps {
		report += "  - " + dep.Type.String() + " on variable '" + dep.Variable + "'\n"
	}
	return report
}

// loopPlan describes how the iterations of a loop overlap
type loopPlan struct {
	deps    []Dependency
	carried liveset.Environment
	release int
}

// planLoop decides whether the iterations of a loop statement may run on
// goroutines of their own. The body must not leave the loop, and the
// loop header must not read anything the body writes.
func (r *reconstructor) planLoop(n *ExprBlockNode) (*loopPlan, bool) {
	if !r.opts.ForLoops || n.pl.pinned || n.pl.exits || len(n.Children) != 1 {
		return nil, false
	}
	body, ok := n.Children[0].(*BlockNode)
	if !ok {
		return nil, false
	}
	for _, c := range body.Children {
		if pl := c.placement(); pl.exits || pl.pinned {
			return nil, false
		}
	}

	var header []ast.Node
	var local liveset.Environment
	switch st := n.stmt.(type) {
	case *ast.ForStmt:
		if st.Cond == nil {
			return nil, false
		}
		if as, ok := st.Init.(*ast.AssignStmt); ok && as.Tok == token.DEFINE {
			if !r.opts.PerIterationLoopVars {
				return nil, false
			}
			for _, l := range as.Lhs {
				if id, ok := l.(*ast.Ident); ok {
					if p, ok := r.res.declared(id); ok {
						local.Add(p)
					}
				}
			}
		}
		header = []ast.Node{st.Cond}
		if st.Post != nil {
			header = append(header, st.Post)
		}
	case *ast.RangeStmt:
		if st.Tok == token.ASSIGN || !r.rangeable(st.X) {
			return nil, false
		}
		if st.Tok == token.DEFINE && !r.opts.PerIterationLoopVars {
			return nil, false
		}
		for _, e := range []ast.Expr{st.Key, st.Value} {
			if id, ok := e.(*ast.Ident); ok {
				if p, ok := r.res.declared(id); ok {
					local.Add(p)
				}
			}
		}
		header = []ast.Node{st.X}
	default:
		return nil, false
	}

	var writes liveset.Environment
	for _, c := range body.Children {
		_, out := c.Env()
		writes.Merge(out)
	}
	for _, h := range header {
		if !r.headerNames(h).Intersect(writes).Empty() {
			return nil, false
		}
	}

	local.Merge(r.res.levelDeclared(body.Children))
	lda := NewLoopDependencyAnalyzer()
	deps := lda.AnalyzeDependencies(body.Children, local)
	return &loopPlan{deps: deps, carried: lda.Carried(), release: lda.ReleasePoint()}, true
}

// rangeable reports whether ranging over x evaluates x once and yields
// plain values: slices, arrays, strings, maps and integers
func (r *reconstructor) rangeable(x ast.Expr) bool {
	t := r.res.exprType(x)
	if t == nil {
		return false
	}
	if p, ok := t.Underlying().(*types.Pointer); ok {
		t = p.Elem()
	}
	switch t.Underlying().(type) {
	case *types.Slice, *types.Array, *types.Map, *types.Basic:
		return true
	}
	return false
}

// headerNames returns the tracked variables read by a loop header part
func (r *reconstructor) headerNames(n ast.Node) liveset.Environment {
	var env liveset.Environment
	ast.Inspect(n, func(x ast.Node) bool {
		switch v := x.(type) {
		case *ast.FuncLit:
			return false
		case *ast.Ident:
			if p, ok := r.res.variable(v); ok {
				env.Add(p)
			}
		}
		return true
	})
	return env
}

// pipeline emits a loop whose iterations run on goroutines of their own.
// Iterations pass a token along so that the accesses to carried names
// happen in iteration order:
//
//	{
//		var loop_a_b []chan any
//		loop_a_b_prev := make(chan struct{}, 1)
//		loop_a_b_prev <- struct{}{}
//		for ... {
//			prev_a_b, next_a_b := loop_a_b_prev, make(chan struct{}, 1)
//			loop_a_b_prev = next_a_b
//			done_a_b := make(chan any, 1)
//			loop_a_b = append(loop_a_b, done_a_b)
//			go func() {
//				defer func() {
//					select {
//					case next_a_b <- struct{}{}:
//					default:
//					}
//					done_a_b <- recover()
//				}()
//				<-prev_a_b
//				... statements up to the release point
//				next_a_b <- struct{}{}
//				... the rest of the body
//			}()
//		}
//		for _, done := range loop_a_b {
//			... join
//		}
//	}
func (r *reconstructor) pipeline(n *ExprBlockNode, e *ScheduleTree, sc *scope) ([]ast.Stmt, bool, error) {
	plan, ok := r.planLoop(n)
	if !ok {
		return nil, false, nil
	}
	if VerboseMode {
		trace("pipelining loop", "stmt", n.id.String(), "carried", plan.carried.String(), "release", plan.release)
	}
	body := n.Children[0].(*BlockNode)
	inner := e.Inner[0]

	slice := fmt.Sprintf("loop_%s", n.id)
	prevVar := slice + "_prev"
	prev := fmt.Sprintf("prev_%s", n.id)
	next := fmt.Sprintf("next_%s", n.id)
	done := fmt.Sprintf("done_%s", n.id)
	signal := func() ast.Expr { return &ast.CompositeLit{Type: emptyStruct()} }
	chained := plan.release >= 0

	frame := newScope(sc, false)
	var work []ast.Stmt
	if chained {
		work = append(work, &ast.ExprStmt{X: recvExpr(ident(prev))})
		for i, c := range body.Children {
			entry := inner.Find(c.StmtID())
			if entry == nil {
				return nil, true, FatalError(fmt.Sprintf("statement %s missing from the schedule", c.StmtID()), SourceLocation{})
			}
			stmts, err := r.statement(entry, frame)
			if err != nil {
				return nil, true, err
			}
			work = append(work, stmts...)
			if i == plan.release {
				work = append(work, &ast.SendStmt{Chan: ident(next), Value: signal()})
			}
		}
	} else {
		stmts, err := r.level(body.Children, inner, frame)
		if err != nil {
			return nil, true, err
		}
		work = stmts
	}

	deferred := []ast.Stmt{&ast.SendStmt{Chan: ident(done), Value: call(ident("recover"))}}
	if chained {
		release := &ast.SelectStmt{Body: &ast.BlockStmt{List: []ast.Stmt{
			&ast.CommClause{Comm: &ast.SendStmt{Chan: ident(next), Value: signal()}},
			&ast.CommClause{},
		}}}
		deferred = append([]ast.Stmt{release}, deferred...)
	}
	goroutine := &ast.GoStmt{Call: call(&ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{List: append([]ast.Stmt{
			&ast.DeferStmt{Call: call(&ast.FuncLit{
				Type: &ast.FuncType{Params: &ast.FieldList{}},
				Body: &ast.BlockStmt{List: deferred},
			})},
		}, work...)},
	})}

	var iteration []ast.Stmt
	if chained {
		iteration = append(iteration,
			define([]ast.Expr{ident(prev), ident(next)}, ident(prevVar),
				call(ident("make"), &ast.ChanType{Dir: ast.SEND | ast.RECV, Value: emptyStruct()}, &ast.BasicLit{Kind: token.INT, Value: "1"})),
			assignTo([]ast.Expr{ident(prevVar)}, ident(next)),
		)
	}
	iteration = append(iteration,
		makeChan(done, ident("any")),
		assignTo([]ast.Expr{ident(slice)}, call(ident("append"), ident(slice), ident(done))),
		goroutine,
	)
	loop, err := restitch(r.file, n.stmt, n.slots, [][]ast.Stmt{iteration})
	if err != nil {
		return nil, true, err
	}

	out := []ast.Stmt{&ast.DeclStmt{Decl: &ast.GenDecl{
		Tok: token.VAR,
		Specs: []ast.Spec{&ast.ValueSpec{
			Names: []*ast.Ident{ident(slice)},
			Type:  &ast.ArrayType{Elt: &ast.ChanType{Dir: ast.SEND | ast.RECV, Value: ident("any")}},
		}},
	}}}
	if chained {
		out = append(out,
			makeChan(prevVar, emptyStruct()),
			&ast.SendStmt{Chan: ident(prevVar), Value: signal()},
		)
	}
	out = append(out, loop, &ast.RangeStmt{
		Key:   ident("_"),
		Value: ident("done"),
		Tok:   token.DEFINE,
		X:     ident(slice),
		Body:  &ast.BlockStmt{List: []ast.Stmt{join(ident("done"))}},
	})
	return []ast.Stmt{&ast.BlockStmt{List: out}}, true, nil
}
