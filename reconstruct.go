// Completion: 90% - Emits goroutines and channels from a schedule
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"github.com/xyproto/autopar/internal/liveset"
)

// ReconstructOptions selects what the reconstructor may parallelise
type ReconstructOptions struct {
	// ForLoops pipelines the iterations of eligible for and range loops
	ForLoops bool
	// PerIterationLoopVars is set when the file is compiled with Go 1.22
	// or later, where every iteration has its own loop variables
	PerIterationLoopVars bool
}

type reconstructor struct {
	res   *identResolver
	types *typeBuilder
	file  *token.File
	opts  ReconstructOptions

	// hoisted holds the variables declared at the top of their level
	hoisted map[string]bool
}

// Reconstructor returns the reconstructor for the functions analysed by a.
// pkg is the package of the file, used to name the channel payload types.
func (a *Analyser) Reconstructor(pkg *types.Package, f *ast.File, opts ReconstructOptions) *reconstructor {
	return &reconstructor{
		res:   a.res,
		types: newTypeBuilder(pkg, f),
		file:    a.file,
		opts:    opts,
		hoisted: make(map[string]bool),
	}
}

// scope records the variables declared on the current emission path.
// A scope is original when its statements are emitted into the block they
// came from, and a goroutine frame otherwise.
type scope struct {
	names    map[string]bool
	parent   *scope
	original bool
}

func newScope(parent *scope, original bool) *scope {
	return &scope{names: make(map[string]bool), parent: parent, original: original}
}

func (s *scope) has(key string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.names[key] {
			return true
		}
	}
	return false
}

func (s *scope) declare(key string) {
	s.names[key] = true
}

// levelCtx is the state of the level being emitted
type levelCtx struct {
	tree     DependencyTree
	channels map[[2]StmtId]Channel
	// hold is the index of the final exiting statement, emitted after the
	// joins, or -1
	hold int
}

// Reconstruct emits the parallel form of a function body. The carried
// environments of the schedule are computed first.
func (r *reconstructor) Reconstruct(tree DependencyTree, sched Schedule) ([]ast.Stmt, error) {
	r.res.FillChannels(tree, sched)
	return r.level(tree, sched, newScope(nil, true))
}

// sequentialLevel reports whether the statements of a level must keep
// their order: a pinned statement, or one leaving the level before its end
func sequentialLevel(tree DependencyTree) bool {
	for i, n := range tree {
		pl := n.placement()
		if pl.pinned || pl.exits && i != len(tree)-1 {
			return true
		}
	}
	return false
}

// guardPrefix returns the number of leading statements that must run in
// order before the rest of the level may run in parallel: everything up to
// the last pinned statement or early exit. It is 0 when no such statement
// exists or when fewer than two statements would remain.
func guardPrefix(tree DependencyTree) int {
	k := 0
	for i, n := range tree {
		pl := n.placement()
		if pl.pinned || pl.exits && i != len(tree)-1 {
			k = i + 1
		}
	}
	if len(tree)-k < 2 {
		return 0
	}
	return k
}

func (r *reconstructor) level(tree DependencyTree, sched Schedule, sc *scope) ([]ast.Stmt, error) {
	if len(tree) == 0 {
		return nil, nil
	}
	if k := guardPrefix(tree); k > 0 {
		return r.guarded(tree, sched, k, sc)
	}
	if sequentialLevel(tree) {
		return r.sequential(tree, sched, sc)
	}
	hoisted, ok := r.hoist(tree, sc)
	if !ok {
		return r.sequential(tree, sched, sc)
	}

	lv := &levelCtx{tree: tree, channels: make(map[[2]StmtId]Channel), hold: -1}
	if last := tree[len(tree)-1]; last.placement().exits {
		lv.hold = len(tree) - 1
	}

	var out []ast.Stmt
	for _, n := range tree {
		if n.Kind() == KindMac {
			if _, empty := n.Stmt().(*ast.EmptyStmt); !empty {
				out = append(out, n.Stmt())
			}
		}
	}
	out = append(out, hoisted...)

	for _, ch := range PlanChannels(sched) {
		lv.channels[[2]StmtId{ch.To, ch.From}] = ch
		elem, err := r.payloadType(ch.Env)
		if err != nil {
			return nil, err
		}
		out = append(out, makeChan(ch.Name(), elem))
	}

	var trees []*ScheduleTree
	for _, root := range sched {
		if root.Node.Kind() != KindMac {
			trees = append(trees, root)
		}
	}
	if len(trees) == 0 {
		return out, nil
	}
	inline := len(trees) - 1
	if lv.hold >= 0 {
		for i, t := range trees {
			if containsIndex(t, lv.hold) {
				inline = i
			}
		}
	}

	var joins []ast.Stmt
	for i, t := range trees {
		if i == inline {
			continue
		}
		body, err := r.tree(lv, t, newScope(sc, false))
		if err != nil {
			return nil, err
		}
		done := threadName(t.ID())
		out = append(out, makeChan(done, ident("any")), spawn(done, body))
		joins = append(joins, join(ident(done)))
	}
	body, err := r.tree(lv, trees[inline], sc)
	if err != nil {
		return nil, err
	}
	out = append(out, body...)
	out = append(out, joins...)

	if lv.hold >= 0 {
		held := sched.Find(tree[lv.hold].StmtID())
		if held == nil {
			return nil, FatalError(fmt.Sprintf("statement %s missing from the schedule", tree[lv.hold].StmtID()), SourceLocation{})
		}
		stmts, err := r.run(lv, held, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// guarded runs the first k statements of a level in order and schedules
// the rest anew. The rest starts after the guards, so its dependencies on
// them need no messages.
func (r *reconstructor) guarded(tree DependencyTree, sched Schedule, k int, sc *scope) ([]ast.Stmt, error) {
	out, err := r.sequential(tree[:k], sched, sc)
	if err != nil {
		return nil, err
	}
	rest := tree.suffix(k)
	restSched, err := BuildSchedule(rest)
	if err != nil {
		return nil, err
	}
	r.res.FillChannels(rest, restSched)
	body, err := r.level(rest, restSched, sc)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// hoist declares the variables of a level whose storage is shared before
// any goroutine of the level starts, so that every goroutine works on the
// same variable instead of a copy received on a channel. It reports false
// when a declaration cannot be moved: its type has no name here, or the
// level refers to something else by the same name.
func (r *reconstructor) hoist(tree DependencyTree, sc *scope) ([]ast.Stmt, bool) {
	var decls []ast.Stmt
	var keys []string
	for _, n := range tree {
		if n.Kind() != KindExpr {
			continue
		}
		for _, id := range r.res.declaredIdents(n.Stmt()) {
			p, ok := r.res.declared(id)
			if !ok || !r.res.shared[captureKey(p)] {
				continue
			}
			typ, err := r.nameType(p)
			if err != nil || r.rebinds(tree, id.Name, captureKey(p)) {
				return nil, false
			}
			decls = append(decls, varDecl(id.Name, typ))
			keys = append(keys, captureKey(p))
		}
	}
	for _, key := range keys {
		r.hoisted[key] = true
		sc.declare(key)
	}
	return decls, true
}

// rebinds reports whether a statement of tree uses name for anything but
// the variable key
func (r *reconstructor) rebinds(tree DependencyTree, name, key string) bool {
	found := false
	var inspect func(n ast.Node) bool
	inspect = func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.SelectorExpr:
			ast.Inspect(x.X, inspect)
			return false
		case *ast.Ident:
			if x.Name != name {
				return true
			}
			if p, ok := r.res.variable(x); ok {
				found = found || captureKey(p) != key
				return true
			}
			if obj := r.res.object(x); obj != nil {
				if v, ok := obj.(*types.Var); !ok || !v.IsField() {
					found = true
				}
			}
		}
		return !found
	}
	var walk func(DependencyTree)
	walk = func(t DependencyTree) {
		for _, n := range t {
			ast.Inspect(n.Stmt(), inspect)
			for _, b := range blocksOf(n) {
				walk(b.Children)
			}
		}
	}
	walk(tree)
	return found
}

// sequential emits a level in source order. Nested blocks are still
// reconstructed.
func (r *reconstructor) sequential(tree DependencyTree, sched Schedule, sc *scope) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, n := range tree {
		entry := sched.Find(n.StmtID())
		if entry == nil {
			return nil, FatalError(fmt.Sprintf("statement %s missing from the schedule", n.StmtID()), SourceLocation{})
		}
		stmts, err := r.statement(entry, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func threadName(id StmtId) string {
	return fmt.Sprintf("thread_%s", id)
}

func containsIndex(t *ScheduleTree, index int) bool {
	for _, e := range t.Nodes() {
		if e.Index == index {
			return true
		}
	}
	return false
}

// tree emits a spanning tree: the statement of its root, then every child
// subtree. All children but the last run on goroutines of their own.
func (r *reconstructor) tree(lv *levelCtx, e *ScheduleTree, sc *scope) ([]ast.Stmt, error) {
	var out []ast.Stmt
	if e.Index != lv.hold {
		stmts, err := r.run(lv, e, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}

	var children []*ScheduleTree
	var holder *ScheduleTree
	for _, c := range e.Children {
		if c.Kind == ScheduleSync {
			continue
		}
		if lv.hold >= 0 && containsIndex(c, lv.hold) {
			holder = c
			continue
		}
		children = append(children, c)
	}
	if holder != nil {
		// the held statement must stay on the goroutine of the level
		children = append(children, holder)
	}
	if len(children) == 0 {
		return out, nil
	}

	var joins []ast.Stmt
	for _, c := range children[:len(children)-1] {
		body, err := r.tree(lv, c, newScope(sc, false))
		if err != nil {
			return nil, err
		}
		done := threadName(c.ID())
		out = append(out, makeChan(done, ident("any")), spawn(done, body))
		joins = append(joins, join(ident(done)))
	}
	last, err := r.tree(lv, children[len(children)-1], sc)
	if err != nil {
		return nil, err
	}
	out = append(out, last...)
	return append(out, joins...), nil
}

// run emits one statement with its receives before and its sends after
func (r *reconstructor) run(lv *levelCtx, e *ScheduleTree, sc *scope) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, from := range e.Prereqs {
		ch, ok := lv.channels[[2]StmtId{e.ID(), from}]
		if !ok {
			return nil, FatalError(fmt.Sprintf("no channel from %s to %s", from, e.ID()), SourceLocation{})
		}
		out = append(out, r.receive(ch, sc)...)
	}
	stmts, err := r.statement(e, sc)
	if err != nil {
		return nil, err
	}
	out = append(out, stmts...)
	for _, c := range e.Children {
		if c.Kind != ScheduleSync {
			continue
		}
		ch, ok := lv.channels[[2]StmtId{c.Target, c.Source}]
		if !ok {
			return nil, FatalError(fmt.Sprintf("no channel from %s to %s", c.Source, c.Target), SourceLocation{})
		}
		value, err := r.payloadValue(ch.Env)
		if err != nil {
			return nil, err
		}
		out = append(out, &ast.SendStmt{Chan: ident(ch.Name()), Value: value})
	}
	return out, nil
}

// statement emits the statement of a schedule entry, restitching the
// reconstructed inner levels into its blocks
func (r *reconstructor) statement(e *ScheduleTree, sc *scope) ([]ast.Stmt, error) {
	switch n := e.Node.(type) {
	case *MacNode:
		return []ast.Stmt{n.stmt}, nil
	case *ExprNode:
		return r.leaf(n.stmt, sc)
	case *BlockNode:
		body, err := r.level(n.Children, e.Inner[0], newScope(sc, true))
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.BlockStmt{List: body}}, nil
	case *ExprBlockNode:
		if stmt, ok, err := r.pipeline(n, e, sc); ok || err != nil {
			return stmt, err
		}
		blocks := blocksOf(n)
		if len(blocks) != len(e.Inner) {
			return nil, FatalError(fmt.Sprintf("statement %s has %d blocks and %d schedules", n.id, len(blocks), len(e.Inner)), SourceLocation{})
		}
		bodies := make([][]ast.Stmt, len(blocks))
		for i, b := range blocks {
			body, err := r.level(b.Children, e.Inner[i], newScope(sc, true))
			if err != nil {
				return nil, err
			}
			bodies[i] = body
		}
		stmt, err := restitch(r.file, n.stmt, n.slots, bodies)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{stmt}, nil
	}
	return nil, FatalError(fmt.Sprintf("unknown dependency node %T", e.Node), SourceLocation{})
}

// leaf emits a statement without blocks. Outside of its original block a
// := statement must not shadow variables it assigns in the original.
func (r *reconstructor) leaf(s ast.Stmt, sc *scope) ([]ast.Stmt, error) {
	if ds, ok := s.(*ast.DeclStmt); ok && r.declaresHoisted(ds) {
		return r.assignHoisted(ds, sc)
	}
	as, ok := s.(*ast.AssignStmt)
	if !ok || as.Tok != token.DEFINE {
		for _, id := range r.res.declaredIdents(s) {
			if p, ok := r.res.declared(id); ok {
				sc.declare(captureKey(p))
			}
		}
		return []ast.Stmt{s}, nil
	}

	var fresh []*ast.Ident
	assigned := false
	for _, l := range as.Lhs {
		id, ok := l.(*ast.Ident)
		if !ok || id.Name == "_" {
			continue
		}
		p, ok := r.res.declared(id)
		if !ok {
			continue
		}
		key := captureKey(p)
		if r.hoisted[key] {
			assigned = true
			continue
		}
		if !r.res.redeclared(id, as) {
			fresh = append(fresh, id)
			sc.declare(key)
			continue
		}
		if !sc.original && !sc.names[key] {
			assigned = true
		}
	}
	if !assigned {
		return []ast.Stmt{s}, nil
	}

	var out []ast.Stmt
	for _, id := range fresh {
		p, _ := r.res.declared(id)
		typ, err := r.nameType(p)
		if err != nil {
			return nil, err
		}
		out = append(out, varDecl(id.Name, typ))
	}
	split := *as
	split.Tok = token.ASSIGN
	return append(out, &split), nil
}

func (r *reconstructor) declaresHoisted(ds *ast.DeclStmt) bool {
	for _, id := range r.res.declaredIdents(ds) {
		if p, ok := r.res.declared(id); ok && r.hoisted[captureKey(p)] {
			return true
		}
	}
	return false
}

// assignHoisted turns a var declaration into assignments to the variables
// already declared at the top of the level. The other names of the
// declaration keep a declaration of their own.
func (r *reconstructor) assignHoisted(ds *ast.DeclStmt, sc *scope) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, spec := range ds.Decl.(*ast.GenDecl).Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		var lhs []ast.Expr
		for _, id := range vs.Names {
			lhs = append(lhs, ident(id.Name))
			p, ok := r.res.declared(id)
			if !ok || r.hoisted[captureKey(p)] {
				continue
			}
			typ, err := r.nameType(p)
			if err != nil {
				return nil, err
			}
			sc.declare(captureKey(p))
			out = append(out, varDecl(id.Name, typ))
		}
		if len(vs.Values) > 0 {
			out = append(out, assignTo(lhs, vs.Values...))
		}
	}
	return out, nil
}

// payloadType is the element type of a channel carrying env
func (r *reconstructor) payloadType(env liveset.Environment) (ast.Expr, error) {
	switch env.Len() {
	case 0:
		return emptyStruct(), nil
	case 1:
		return r.nameType(env.Paths()[0])
	}
	fields := &ast.FieldList{}
	for _, p := range env.Paths() {
		t, err := r.nameType(p)
		if err != nil {
			return nil, err
		}
		fields.List = append(fields.List, field(p.Ident(), t))
	}
	return &ast.StructType{Fields: fields}, nil
}

func (r *reconstructor) nameType(p liveset.PathName) (ast.Expr, error) {
	t, ok := r.res.typeOf(p)
	if !ok {
		return nil, UnsupportedError(fmt.Sprintf("type of %s is unknown", p.Ident()), SourceLocation{})
	}
	x, err := r.types.expr(t)
	if err != nil {
		return nil, UnsupportedError(fmt.Sprintf("type of %s: %v", p.Ident(), err), SourceLocation{})
	}
	return x, nil
}

// payloadValue is the value sent on a channel carrying env
func (r *reconstructor) payloadValue(env liveset.Environment) (ast.Expr, error) {
	switch env.Len() {
	case 0:
		return &ast.CompositeLit{Type: emptyStruct()}, nil
	case 1:
		return ident(env.Paths()[0].Ident()), nil
	}
	typ, err := r.payloadType(env)
	if err != nil {
		return nil, err
	}
	lit := &ast.CompositeLit{Type: typ}
	for _, p := range env.Paths() {
		lit.Elts = append(lit.Elts, ident(p.Ident()))
	}
	return lit, nil
}

// receive waits for the message of ch and binds the names it carries
func (r *reconstructor) receive(ch Channel, sc *scope) []ast.Stmt {
	paths := ch.Env.Paths()
	if len(paths) == 0 {
		return []ast.Stmt{&ast.ExprStmt{X: recvExpr(ident(ch.Name()))}}
	}
	if len(paths) == 1 {
		return r.bind(paths[0], recvExpr(ident(ch.Name())), sc)
	}
	msg := fmt.Sprintf("msg_%s_%s", ch.To, ch.From)
	out := []ast.Stmt{define([]ast.Expr{ident(msg)}, recvExpr(ident(ch.Name())))}
	for _, p := range paths {
		out = append(out, r.bind(p, &ast.SelectorExpr{X: ident(msg), Sel: ident(p.Ident())}, sc)...)
	}
	return out
}

func (r *reconstructor) bind(p liveset.PathName, value ast.Expr, sc *scope) []ast.Stmt {
	key := captureKey(p)
	lhs := []ast.Expr{ident(p.Ident())}
	if sc.has(key) {
		return []ast.Stmt{assignTo(lhs, value)}
	}
	sc.declare(key)
	return []ast.Stmt{define(lhs, value), use(p.Ident())}
}
