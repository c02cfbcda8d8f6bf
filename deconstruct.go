// Completion: 95% - Statement deconstruction for the Go statement set
package main

import (
	"go/ast"
	"go/token"
	"go/types"

	"github.com/xyproto/autopar/internal/liveset"
)

// readMode tells whether a read may change the value it reads
type readMode int

const (
	plainRead     readMode = iota // the value is copied
	releasingRead                 // the value may be modified or shared afterwards
	copyRead                      // only a part that shares no memory is copied
)

// envPair is the (in, out) environment pair of a statement or expression
type envPair struct {
	in, out liveset.Environment
}

func (p *envPair) add(o envPair) {
	p.in.Merge(o.in)
	p.out.Merge(o.out)
}

// scoped drops names that are bound by a pattern of the statement itself
func (p envPair) scoped(pat liveset.Environment) envPair {
	return envPair{in: p.in.Minus(pat), out: p.out.Minus(pat)}
}

// deconstructor walks statements and expressions of one function body
type deconstructor struct {
	res    *identResolver
	fset   *token.FileSet
	file   *token.File
	strict bool

	// results are the named results of the function being walked
	results []*ast.Ident
	// captures maps a variable bound to a closure to the closure's free names
	captures    map[string]liveset.Environment
	closureCaps map[*ast.FuncLit]liveset.Environment
	// aliases maps a variable to the group of variables that may refer to
	// the same memory
	aliases map[string]*liveset.Environment
}

func newDeconstructor(fset *token.FileSet, res *identResolver, strict bool) *deconstructor {
	return &deconstructor{
		res:         res,
		fset:        fset,
		file:        res.file,
		strict:      strict,
		captures:    make(map[string]liveset.Environment),
		closureCaps: make(map[*ast.FuncLit]liveset.Environment),
		aliases:     make(map[string]*liveset.Environment),
	}
}

func (d *deconstructor) location(pos token.Pos) SourceLocation {
	if d.fset == nil || !pos.IsValid() {
		return SourceLocation{}
	}
	p := d.fset.Position(pos)
	return SourceLocation{File: p.Filename, Line: p.Line, Column: p.Column}
}

func (d *deconstructor) span(n ast.Node) StmtId {
	return spanOf(d.file, n)
}

func captureKey(p liveset.PathName) string {
	if len(p) == 0 {
		return ""
	}
	return typeKey(p.Ident(), p[len(p)-1].Marks)
}

// statement turns one statement into a dependency node
func (d *deconstructor) statement(s ast.Stmt) (DependencyNode, error) {
	switch st := s.(type) {
	case *ast.EmptyStmt:
		return d.mac(st), nil
	case *ast.DeclStmt:
		gd, ok := st.Decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			return d.mac(st), nil
		}
		p, err := d.varDecl(gd)
		if err != nil {
			return nil, err
		}
		return d.leaf(st, p), nil
	case *ast.AssignStmt, *ast.ExprStmt, *ast.IncDecStmt, *ast.SendStmt,
		*ast.ReturnStmt, *ast.GoStmt, *ast.DeferStmt, *ast.BranchStmt:
		p, err := d.simple(st)
		if err != nil {
			return nil, err
		}
		return d.leaf(st, p), nil
	case *ast.LabeledStmt:
		return d.labeled(st)
	case *ast.BlockStmt, *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt,
		*ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
		return d.blockStmt(st)
	case *ast.BadStmt:
		return nil, UnsupportedError("malformed statement", d.location(st.Pos()))
	}
	return nil, UnsupportedError(nodeName(s), d.location(s.Pos()))
}

func (d *deconstructor) mac(s ast.Stmt) *MacNode {
	n := &MacNode{stmt: s}
	n.id = d.span(s)
	return n
}

func (d *deconstructor) leaf(s ast.Stmt, p envPair) *ExprNode {
	n := &ExprNode{stmt: s}
	n.id = d.span(s)
	n.in, n.out = p.in, p.out
	n.pl = classify(s)
	return n
}

// simple returns the environments of a statement without nested blocks
func (d *deconstructor) simple(s ast.Stmt) (envPair, error) {
	var p envPair
	switch st := s.(type) {
	case nil:
		return p, nil
	case *ast.AssignStmt:
		return d.assign(st)
	case *ast.ExprStmt:
		return p, d.read(st.X, plainRead, &p)
	case *ast.IncDecStmt:
		return p, d.read(st.X, releasingRead, &p)
	case *ast.SendStmt:
		if err := d.read(st.Chan, releasingRead, &p); err != nil {
			return p, err
		}
		return p, d.read(st.Value, plainRead, &p)
	case *ast.ReturnStmt:
		for _, r := range st.Results {
			if err := d.read(r, plainRead, &p); err != nil {
				return p, err
			}
		}
		if len(st.Results) == 0 {
			// a bare return reads every named result
			for _, id := range d.results {
				if path, ok := d.res.declared(id); ok {
					p.in.Add(path)
				}
			}
		}
		return p, nil
	case *ast.GoStmt:
		return p, d.read(st.Call, plainRead, &p)
	case *ast.DeferStmt:
		return p, d.read(st.Call, plainRead, &p)
	case *ast.BranchStmt:
		return p, nil
	case *ast.DeclStmt:
		if gd, ok := st.Decl.(*ast.GenDecl); ok && gd.Tok == token.VAR {
			return d.varDecl(gd)
		}
		return p, nil
	case *ast.EmptyStmt:
		return p, nil
	}
	return p, UnsupportedError(nodeName(s), d.location(s.Pos()))
}

func (d *deconstructor) assign(st *ast.AssignStmt) (envPair, error) {
	var p envPair
	for _, r := range st.Rhs {
		if err := d.read(r, plainRead, &p); err != nil {
			return p, err
		}
	}
	if st.Tok != token.DEFINE {
		for i, l := range st.Lhs {
			if err := d.read(l, releasingRead, &p); err != nil {
				return p, err
			}
			if root := rootIdent(l); root != nil {
				if path, ok := d.res.variable(root); ok {
					d.link(path, valueOf(len(st.Lhs), st.Rhs, i)...)
				}
			}
		}
		return p, nil
	}
	for i, l := range st.Lhs {
		id, ok := l.(*ast.Ident)
		if !ok {
			return p, UnsupportedError("non-identifier on the left of :=", d.location(l.Pos()))
		}
		path, ok := d.res.declared(id)
		if !ok {
			continue
		}
		p.out.Add(path)
		if d.res.redeclared(id, st) {
			p.in.Add(path)
		}
		if len(st.Lhs) == len(st.Rhs) {
			d.bindClosure(path, st.Rhs[i])
		}
		d.link(path, valueOf(len(st.Lhs), st.Rhs, i)...)
	}
	return p, nil
}

// valueOf returns the expressions the i-th of lhs assigned names gets its
// value from
func valueOf(lhs int, rhs []ast.Expr, i int) []ast.Expr {
	if lhs == len(rhs) {
		return rhs[i : i+1]
	}
	return rhs
}

func (d *deconstructor) varDecl(gd *ast.GenDecl) (envPair, error) {
	var p envPair
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, v := range vs.Values {
			if err := d.read(v, plainRead, &p); err != nil {
				return p, err
			}
		}
		for i, id := range vs.Names {
			path, ok := d.res.declared(id)
			if !ok {
				continue
			}
			p.out.Add(path)
			if len(vs.Names) == len(vs.Values) {
				d.bindClosure(path, vs.Values[i])
			}
			if len(vs.Values) > 0 {
				d.link(path, valueOf(len(vs.Names), vs.Values, i)...)
			}
		}
	}
	return p, nil
}

func (d *deconstructor) bindClosure(path liveset.PathName, value ast.Expr) {
	fl, ok := ast.Unparen(value).(*ast.FuncLit)
	if !ok {
		return
	}
	if caps, ok := d.closureCaps[fl]; ok {
		d.captures[captureKey(path)] = caps
	}
}

// read walks an expression. With strict moves every read below a compound
// expression also releases the name.
func (d *deconstructor) read(e ast.Expr, mode readMode, p *envPair) error {
	var sub envPair
	if err := d.walkExpr(e, mode, &sub); err != nil {
		return err
	}
	if d.strict {
		if _, bare := ast.Unparen(e).(*ast.Ident); !bare {
			sub.out.Merge(sub.in)
		}
	}
	p.add(sub)
	return nil
}

// link puts path into the alias group of every variable the value of
// exprs may refer to. Only values that share memory form groups.
func (d *deconstructor) link(path liveset.PathName, exprs ...ast.Expr) {
	if !d.shares(path) {
		return
	}
	group := d.reachable(exprs...)
	if group.Empty() {
		return
	}
	group.Add(path)
	merged := &liveset.Environment{}
	for _, member := range group.Paths() {
		if g, ok := d.aliases[captureKey(member)]; ok {
			merged.Merge(*g)
		}
		merged.Add(member)
	}
	for _, member := range merged.Paths() {
		d.aliases[captureKey(member)] = merged
	}
}

// reachable returns the variables whose memory a value of exprs may refer
// to: the memory sharing variables they read, the variables whose storage
// they take the address of and the captures of their closures
func (d *deconstructor) reachable(exprs ...ast.Expr) liveset.Environment {
	var env liveset.Environment
	for _, e := range exprs {
		ast.Inspect(e, func(n ast.Node) bool {
			switch x := n.(type) {
			case *ast.FuncLit:
				env.Merge(d.closureCaps[x])
				return false
			case *ast.UnaryExpr:
				if x.Op == token.AND {
					d.addStorage(x.X, &env)
				}
			case *ast.SliceExpr:
				d.addStorage(x.X, &env)
			case *ast.Ident:
				if path, ok := d.res.variable(x); ok && d.shares(path) {
					env.Add(path)
				}
			}
			return true
		})
	}
	return env
}

func (d *deconstructor) addStorage(e ast.Expr, env *liveset.Environment) {
	if id := d.storage(e); id != nil {
		if path, ok := d.res.variable(id); ok {
			env.Add(path)
		}
	}
}

// storage returns the variable whose own memory e denotes, or nil when e
// is reached through a pointer, a slice or a map
func (d *deconstructor) storage(e ast.Expr) *ast.Ident {
	switch x := ast.Unparen(e).(type) {
	case *ast.Ident:
		return x
	case *ast.SelectorExpr:
		if !d.holds(x.X, false) {
			return nil
		}
		return d.storage(x.X)
	case *ast.IndexExpr:
		if !d.holds(x.X, true) {
			return nil
		}
		return d.storage(x.X)
	case *ast.SliceExpr:
		if !d.holds(x.X, true) {
			return nil
		}
		return d.storage(x.X)
	}
	return nil
}

// holds reports whether the parts of e live inside e itself: e is a struct
// or, when indexed, an array. Unknown types are assumed to.
func (d *deconstructor) holds(e ast.Expr, indexed bool) bool {
	t := d.res.exprType(e)
	if t == nil {
		return true
	}
	switch t.Underlying().(type) {
	case *types.Struct:
		return !indexed
	case *types.Array:
		return indexed
	}
	return false
}

// rootIdent returns the variable at the base of an assignment target
func rootIdent(e ast.Expr) *ast.Ident {
	for {
		switch x := e.(type) {
		case *ast.Ident:
			return x
		case *ast.ParenExpr:
			e = x.X
		case *ast.SelectorExpr:
			e = x.X
		case *ast.IndexExpr:
			e = x.X
		case *ast.IndexListExpr:
			e = x.X
		case *ast.StarExpr:
			e = x.X
		default:
			return nil
		}
	}
}

// readIdent adds a variable read to p. A read of a variable reads its
// whole alias group, and a producing read produces the whole group.
func (d *deconstructor) readIdent(id *ast.Ident, mode readMode, p *envPair) {
	path, ok := d.res.variable(id)
	if !ok {
		return
	}
	produces := mode == releasingRead || mode == plainRead && d.shares(path)
	p.in.Add(path)
	if produces {
		p.out.Add(path)
	}
	if g, ok := d.aliases[captureKey(path)]; ok {
		p.in.Merge(*g)
		if produces {
			p.out.Merge(*g)
		}
	}
	if caps, ok := d.captures[captureKey(path)]; ok {
		p.in.Merge(caps)
		p.out.Merge(caps)
	}
}

// shares reports whether a copy of the variable still refers to the same memory
func (d *deconstructor) shares(path liveset.PathName) bool {
	t, ok := d.res.typeOf(path)
	if !ok {
		return true
	}
	return typeSharesMemory(t, 0)
}

func (d *deconstructor) walkExpr(e ast.Expr, mode readMode, p *envPair) error {
	switch x := e.(type) {
	case nil:
		return nil
	case *ast.Ident:
		d.readIdent(x, mode, p)
	case *ast.BasicLit:
	case *ast.ParenExpr:
		return d.walkExpr(x.X, mode, p)
	case *ast.SelectorExpr:
		return d.walkExpr(x.X, d.partMode(x, mode), p)
	case *ast.IndexExpr:
		if err := d.walkExpr(x.X, d.partMode(x, mode), p); err != nil {
			return err
		}
		return d.walkExpr(x.Index, plainRead, p)
	case *ast.IndexListExpr:
		// generic instantiation, the indices are types
		return d.walkExpr(x.X, mode, p)
	case *ast.SliceExpr:
		if d.holds(x.X, true) {
			d.res.share(d.storage(x.X))
		}
		if err := d.walkExpr(x.X, releasingRead, p); err != nil {
			return err
		}
		for _, idx := range []ast.Expr{x.Low, x.High, x.Max} {
			if err := d.walkExpr(idx, plainRead, p); err != nil {
				return err
			}
		}
	case *ast.StarExpr:
		return d.walkExpr(x.X, d.partMode(x, mode), p)
	case *ast.UnaryExpr:
		if x.Op == token.AND {
			d.res.share(d.storage(x.X))
		}
		if x.Op == token.AND || x.Op == token.ARROW {
			return d.walkExpr(x.X, releasingRead, p)
		}
		return d.walkExpr(x.X, plainRead, p)
	case *ast.BinaryExpr:
		if err := d.walkExpr(x.X, plainRead, p); err != nil {
			return err
		}
		return d.walkExpr(x.Y, plainRead, p)
	case *ast.KeyValueExpr:
		if err := d.walkExpr(x.Key, plainRead, p); err != nil {
			return err
		}
		return d.walkExpr(x.Value, plainRead, p)
	case *ast.CompositeLit:
		for _, elt := range x.Elts {
			if err := d.walkExpr(elt, plainRead, p); err != nil {
				return err
			}
		}
	case *ast.TypeAssertExpr:
		return d.walkExpr(x.X, plainRead, p)
	case *ast.CallExpr:
		return d.walkCall(x, p)
	case *ast.FuncLit:
		return d.walkClosure(x, p)
	case *ast.ArrayType, *ast.StructType, *ast.FuncType, *ast.InterfaceType,
		*ast.MapType, *ast.ChanType, *ast.Ellipsis:
	case *ast.BadExpr:
		return UnsupportedError("malformed expression", d.location(x.Pos()))
	default:
		return UnsupportedError(nodeName(e), d.location(e.Pos()))
	}
	return nil
}

func (d *deconstructor) walkCall(c *ast.CallExpr, p *envPair) error {
	if sel, ok := ast.Unparen(c.Fun).(*ast.SelectorExpr); ok {
		mode := plainRead
		if d.mutatingReceiver(sel) {
			mode = releasingRead
		}
		if err := d.walkExpr(sel.X, mode, p); err != nil {
			return err
		}
	} else if err := d.walkExpr(c.Fun, plainRead, p); err != nil {
		return err
	}
	argMode := plainRead
	if d.isBuiltin(c.Fun, "len", "cap") {
		argMode = copyRead
	}
	for _, arg := range c.Args {
		if err := d.walkExpr(arg, argMode, p); err != nil {
			return err
		}
	}
	return nil
}

// partMode is the read mode for the operand of a selector, index or
// dereference. Reading a part that shares no memory copies only that part.
func (d *deconstructor) partMode(part ast.Expr, mode readMode) readMode {
	if mode != plainRead {
		return mode
	}
	if t := d.res.exprType(part); t != nil && !typeSharesMemory(t, 0) {
		return copyRead
	}
	return mode
}

func (d *deconstructor) isBuiltin(fun ast.Expr, names ...string) bool {
	id, ok := ast.Unparen(fun).(*ast.Ident)
	if !ok {
		return false
	}
	if d.res.info != nil {
		if _, builtin := d.res.info.Uses[id].(*types.Builtin); !builtin {
			return false
		}
	} else if id.Obj != nil {
		return false
	}
	for _, n := range names {
		if id.Name == n {
			return true
		}
	}
	return false
}

// mutatingReceiver reports whether calling sel may modify its receiver.
// Without type information every method call is assumed to.
func (d *deconstructor) mutatingReceiver(sel *ast.SelectorExpr) bool {
	if d.res.info == nil {
		return true
	}
	s, ok := d.res.info.Selections[sel]
	if !ok {
		// package qualified or unknown
		return d.res.info.Uses[sel.Sel] == nil
	}
	if s.Kind() != types.MethodVal {
		return false
	}
	sig, ok := s.Obj().Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return true
	}
	switch sig.Recv().Type().Underlying().(type) {
	case *types.Pointer, *types.Interface:
		return true
	}
	return false
}

// walkClosure analyses a function literal. Its free names are read and
// released by the enclosing expression; names declared inside stay hidden.
func (d *deconstructor) walkClosure(fl *ast.FuncLit, p *envPair) error {
	saved := d.results
	d.results = fieldNames(fl.Type.Results)
	_, in, _, err := d.analyseList(fl.Body.List)
	d.results = saved
	if err != nil {
		return err
	}
	caps := in.Minus(d.signatureEnv(fl.Type))
	d.closureCaps[fl] = caps
	for _, c := range caps.Paths() {
		d.res.shared[captureKey(c)] = true
	}
	p.in.Merge(caps)
	p.out.Merge(caps)
	return nil
}

func (d *deconstructor) labeled(st *ast.LabeledStmt) (DependencyNode, error) {
	inner, err := d.statement(st.Stmt)
	if err != nil {
		return nil, err
	}
	id := d.span(st)
	pl := classify(st)
	switch n := inner.(type) {
	case *ExprBlockNode:
		out := &ExprBlockNode{
			stmt:     &ast.LabeledStmt{Label: st.Label, Colon: st.Colon, Stmt: n.stmt},
			slots:    n.slots,
			Children: n.Children,
		}
		out.id, out.in, out.out, out.pl = id, n.in, n.out, pl
		return out, nil
	case *ExprNode:
		out := &ExprNode{stmt: st}
		out.id, out.in, out.out, out.pl = id, n.in, n.out, pl
		return out, nil
	}
	// a label on a declaration keeps it opaque
	return d.mac(st), nil
}

// blockStmt builds the ExprBlock node of a statement that owns blocks
func (d *deconstructor) blockStmt(s ast.Stmt) (DependencyNode, error) {
	var p envPair
	var children DependencyTree
	var slots []StmtId

	addBlock := func(id StmtId, list []ast.Stmt, pat liveset.Environment) error {
		b, err := d.block(id, list, pat)
		if err != nil {
			return err
		}
		children = append(children, b)
		slots = append(slots, id)
		p.in.Merge(b.in)
		p.out.Merge(b.out)
		return nil
	}

	var pat liveset.Environment
	switch st := s.(type) {
	case *ast.BlockStmt:
		if err := addBlock(d.span(st), st.List, pat); err != nil {
			return nil, err
		}
	case *ast.IfStmt:
		for cur := st; cur != nil; {
			header, err := d.simple(cur.Init)
			if err != nil {
				return nil, err
			}
			pat.Merge(d.initPattern(cur.Init))
			if err := d.read(cur.Cond, plainRead, &header); err != nil {
				return nil, err
			}
			p.add(header)
			if err := addBlock(d.span(cur.Body), cur.Body.List, pat); err != nil {
				return nil, err
			}
			switch e := cur.Else.(type) {
			case nil:
				cur = nil
			case *ast.BlockStmt:
				if err := addBlock(d.span(e), e.List, pat); err != nil {
					return nil, err
				}
				cur = nil
			case *ast.IfStmt:
				cur = e
			default:
				return nil, UnsupportedError(nodeName(e), d.location(e.Pos()))
			}
		}
	case *ast.ForStmt:
		header, err := d.simple(st.Init)
		if err != nil {
			return nil, err
		}
		pat = d.initPattern(st.Init)
		if err := d.read(st.Cond, plainRead, &header); err != nil {
			return nil, err
		}
		post, err := d.simple(st.Post)
		if err != nil {
			return nil, err
		}
		header.add(post)
		p.add(header)
		if err := addBlock(d.span(st.Body), st.Body.List, pat); err != nil {
			return nil, err
		}
	case *ast.RangeStmt:
		var header envPair
		if err := d.read(st.X, plainRead, &header); err != nil {
			return nil, err
		}
		if st.Tok == token.DEFINE {
			pat = d.patternEnv(st.Key, st.Value)
			for _, path := range pat.Paths() {
				d.link(path, st.X)
			}
		} else {
			for _, e := range []ast.Expr{st.Key, st.Value} {
				if err := d.read(e, releasingRead, &header); err != nil {
					return nil, err
				}
			}
		}
		p.add(header)
		if err := addBlock(d.span(st.Body), st.Body.List, pat); err != nil {
			return nil, err
		}
	case *ast.SwitchStmt:
		header, err := d.simple(st.Init)
		if err != nil {
			return nil, err
		}
		pat = d.initPattern(st.Init)
		if err := d.read(st.Tag, plainRead, &header); err != nil {
			return nil, err
		}
		for _, c := range st.Body.List {
			cc := c.(*ast.CaseClause)
			for _, e := range cc.List {
				if err := d.read(e, plainRead, &header); err != nil {
					return nil, err
				}
			}
		}
		p.add(header)
		for _, c := range st.Body.List {
			cc := c.(*ast.CaseClause)
			if err := addBlock(d.span(cc), cc.Body, pat); err != nil {
				return nil, err
			}
		}
	case *ast.TypeSwitchStmt:
		header, err := d.simple(st.Init)
		if err != nil {
			return nil, err
		}
		pat = d.initPattern(st.Init)
		switch a := st.Assign.(type) {
		case *ast.AssignStmt:
			for _, r := range a.Rhs {
				if err := d.read(r, plainRead, &header); err != nil {
					return nil, err
				}
			}
			bound := d.patternEnv(a.Lhs...)
			for _, path := range bound.Paths() {
				d.link(path, a.Rhs...)
			}
			pat.Merge(bound)
		case *ast.ExprStmt:
			if err := d.read(a.X, plainRead, &header); err != nil {
				return nil, err
			}
		}
		p.add(header)
		for _, c := range st.Body.List {
			cc := c.(*ast.CaseClause)
			if err := addBlock(d.span(cc), cc.Body, pat); err != nil {
				return nil, err
			}
		}
	case *ast.SelectStmt:
		for _, c := range st.Body.List {
			cc := c.(*ast.CommClause)
			comm, err := d.simple(cc.Comm)
			if err != nil {
				return nil, err
			}
			armPat := d.commPattern(cc.Comm)
			p.add(comm.scoped(armPat))
			armPat.Merge(pat)
			if err := addBlock(d.span(cc), cc.Body, armPat); err != nil {
				return nil, err
			}
		}
	default:
		return nil, UnsupportedError(nodeName(s), d.location(s.Pos()))
	}

	scoped := p.scoped(pat)
	n := &ExprBlockNode{stmt: erase(s), slots: slots, Children: children}
	n.id = d.span(s)
	n.in, n.out = scoped.in, scoped.out
	n.pl = classify(s)
	return n, nil
}

// initPattern returns the names an init statement declares for its owner
func (d *deconstructor) initPattern(init ast.Stmt) liveset.Environment {
	if as, ok := init.(*ast.AssignStmt); ok && as.Tok == token.DEFINE {
		return d.patternEnv(as.Lhs...)
	}
	return liveset.Environment{}
}

// block analyses a nested block. Names bound by pat are local to it.
func (d *deconstructor) block(id StmtId, list []ast.Stmt, pat liveset.Environment) (*BlockNode, error) {
	tree, in, out, err := d.analyseList(list)
	if err != nil {
		return nil, err
	}
	b := &BlockNode{Children: tree}
	b.id = id
	b.in, b.out = in.Minus(pat), out.Minus(pat)
	return b, nil
}

// placementVisitor collects the placement facts of a statement
type placementVisitor struct {
	pl        *placement
	breakable bool
	loop      bool
}

func (v placementVisitor) Visit(n ast.Node) ast.Visitor {
	switch s := n.(type) {
	case *ast.FuncLit:
		return nil
	case *ast.ReturnStmt:
		v.pl.exits = true
	case *ast.DeferStmt:
		v.pl.pinned = true
	case *ast.LabeledStmt:
		v.pl.pinned = true
	case *ast.BranchStmt:
		switch {
		case s.Label != nil, s.Tok == token.GOTO, s.Tok == token.FALLTHROUGH:
			v.pl.exits = true
			v.pl.pinned = true
		case s.Tok == token.BREAK && !v.breakable:
			v.pl.exits = true
		case s.Tok == token.CONTINUE && !v.loop:
			v.pl.exits = true
		}
	case *ast.ForStmt, *ast.RangeStmt:
		return placementVisitor{pl: v.pl, breakable: true, loop: true}
	case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
		return placementVisitor{pl: v.pl, breakable: true, loop: v.loop}
	}
	return v
}

// classify returns the placement of a statement relative to its level
func classify(s ast.Stmt) placement {
	var pl placement
	ast.Walk(placementVisitor{pl: &pl}, s)
	return pl
}
