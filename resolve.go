package main

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"

	"github.com/xyproto/autopar/internal/liveset"
)

// identResolver decides which identifiers are live variables. Type
// information is used when the loader provided it, the parser's object
// resolution otherwise.
type identResolver struct {
	info *types.Info
	file *token.File

	// synthetic holds the variables introduced by the normaliser, which the
	// type checker never saw
	synthetic map[string]types.Type
	// seen records the type of every tracked variable by name and mark
	seen map[string]types.Type
	// shared holds the variables whose storage is reached through a
	// pointer or a closure. A copy of them is a different variable.
	shared map[string]bool
}

func newIdentResolver(info *types.Info, file *token.File) *identResolver {
	return &identResolver{
		info:      info,
		file:      file,
		synthetic: make(map[string]types.Type),
		seen:      make(map[string]types.Type),
		shared:    make(map[string]bool),
	}
}

// share records that the storage of the variable id is reached through a
// pointer
func (r *identResolver) share(id *ast.Ident) {
	if p, ok := r.variable(id); ok {
		r.shared[captureKey(p)] = true
	}
}

func (r *identResolver) object(id *ast.Ident) types.Object {
	if r.info == nil {
		return nil
	}
	if obj := r.info.Uses[id]; obj != nil {
		return obj
	}
	return r.info.Defs[id]
}

func (r *identResolver) offset(pos token.Pos) []int {
	if r.file == nil || !pos.IsValid() {
		return nil
	}
	base := token.Pos(r.file.Base())
	if pos < base || int(pos-base) > r.file.Size() {
		return nil
	}
	return []int{r.file.Offset(pos)}
}

// variable reports whether id refers to a tracked variable and returns the
// path name for it. The mark is the offset of the declaring identifier.
func (r *identResolver) variable(id *ast.Ident) (liveset.PathName, bool) {
	if id == nil || id.Name == "_" {
		return nil, false
	}
	if t, ok := r.synthetic[id.Name]; ok && r.object(id) == nil {
		r.remember(id.Name, nil, t)
		return liveset.Name(id.Name), true
	}
	if obj := r.object(id); obj != nil {
		v, ok := obj.(*types.Var)
		if !ok || v.IsField() {
			return nil, false
		}
		marks := r.offset(v.Pos())
		r.remember(id.Name, marks, v.Type())
		return liveset.Name(id.Name, marks...), true
	}
	if r.info != nil && r.info.Types != nil {
		// checked source without an object: blank, label or field key
		if _, typed := r.info.Types[id]; typed {
			return nil, false
		}
	}
	if id.Obj != nil && id.Obj.Kind == ast.Var {
		marks := r.offset(id.Obj.Pos())
		return liveset.Name(id.Name, marks...), true
	}
	return nil, false
}

// declared returns the path for an identifier on the left of := or in a
// var spec. Redeclared names resolve to the existing variable.
func (r *identResolver) declared(id *ast.Ident) (liveset.PathName, bool) {
	if id == nil || id.Name == "_" {
		return nil, false
	}
	if p, ok := r.variable(id); ok {
		return p, true
	}
	if r.info != nil && r.object(id) != nil {
		return nil, false
	}
	return liveset.Name(id.Name, r.offset(id.Pos())...), true
}

func (r *identResolver) remember(name string, marks []int, t types.Type) {
	if t == nil {
		return
	}
	r.seen[typeKey(name, marks)] = t
	r.seen[name] = t
}

func typeKey(name string, marks []int) string {
	key := name
	for _, m := range marks {
		key += "@" + strconv.Itoa(m)
	}
	return key
}

// typeOf returns the type recorded for a carried path name
func (r *identResolver) typeOf(p liveset.PathName) (types.Type, bool) {
	if len(p) == 0 {
		return nil, false
	}
	last := p[len(p)-1]
	if t, ok := r.seen[typeKey(last.Name, last.Marks)]; ok {
		return t, true
	}
	t, ok := r.seen[last.Name]
	return t, ok
}

// exprType returns the static type of e when known
func (r *identResolver) exprType(e ast.Expr) types.Type {
	if r.info == nil {
		return nil
	}
	return r.info.TypeOf(e)
}

// sharesMemory reports whether passing e somewhere lets the callee modify
// what e refers to. Unknown types are assumed to share.
func (r *identResolver) sharesMemory(e ast.Expr) bool {
	t := r.exprType(e)
	if t == nil {
		return true
	}
	return typeSharesMemory(t, 0)
}

func typeSharesMemory(t types.Type, depth int) bool {
	if depth > 8 {
		return true
	}
	switch u := t.Underlying().(type) {
	case *types.Basic:
		return u.Kind() == types.UnsafePointer
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		return true
	case *types.Array:
		return typeSharesMemory(u.Elem(), depth+1)
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			if typeSharesMemory(u.Field(i).Type(), depth+1) {
				return true
			}
		}
		return false
	case *types.TypeParam:
		return true
	}
	return true
}

// singleValue reports whether the call e has a known, single result
func (r *identResolver) singleValue(e ast.Expr) (types.Type, bool) {
	t := r.exprType(e)
	if t == nil {
		return nil, false
	}
	if _, isTuple := t.(*types.Tuple); isTuple {
		return nil, false
	}
	return t, true
}

// redeclared reports whether id, on the left of the := statement decl,
// assigns to an existing variable instead of declaring a new one
func (r *identResolver) redeclared(id *ast.Ident, decl ast.Node) bool {
	if id == nil || id.Name == "_" {
		return false
	}
	if r.info != nil {
		if _, isDef := r.info.Defs[id]; isDef {
			return r.info.Defs[id] == nil && r.info.Uses[id] != nil
		}
		return r.info.Uses[id] != nil
	}
	return id.Obj != nil && id.Obj.Decl != decl
}
