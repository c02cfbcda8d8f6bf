// Completion: 90% - Type expressions for channel payloads
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
)

// typeBuilder turns checked types back into syntax, as seen from the file
// being rewritten
type typeBuilder struct {
	pkg *types.Package
	// imports maps an import path to the name the file uses for it
	imports map[string]string
}

func newTypeBuilder(pkg *types.Package, f *ast.File) *typeBuilder {
	tb := &typeBuilder{pkg: pkg, imports: make(map[string]string)}
	if f == nil {
		return tb
	}
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if imp.Name != nil && imp.Name.Name != "_" && imp.Name.Name != "." {
			tb.imports[path] = imp.Name.Name
		}
	}
	return tb
}

func (tb *typeBuilder) qualifier(p *types.Package) string {
	if name, ok := tb.imports[p.Path()]; ok {
		return name
	}
	return p.Name()
}

// expr returns the syntax of t. Types that cannot be named from this file,
// such as unexported types of other packages, are an error.
func (tb *typeBuilder) expr(t types.Type) (ast.Expr, error) {
	switch u := t.(type) {
	case *types.Basic:
		if u.Info()&types.IsUntyped != 0 {
			return tb.expr(types.Default(u))
		}
		if u.Kind() == types.Invalid {
			return nil, fmt.Errorf("invalid type")
		}
		return ast.NewIdent(u.Name()), nil
	case *types.Alias:
		return tb.named(u.Obj(), u.TypeArgs())
	case *types.Named:
		return tb.named(u.Obj(), u.TypeArgs())
	case *types.TypeParam:
		return ast.NewIdent(u.Obj().Name()), nil
	case *types.Pointer:
		elem, err := tb.expr(u.Elem())
		if err != nil {
			return nil, err
		}
		return &ast.StarExpr{X: elem}, nil
	case *types.Slice:
		elem, err := tb.expr(u.Elem())
		if err != nil {
			return nil, err
		}
		return &ast.ArrayType{Elt: elem}, nil
	case *types.Array:
		elem, err := tb.expr(u.Elem())
		if err != nil {
			return nil, err
		}
		return &ast.ArrayType{
			Len: &ast.BasicLit{Kind: token.INT, Value: strconv.FormatInt(u.Len(), 10)},
			Elt: elem,
		}, nil
	case *types.Map:
		key, err := tb.expr(u.Key())
		if err != nil {
			return nil, err
		}
		val, err := tb.expr(u.Elem())
		if err != nil {
			return nil, err
		}
		return &ast.MapType{Key: key, Value: val}, nil
	case *types.Chan:
		elem, err := tb.expr(u.Elem())
		if err != nil {
			return nil, err
		}
		dir := ast.SEND | ast.RECV
		switch u.Dir() {
		case types.SendOnly:
			dir = ast.SEND
		case types.RecvOnly:
			dir = ast.RECV
		}
		return &ast.ChanType{Dir: dir, Value: elem}, nil
	case *types.Signature:
		return tb.signature(u)
	case *types.Struct:
		fields := &ast.FieldList{}
		for i := 0; i < u.NumFields(); i++ {
			f := u.Field(i)
			if !f.Exported() && f.Pkg() != tb.pkg {
				return nil, fmt.Errorf("struct with unexported field %s of package %s", f.Name(), f.Pkg().Path())
			}
			ft, err := tb.expr(f.Type())
			if err != nil {
				return nil, err
			}
			field := &ast.Field{Type: ft}
			if !f.Embedded() {
				field.Names = []*ast.Ident{ast.NewIdent(f.Name())}
			}
			if tag := u.Tag(i); tag != "" {
				field.Tag = &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(tag)}
			}
			fields.List = append(fields.List, field)
		}
		return &ast.StructType{Fields: fields}, nil
	case *types.Interface:
		if u.Empty() {
			return ast.NewIdent("any"), nil
		}
		methods := &ast.FieldList{}
		for i := 0; i < u.NumEmbeddeds(); i++ {
			et, err := tb.expr(u.EmbeddedType(i))
			if err != nil {
				return nil, err
			}
			methods.List = append(methods.List, &ast.Field{Type: et})
		}
		for i := 0; i < u.NumExplicitMethods(); i++ {
			m := u.ExplicitMethod(i)
			ft, err := tb.signature(m.Type().(*types.Signature))
			if err != nil {
				return nil, err
			}
			methods.List = append(methods.List, &ast.Field{Names: []*ast.Ident{ast.NewIdent(m.Name())}, Type: ft})
		}
		return &ast.InterfaceType{Methods: methods}, nil
	case *types.Union:
		return nil, fmt.Errorf("type constraint %s used as a value type", u)
	case *types.Tuple:
		return nil, fmt.Errorf("multiple values %s", u)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func (tb *typeBuilder) named(obj *types.TypeName, args *types.TypeList) (ast.Expr, error) {
	var base ast.Expr = ast.NewIdent(obj.Name())
	if obj.Pkg() != nil && obj.Pkg() != tb.pkg {
		if !obj.Exported() {
			return nil, fmt.Errorf("unexported type %s.%s", obj.Pkg().Path(), obj.Name())
		}
		base = &ast.SelectorExpr{X: ast.NewIdent(tb.qualifier(obj.Pkg())), Sel: ast.NewIdent(obj.Name())}
	}
	if args == nil || args.Len() == 0 {
		return base, nil
	}
	indices := make([]ast.Expr, args.Len())
	for i := range indices {
		x, err := tb.expr(args.At(i))
		if err != nil {
			return nil, err
		}
		indices[i] = x
	}
	if len(indices) == 1 {
		return &ast.IndexExpr{X: base, Index: indices[0]}, nil
	}
	return &ast.IndexListExpr{X: base, Indices: indices}, nil
}

func (tb *typeBuilder) signature(sig *types.Signature) (*ast.FuncType, error) {
	params, err := tb.tuple(sig.Params(), sig.Variadic())
	if err != nil {
		return nil, err
	}
	results, err := tb.tuple(sig.Results(), false)
	if err != nil {
		return nil, err
	}
	ft := &ast.FuncType{Params: params}
	if results != nil && len(results.List) > 0 {
		ft.Results = results
	}
	return ft, nil
}

func (tb *typeBuilder) tuple(t *types.Tuple, variadic bool) (*ast.FieldList, error) {
	list := &ast.FieldList{}
	if t == nil {
		return list, nil
	}
	for i := 0; i < t.Len(); i++ {
		v := t.At(i)
		var x ast.Expr
		if s, ok := v.Type().(*types.Slice); ok && variadic && i == t.Len()-1 {
			elem, err := tb.expr(s.Elem())
			if err != nil {
				return nil, err
			}
			x = &ast.Ellipsis{Elt: elem}
		} else {
			var err error
			if x, err = tb.expr(v.Type()); err != nil {
				return nil, err
			}
		}
		list.List = append(list.List, &ast.Field{Type: x})
	}
	return list, nil
}
