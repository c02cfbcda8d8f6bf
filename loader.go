// Completion: 95% - Loading and type checking the package being rewritten
package main

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"go/version"
	"strings"

	"github.com/nikandfor/errors"
	"golang.org/x/tools/go/packages"
)

// Directive enrolls a function in both passes when it appears as a line of
// the function's doc comment
const Directive = "//autopar:parallelise"

// Unit is a type checked package
type Unit struct {
	Fset      *token.FileSet
	Pkg       *types.Package
	Info      *types.Info
	Files     []*ast.File
	GoVersion string
}

// Target is an annotated function and the file declaring it
type Target struct {
	File *ast.File
	Fn   *ast.FuncDecl
}

// LoadPackage loads the package in dir with its syntax and types
func LoadPackage(ctx context.Context, dir string) (*Unit, error) {
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedModule,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, errors.Wrap(err, "load package %v", dir)
	}
	if len(pkgs) != 1 {
		return nil, errors.New("%v: expected one package, found %d", dir, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		var msgs []string
		for _, e := range pkg.Errors {
			msgs = append(msgs, e.Error())
		}
		return nil, HostError(strings.Join(msgs, "\n"), SourceLocation{File: dir})
	}
	u := &Unit{
		Fset:  pkg.Fset,
		Pkg:   pkg.Types,
		Info:  pkg.TypesInfo,
		Files: pkg.Syntax,
	}
	if pkg.Module != nil {
		u.GoVersion = "go" + pkg.Module.GoVersion
	}
	if VerboseMode {
		trace("loaded package", "path", pkg.PkgPath, "files", len(u.Files), "go", u.GoVersion)
	}
	return u, nil
}

// NewUnitFromSource parses and type checks a single file package held in
// memory
func NewUnitFromSource(filename, src string) (*Unit, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, HostError(err.Error(), SourceLocation{File: filename})
	}
	info := newTypesInfo()
	conf := types.Config{Importer: importer.Default(), GoVersion: "go1.24"}
	pkg, err := conf.Check(f.Name.Name, fset, []*ast.File{f}, info)
	if err != nil {
		return nil, HostError(err.Error(), SourceLocation{File: filename})
	}
	return &Unit{Fset: fset, Pkg: pkg, Info: info, Files: []*ast.File{f}, GoVersion: "go1.24"}, nil
}

func newTypesInfo() *types.Info {
	return &types.Info{
		Types:        make(map[ast.Expr]types.TypeAndValue),
		Defs:         make(map[*ast.Ident]types.Object),
		Uses:         make(map[*ast.Ident]types.Object),
		Implicits:    make(map[ast.Node]types.Object),
		Selections:   make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:       make(map[ast.Node]*types.Scope),
		FileVersions: make(map[*ast.File]string),
	}
}

// Filename returns the path of a file of the unit
func (u *Unit) Filename(f *ast.File) string {
	return u.Fset.Position(f.Package).Filename
}

// PerIterationLoopVars reports whether f is compiled with Go 1.22 loop
// variable semantics
func (u *Unit) PerIterationLoopVars(f *ast.File) bool {
	v := u.GoVersion
	if u.Info != nil {
		if fv, ok := u.Info.FileVersions[f]; ok && fv != "" {
			v = fv
		}
	}
	if !version.IsValid(v) {
		return false
	}
	return version.Compare(version.Lang(v), "go1.22") >= 0
}

// annotated reports whether a doc comment carries the directive
func annotated(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == Directive {
			return true
		}
	}
	return false
}

// Targets returns the annotated functions of the unit in source order. A
// directive on anything else than a function with a body is an error.
func (u *Unit) Targets() ([]Target, error) {
	var targets []Target
	for _, f := range u.Files {
		for _, decl := range f.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if !annotated(d.Doc) {
					continue
				}
				if d.Body == nil {
					return nil, HostError(fmt.Sprintf("%s: the directive needs a function with a body", funcName(d)), u.location(d.Pos()))
				}
				targets = append(targets, Target{File: f, Fn: d})
			case *ast.GenDecl:
				if annotated(d.Doc) {
					return nil, HostError(fmt.Sprintf("the directive applies to functions only, not to a %s declaration", d.Tok), u.location(d.Pos()))
				}
				for _, spec := range d.Specs {
					var doc *ast.CommentGroup
					switch s := spec.(type) {
					case *ast.TypeSpec:
						doc = s.Doc
					case *ast.ValueSpec:
						doc = s.Doc
					}
					if annotated(doc) {
						return nil, HostError("the directive applies to functions only", u.location(spec.Pos()))
					}
				}
			}
		}
	}
	return targets, nil
}

func (u *Unit) location(pos token.Pos) SourceLocation {
	p := u.Fset.Position(pos)
	return SourceLocation{File: p.Filename, Line: p.Line, Column: p.Column}
}

// funcName is the name a function is recorded under: Name for functions,
// Recv.Name for methods
func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return recvTypeName(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func recvTypeName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.ParenExpr:
		return recvTypeName(t.X)
	case *ast.IndexExpr:
		return recvTypeName(t.X)
	case *ast.IndexListExpr:
		return recvTypeName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return "?"
}
