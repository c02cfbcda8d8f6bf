package main

import (
	"fmt"
	"go/ast"
	"go/types"
	"io"
	"sort"
)

// DependencyGraph is the call graph of the functions of a package
type DependencyGraph struct {
	graph    map[string]map[string]bool
	roots    map[string]bool
	contains map[string]map[string]bool // tracks which functions contain/define closures
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		graph:    make(map[string]map[string]bool),
		roots:    make(map[string]bool),
		contains: make(map[string]map[string]bool),
	}
}

func (dg *DependencyGraph) AddCall(caller, callee string) {
	if dg.graph[caller] == nil {
		dg.graph[caller] = make(map[string]bool)
	}
	dg.graph[caller][callee] = true
}

func (dg *DependencyGraph) AddContains(parent, child string) {
	if dg.contains[parent] == nil {
		dg.contains[parent] = make(map[string]bool)
	}
	dg.contains[parent][child] = true
}

func (dg *DependencyGraph) MarkRoot(funcName string) {
	dg.roots[funcName] = true
}

// BuildCallGraph records the static calls of every function of the files.
// Calls through function values and interfaces are not followed; calls
// made by closures count for the function defining them.
func BuildCallGraph(files []*ast.File, info *types.Info) *DependencyGraph {
	dg := NewDependencyGraph()
	local := localPackage(files, info)
	for _, f := range files {
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil {
				continue
			}
			caller := funcName(fn)
			if dg.graph[caller] == nil {
				dg.graph[caller] = make(map[string]bool)
			}
			closures := 0
			ast.Inspect(fn.Body, func(n ast.Node) bool {
				switch x := n.(type) {
				case *ast.FuncLit:
					closures++
					dg.AddContains(caller, fmt.Sprintf("%s.func%d", caller, closures))
				case *ast.CallExpr:
					if callee, ok := staticCallee(x, info, local); ok {
						dg.AddCall(caller, callee)
					}
				}
				return true
			})
		}
	}
	return dg
}

// localPackage is the package the files were checked as
func localPackage(files []*ast.File, info *types.Info) *types.Package {
	if info == nil {
		return nil
	}
	for _, f := range files {
		for _, decl := range f.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok {
				if obj := info.Defs[fn.Name]; obj != nil {
					return obj.Pkg()
				}
			}
		}
	}
	return nil
}

// staticCallee names the function or method a call statically resolves to
func staticCallee(c *ast.CallExpr, info *types.Info, local *types.Package) (string, bool) {
	var id *ast.Ident
	switch fun := ast.Unparen(c.Fun).(type) {
	case *ast.Ident:
		id = fun
	case *ast.SelectorExpr:
		id = fun.Sel
	case *ast.IndexExpr:
		if x, ok := fun.X.(*ast.Ident); ok {
			id = x
		}
	case *ast.IndexListExpr:
		if x, ok := fun.X.(*ast.Ident); ok {
			id = x
		}
	}
	if id == nil {
		return "", false
	}
	if info == nil {
		return id.Name, true
	}
	fn, ok := info.Uses[id].(*types.Func)
	if !ok {
		return "", false
	}
	sig, _ := fn.Type().(*types.Signature)
	if sig != nil && sig.Recv() != nil {
		t := sig.Recv().Type()
		if p, ok := t.(*types.Pointer); ok {
			t = p.Elem()
		}
		switch n := types.Unalias(t).(type) {
		case *types.Named:
			return qualifiedName(local, fn.Pkg(), n.Obj().Name()+"."+fn.Name()), true
		case *types.Interface:
			return "", false
		}
	}
	return qualifiedName(local, fn.Pkg(), fn.Name()), true
}

// qualifiedName prefixes functions of other packages with the package path
func qualifiedName(local, pkg *types.Package, name string) string {
	if pkg == nil || pkg == local {
		return name
	}
	return pkg.Path() + "." + name
}

func (dg *DependencyGraph) GetReachable() map[string]bool {
	reachable := make(map[string]bool)
	visited := make(map[string]bool)

	var dfs func(string)
	dfs = func(funcName string) {
		if visited[funcName] {
			return
		}
		visited[funcName] = true
		reachable[funcName] = true

		// Follow direct calls
		for callee := range dg.graph[funcName] {
			dfs(callee)
		}

		// Follow contained functions (closures)
		for child := range dg.contains[funcName] {
			dfs(child)
		}
	}

	for root := range dg.roots {
		dfs(root)
	}

	return reachable
}

// CalledFunctions returns the sorted functions called by name, directly or
// through other functions of the package
func (dg *DependencyGraph) CalledFunctions(name string) []string {
	sub := &DependencyGraph{graph: dg.graph, contains: dg.contains, roots: map[string]bool{name: true}}
	var out []string
	for fn := range sub.GetReachable() {
		if fn != name && !dg.isClosure(fn) {
			out = append(out, fn)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func (dg *DependencyGraph) isClosure(name string) bool {
	for _, children := range dg.contains {
		if children[name] {
			return true
		}
	}
	return false
}

// Recursive reports whether name can reach itself
func (dg *DependencyGraph) Recursive(name string) bool {
	for callee := range dg.graph[name] {
		if callee == name {
			return true
		}
	}
	for _, fn := range dg.CalledFunctions(name) {
		if dg.graph[fn][name] {
			return true
		}
	}
	return false
}

func (dg *DependencyGraph) PrintDependencyTree(w io.Writer) {
	fmt.Fprintln(w, "=== Call Graph ===")
	fmt.Fprintln(w)

	roots := make([]string, 0, len(dg.roots))
	for root := range dg.roots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	fmt.Fprintln(w, "Annotated Functions:")
	for _, root := range roots {
		fmt.Fprintf(w, "  - %s\n", root)
	}
	fmt.Fprintln(w)

	reachable := dg.GetReachable()
	fmt.Fprintf(w, "Reachable Functions: %d\n", len(reachable))
	funcs := make([]string, 0, len(reachable))
	for fn := range reachable {
		funcs = append(funcs, fn)
	}
	sort.Strings(funcs)
	for _, fn := range funcs {
		callees := dg.graph[fn]
		if len(callees) > 0 {
			calleeList := make([]string, 0, len(callees))
			for c := range callees {
				calleeList = append(calleeList, c)
			}
			sort.Strings(calleeList)
			fmt.Fprintf(w, "  %s -> %v\n", fn, calleeList)
		} else {
			fmt.Fprintf(w, "  %s (leaf)\n", fn)
		}
	}
	fmt.Fprintln(w)
}
