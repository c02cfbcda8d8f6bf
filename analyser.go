// Completion: 100% - Dependency resolution over one block level
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"github.com/willf/bitset"
	"github.com/xyproto/autopar/internal/liveset"
)

// AnalyserOptions controls the dependency analysis
type AnalyserOptions struct {
	// StrictMoves makes every read inside a compound expression release
	// the name and rejects later readers of a name nobody released
	StrictMoves bool
}

// Analyser builds dependency trees for the functions of one file
type Analyser struct {
	fset *token.FileSet
	file *token.File
	info *types.Info
	opts AnalyserOptions
	res  *identResolver
}

// NewAnalyser creates an analyser for a parsed file. info may be nil, in
// which case the parser's object resolution is used.
func NewAnalyser(fset *token.FileSet, f *ast.File, info *types.Info, opts AnalyserOptions) *Analyser {
	file := fset.File(f.Pos())
	return &Analyser{
		fset: fset,
		file: file,
		info: info,
		opts: opts,
		res:  newIdentResolver(info, file),
	}
}

// AnalyseFunc analyses the body of fn and returns its dependency tree with
// the rolled up environments of the body.
func (a *Analyser) AnalyseFunc(fn *ast.FuncDecl) (DependencyTree, liveset.Environment, liveset.Environment, error) {
	if fn.Body == nil {
		return nil, liveset.Environment{}, liveset.Environment{}, HostError(
			fmt.Sprintf("function %s has no body", fn.Name.Name), a.location(fn.Pos()))
	}
	d := a.deconstructor()
	d.results = fieldNames(fn.Type.Results)
	tree, in, out, err := d.analyseList(fn.Body.List)
	if err != nil {
		return nil, in, out, err
	}
	if VerboseMode {
		trace("analysed function", "name", fn.Name.Name, "nodes", len(tree), "in", in.String(), "out", out.String())
	}
	return tree, in, out, nil
}

// AnalyseBlock analyses a statement list outside of a function context
func (a *Analyser) AnalyseBlock(list []ast.Stmt) (DependencyTree, liveset.Environment, liveset.Environment, error) {
	return a.deconstructor().analyseList(list)
}

func (a *Analyser) deconstructor() *deconstructor {
	return newDeconstructor(a.fset, a.res, a.opts.StrictMoves)
}

func (a *Analyser) location(pos token.Pos) SourceLocation {
	p := a.fset.Position(pos)
	return SourceLocation{File: p.Filename, Line: p.Line, Column: p.Column}
}

// analyseList deconstructs every statement and resolves the environments
// into dependency edges. It returns the tree with the block's in and out
// environments.
func (d *deconstructor) analyseList(list []ast.Stmt) (DependencyTree, liveset.Environment, liveset.Environment, error) {
	tree := make(DependencyTree, 0, len(list))
	for _, s := range list {
		node, err := d.statement(s)
		if err != nil {
			return nil, liveset.Environment{}, liveset.Environment{}, err
		}
		tree = append(tree, node)
	}
	in, out, err := d.resolve(tree, list)
	if err != nil {
		return nil, in, out, err
	}
	return tree, in, out, nil
}

// resolve connects every name a node reads to its nearest earlier producer
// on the same level. A name with no producer is read from the enclosing
// scope and becomes part of the block's in environment.
func (d *deconstructor) resolve(tree DependencyTree, list []ast.Stmt) (liveset.Environment, liveset.Environment, error) {
	var blockIn, blockOut liveset.Environment
	for i, node := range tree {
		nodeIn, nodeOut := node.Env()
		depIn := nodeIn.Clone()
		if d.strict {
			blockOut.RemoveAll(depIn)
		}
		blockOut.Merge(nodeOut)

		deps := bitset.New(uint(len(tree)))
		for back := i - 1; back >= 0 && !depIn.Empty(); back-- {
			backIn, backOut := tree[back].Env()
			for _, name := range depIn.Paths() {
				switch {
				case backOut.Contains(name):
					deps.Set(uint(back))
					depIn.Remove(name)
				case backIn.Contains(name):
					if d.strict {
						return blockIn, blockOut, ConsumerNotReleasedError(name.Key(), d.location(list[i].Pos()))
					}
					if nodeOut.Contains(name) {
						// the writer waits for the earlier reader
						deps.Set(uint(back))
					}
				}
			}
		}
		blockIn.Merge(depIn)

		indices := setIndices(deps)
		if node.Kind() == KindMac && len(indices) > 0 {
			return blockIn, blockOut, AnalysisError(
				fmt.Sprintf("declaration %s depends on %v", node.StmtID(), indices), d.location(list[i].Pos()))
		}
		node.setDeps(indices)
	}
	return blockIn, blockOut, nil
}

// setIndices returns the set bits in increasing order
func setIndices(b *bitset.BitSet) []int {
	var out []int
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// nodeName names an AST node kind for diagnostics
func nodeName(n ast.Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}
