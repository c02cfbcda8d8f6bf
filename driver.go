// Completion: 95% - The two pass driver
package main

import (
	"context"
	"fmt"
	"go/ast"
	"go/types"
	"os"
	"path/filepath"
)

// ExitCode is the status a pass ends the process with
type ExitCode int

const (
	ExitOK        ExitCode = 0 // rewrite done, or nothing to do
	ExitRecompile ExitCode = 1 // analysis saved, run the next pass
	ExitFatal     ExitCode = 2 // the pass failed
)

// Driver runs one pass over a package directory. The stage read from the
// side-car selects the analysis or the rewrite.
type Driver struct {
	dir      string
	cfg      Config
	state    *PassState
	pipeline *StagePipeline
	depth    int
	calls    *DependencyGraph
	edits    map[*ast.File]*fileEdit
	errs     *ErrorCollector
	// Written lists the output files of a rewrite pass
	Written []string
}

// NewDriver creates a driver for the package in dir
func NewDriver(dir string, cfg Config) *Driver {
	return &Driver{
		dir:   dir,
		cfg:   cfg,
		edits: make(map[*ast.File]*fileEdit),
		errs:  NewErrorCollector(),
	}
}

// Stage returns the stage of the current pass
func (d *Driver) Stage() PassStage {
	if d.pipeline == nil {
		return StageInit
	}
	return d.pipeline.CurrentStage()
}

// Diagnostics returns the collected warnings
func (d *Driver) Diagnostics() *ErrorCollector {
	return d.errs
}

// OutputDir is the directory the rewritten package is written to
func (d *Driver) OutputDir() string {
	if filepath.IsAbs(d.cfg.OutputDir) {
		return d.cfg.OutputDir
	}
	return filepath.Join(d.dir, d.cfg.OutputDir)
}

// EnterPass starts a pass. The outermost call loads the side-car, or
// starts a new analysis when there is none.
func (d *Driver) EnterPass() error {
	d.depth++
	if d.depth > 1 {
		return nil
	}
	state, ok, err := LoadState(d.dir)
	if err != nil {
		return err
	}
	if !ok {
		d.state = NewPassState(d.cfg.LinterLevel)
		d.pipeline = NewStagePipeline(StageInit)
		if err := d.pipeline.AdvanceTo(StageAnalysis); err != nil {
			return err
		}
	} else {
		if state.Stage != StageAnalysis && state.Stage != StageModification {
			return PersistenceError(statePath(d.dir), fmt.Errorf("unexpected stage %s", state.Stage))
		}
		d.state = state
		d.pipeline = NewStagePipeline(state.Stage)
	}
	trace("enter pass", "dir", d.dir, "stage", d.state.Stage.String())
	if d.state.Stage == StageAnalysis {
		return SaveState(d.dir, d.state)
	}
	return nil
}

// ExitPass ends a pass. At the outermost level an analysis pass saves the
// state for the rewrite and asks for a recompile; a rewrite pass removes
// the side-car.
func (d *Driver) ExitPass() (ExitCode, error) {
	d.depth--
	if d.depth > 0 {
		return ExitOK, nil
	}
	switch d.state.Stage {
	case StageAnalysis:
		if err := d.pipeline.AdvanceTo(StageModification); err != nil {
			return ExitFatal, err
		}
		d.state.Stage = StageModification
		if err := SaveState(d.dir, d.state); err != nil {
			return ExitFatal, err
		}
		return ExitRecompile, nil
	case StageModification:
		if err := d.pipeline.AdvanceTo(StageComplete); err != nil {
			return ExitFatal, err
		}
		if err := RemoveState(d.dir); err != nil {
			return ExitFatal, err
		}
		return ExitOK, nil
	}
	return ExitFatal, FatalError(fmt.Sprintf("pass ended at stage %s", d.state.Stage), SourceLocation{})
}

// CheckFn analyses one annotated function and records its dependency tree
func (d *Driver) CheckFn(u *Unit, t Target) error {
	if !d.cfg.PluginEnabled || d.state.Stage != StageAnalysis {
		return nil
	}
	if err := d.pipeline.ValidateStage(StageAnalysis, "checkFn"); err != nil {
		return err
	}
	name := funcName(t.Fn)
	defer span("check function", "name", name)()

	a := NewAnalyser(u.Fset, t.File, u.Info, d.cfg.analyserOptions())
	a.Normalise(t.Fn)
	tree, _, _, err := a.AnalyseFunc(t.Fn)
	if err != nil {
		return err
	}

	rec := FunctionRecord{
		IdentName:      name,
		IdentCtxt:      []int{a.file.Offset(t.Fn.Name.Pos())},
		InputTypes:     []string{},
		EncodedDepTree: EncodeTree(tree),
	}
	if fn, ok := u.Info.Defs[t.Fn.Name].(*types.Func); ok {
		sig := fn.Type().(*types.Signature)
		qual := types.RelativeTo(u.Pkg)
		rec.OutputType = types.TypeString(sig.Results(), qual)
		for i := 0; i < sig.Params().Len(); i++ {
			rec.InputTypes = append(rec.InputTypes, types.TypeString(sig.Params().At(i).Type(), qual))
		}
	}
	rec.IsUnsafe = usesUnsafe(t.Fn, u.Info)
	if d.calls != nil {
		rec.CalledFunctions = d.calls.CalledFunctions(name)
	} else {
		rec.CalledFunctions = []string{}
	}
	if rec.IsUnsafe {
		d.lint(HostError(fmt.Sprintf("%s uses package unsafe; memory shared through unsafe pointers is not tracked", name), u.location(t.Fn.Pos())))
	}

	d.state.Record(rec)
	return SaveState(d.dir, d.state)
}

// Expand rewrites one annotated function from its recorded analysis
func (d *Driver) Expand(u *Unit, t Target) error {
	if !d.cfg.PluginEnabled || d.state.Stage != StageModification {
		return nil
	}
	if err := d.pipeline.ValidateStage(StageModification, "expand"); err != nil {
		return err
	}
	name := funcName(t.Fn)
	defer span("expand function", "name", name)()

	rec, ok := d.state.Lookup(name)
	if !ok {
		return HostError(fmt.Sprintf("function %s was not analysed by the previous pass", name), u.location(t.Fn.Pos()))
	}

	a := NewAnalyser(u.Fset, t.File, u.Info, d.cfg.analyserOptions())
	a.Normalise(t.Fn)
	tree, _, _, err := a.AnalyseFunc(t.Fn)
	if err != nil {
		return err
	}
	if err := ReplaceDependencies(tree, rec.EncodedDepTree); err != nil {
		return err
	}
	sched, err := BuildSchedule(tree)
	if err != nil {
		return err
	}
	r := a.Reconstructor(u.Pkg, t.File, d.cfg.reconstructOptions(u.PerIterationLoopVars(t.File)))
	body, err := r.Reconstruct(tree, sched)
	if err != nil {
		return err
	}
	if !parallel(sched) && !d.cfg.ParallelForLoops {
		d.lint(HostError(fmt.Sprintf("%s has no statements that can run in parallel", name), u.location(t.Fn.Pos())))
	}

	edit := d.edits[t.File]
	if edit == nil {
		edit = &fileEdit{}
		d.edits[t.File] = edit
	}
	edit.bodies = append(edit.bodies, bodyRange{pos: t.Fn.Body.Pos(), end: t.Fn.Body.End()})
	t.Fn.Body = &ast.BlockStmt{Lbrace: t.Fn.Body.Lbrace, List: body, Rbrace: t.Fn.Body.Rbrace}

	if d.cfg.ParallelFunctionBody {
		detached, wrapper := Detach(t.Fn)
		replaceDecl(t.File, t.Fn, wrapper, detached)
	}
	return nil
}

// Run performs one complete pass over the package
func (d *Driver) Run(ctx context.Context) (ExitCode, error) {
	u, err := LoadPackage(ctx, d.dir)
	if err != nil {
		return ExitFatal, err
	}
	return d.RunUnit(u)
}

// RunUnit performs one complete pass over a loaded package
func (d *Driver) RunUnit(u *Unit) (ExitCode, error) {
	if !d.cfg.PluginEnabled {
		written, err := WriteOutput(u, nil, d.OutputDir())
		d.Written = written
		if err != nil {
			return ExitFatal, err
		}
		return ExitOK, nil
	}
	targets, err := u.Targets()
	if err != nil {
		return ExitFatal, err
	}
	for _, f := range u.Files {
		if src, err := os.ReadFile(u.Filename(f)); err == nil {
			d.errs.AddSource(u.Filename(f), string(src))
		}
	}
	d.calls = BuildCallGraph(u.Files, u.Info)
	for _, t := range targets {
		d.calls.MarkRoot(funcName(t.Fn))
	}

	if err := d.EnterPass(); err != nil {
		return ExitFatal, err
	}
	for _, t := range targets {
		switch d.state.Stage {
		case StageAnalysis:
			err = d.CheckFn(u, t)
		case StageModification:
			err = d.Expand(u, t)
		}
		if err != nil {
			return ExitFatal, err
		}
	}
	if d.errs.HasErrors() {
		return ExitFatal, d.errs.First()
	}
	if d.state.Stage == StageModification {
		written, err := WriteOutput(u, d.edits, d.OutputDir())
		d.Written = written
		if err != nil {
			return ExitFatal, err
		}
	}
	return d.ExitPass()
}

// lint reports a warning according to the linter level
func (d *Driver) lint(e CompilerError) {
	switch d.cfg.LinterLevel {
	case LintAllow:
	case LintDeny:
		e.Level = LevelError
		d.errs.AddError(e)
	default:
		d.errs.AddWarning(e)
	}
}

// parallel reports whether a schedule spawns anything at any level
func parallel(sched Schedule) bool {
	trees := 0
	for _, root := range sched {
		if root.Node.Kind() != KindMac {
			trees++
		}
		for _, e := range root.Nodes() {
			if len(e.Children) > 1 {
				return true
			}
			for _, inner := range e.Inner {
				if parallel(inner) {
					return true
				}
			}
		}
	}
	return trees > 1
}

// usesUnsafe reports whether fn refers to package unsafe
func usesUnsafe(fn *ast.FuncDecl, info *types.Info) bool {
	found := false
	ast.Inspect(fn, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok || found {
			return !found
		}
		if pn, ok := info.Uses[id].(*types.PkgName); ok && pn.Imported().Path() == "unsafe" {
			found = true
		}
		return true
	})
	return found
}

// replaceDecl puts decls in the place of old
func replaceDecl(f *ast.File, old ast.Decl, decls ...ast.Decl) {
	for i, d := range f.Decls {
		if d == old {
			rest := append([]ast.Decl{}, f.Decls[i+1:]...)
			f.Decls = append(append(f.Decls[:i], decls...), rest...)
			return
		}
	}
}

// Clean removes the side-car of dir
func Clean(dir string) error {
	if err := RemoveState(dir); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "removed %s\n", statePath(dir))
	return nil
}
