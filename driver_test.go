package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const annotatedSrc = `package p

func hash(w string) int { return len(w) }

//autopar:parallelise
func diamond() int {
	a := 1
	b := a
	c := a
	d := b + c
	return d
}

//autopar:parallelise
func scan(dict []string, target int) {
	for id := 0; id < len(dict); id++ {
		w := dict[id]
		h := hash(w)
		if h == target {
			println(w)
		}
	}
}

func plain(x int) int {
	return x + 1
}
`

func writeSource(t *testing.T, src string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "work.go")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

// pass runs one pass of a fresh driver over the file, the way a new
// compiler process would
func pass(t *testing.T, dir, path, src string, cfg Config) (*Driver, ExitCode, error) {
	t.Helper()
	u, err := NewUnitFromSource(path, src)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(dir, cfg)
	code, err := d.RunUnit(u)
	return d, code, err
}

// twoPasses runs the analysis and the rewrite and returns the output file
func twoPasses(t *testing.T, src string, cfg Config) string {
	t.Helper()
	dir, path := writeSource(t, src)

	_, code, err := pass(t, dir, path, src, cfg)
	if err != nil || code != ExitRecompile {
		t.Fatalf("first pass = %d, %v; want %d", code, err, ExitRecompile)
	}
	state, ok, err := LoadState(dir)
	if err != nil || !ok {
		t.Fatalf("no side-car after the first pass: %v", err)
	}
	if state.Stage != StageModification {
		t.Errorf("side-car stage = %s, want %s", state.Stage, StageModification)
	}

	d, code, err := pass(t, dir, path, src, cfg)
	if err != nil || code != ExitOK {
		t.Fatalf("second pass = %d, %v; want %d", code, err, ExitOK)
	}
	if _, err := os.Stat(filepath.Join(dir, StateFileName)); !os.IsNotExist(err) {
		t.Errorf("side-car left behind: %v", err)
	}
	if len(d.Written) != 1 {
		t.Fatalf("wrote %v", d.Written)
	}
	data, err := os.ReadFile(filepath.Join(dir, cfg.OutputDir, "work.go"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if _, err := NewUnitFromSource("out.go", out); err != nil {
		t.Fatalf("output does not type check: %v\n%s", err, out)
	}
	if strings.Contains(out, Directive) {
		t.Errorf("directive left in the output\n%s", out)
	}
	return out
}

func TestDriverTwoPasses(t *testing.T) {
	out := twoPasses(t, annotatedSrc, DefaultConfig())
	if !strings.Contains(out, "sync_") {
		t.Errorf("diamond was not rewritten\n%s", out)
	}
	if strings.Contains(out, "loop_") {
		t.Errorf("loops pipelined without the option\n%s", out)
	}
	if !strings.Contains(out, "return x + 1") {
		t.Errorf("plain function changed\n%s", out)
	}
}

func TestDriverRecordsFunctions(t *testing.T) {
	dir, path := writeSource(t, annotatedSrc)
	if _, _, err := pass(t, dir, path, annotatedSrc, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	state, _, err := LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(state.Names(), ","); got != "diamond,scan" {
		t.Errorf("recorded %s, want diamond,scan", got)
	}
	rec, _ := state.Lookup("scan")
	if strings.Join(rec.InputTypes, ",") != "[]string,int" || rec.OutputType != "()" {
		t.Errorf("scan recorded as (%v) %s", rec.InputTypes, rec.OutputType)
	}
	if strings.Join(rec.CalledFunctions, ",") != "hash" {
		t.Errorf("scan calls %v, want [hash]", rec.CalledFunctions)
	}
	if len(rec.EncodedDepTree) != 1 {
		t.Errorf("scan has %d top level nodes, want 1", len(rec.EncodedDepTree))
	}
}

func TestDriverForLoops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParallelForLoops = true
	out := twoPasses(t, annotatedSrc, cfg)
	if !strings.Contains(out, "loop_") {
		t.Errorf("scan loop was not pipelined\n%s", out)
	}
}

func TestDriverFunctionBody(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParallelFunctionBody = true
	out := twoPasses(t, annotatedSrc, cfg)
	for _, want := range []string{"func diamondDetached() <-chan func() int", "return (<-diamondDetached())()", "func scanDetached("} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q\n%s", want, out)
		}
	}
}

func TestDriverDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluginEnabled = false
	dir, path := writeSource(t, annotatedSrc)
	_, code, err := pass(t, dir, path, annotatedSrc, cfg)
	if err != nil || code != ExitOK {
		t.Fatalf("pass = %d, %v; want %d", code, err, ExitOK)
	}
	if _, ok, _ := LoadState(dir); ok {
		t.Error("a disabled pass wrote the side-car")
	}
	data, err := os.ReadFile(filepath.Join(dir, cfg.OutputDir, "work.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != annotatedSrc {
		t.Errorf("a disabled pass changed the file:\n%s", data)
	}
}

func TestDriverLinter(t *testing.T) {
	src := `package p

//autopar:parallelise
func linear(x int) int {
	y := x + 1
	z := y * 2
	return z
}
`
	cfg := DefaultConfig()
	dir, path := writeSource(t, src)
	pass(t, dir, path, src, cfg)
	d, code, err := pass(t, dir, path, src, cfg)
	if err != nil || code != ExitOK {
		t.Fatalf("second pass = %d, %v", code, err)
	}
	if d.Diagnostics().WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1", d.Diagnostics().WarningCount())
	}

	cfg.LinterLevel = LintDeny
	dir, path = writeSource(t, src)
	pass(t, dir, path, src, cfg)
	if _, code, err := pass(t, dir, path, src, cfg); err == nil || code != ExitFatal {
		t.Errorf("deny level accepted a sequential function: %d, %v", code, err)
	}
}

func TestDriverRejectsMisplacedDirective(t *testing.T) {
	src := `package p

//autopar:parallelise
var x = 1
`
	dir, path := writeSource(t, src)
	_, code, err := pass(t, dir, path, src, DefaultConfig())
	if err == nil || code != ExitFatal {
		t.Errorf("pass = %d, %v; want a failure", code, err)
	}
	if _, ok, _ := LoadState(dir); ok {
		t.Error("a failed pass wrote the side-car")
	}
}

func TestDriverStaleSidecar(t *testing.T) {
	dir, path := writeSource(t, annotatedSrc)
	state := NewPassState(LintWarning)
	state.Stage = StageModification
	if err := SaveState(dir, state); err != nil {
		t.Fatal(err)
	}
	_, code, err := pass(t, dir, path, annotatedSrc, DefaultConfig())
	if err == nil || code != ExitFatal {
		t.Errorf("rewrite without analysis = %d, %v; want a failure", code, err)
	}
	if err := Clean(dir); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := LoadState(dir); ok {
		t.Error("Clean left the side-car")
	}
}
