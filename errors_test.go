package main

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompilerErrorFormat(t *testing.T) {
	e := UnsupportedError("goto", SourceLocation{File: "work.go", Line: 3, Column: 2, Length: 4})
	e.Context.SourceLine = "\tgoto done"
	got := e.Format(false)
	want := "fatal error: unsupported construct: goto\n" +
		"  --> work.go:3:2\n" +
		"  |\n" +
		"3 | \tgoto done\n" +
		"  |  ^^^^\n" +
		"   note: remove the //autopar:parallelise directive from this function\n"
	if got != want {
		t.Errorf("Format:\n%q\nwant\n%q", got, want)
	}
	if colored := e.Format(true); !strings.Contains(colored, "\033[1;31mfatal error:\033[0m") {
		t.Errorf("no color in %q", colored)
	}
}

func TestCompilerErrorString(t *testing.T) {
	tests := []struct {
		err  CompilerError
		want string
	}{
		{CycleError(2, SourceLocation{}), "schedule error: dependency cycle: 2 statement(s) could not be scheduled"},
		{HostError("bad", SourceLocation{File: "a.go", Line: 1, Column: 5}), "a.go:1:5: host error: bad"},
		{AnalysisError("mac", SourceLocation{Line: 4, Column: 1}), "4:1: analysis error: mac"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestAsCompilerError(t *testing.T) {
	wrapped := fmt.Errorf("pass: %w", PersistenceError("state.json", fmt.Errorf("boom")))
	ce, ok := asCompilerError(wrapped)
	if !ok || ce.Category != CategoryPersistence {
		t.Errorf("asCompilerError(%v) = %v, %v", wrapped, ce, ok)
	}
	if _, ok := asCompilerError(fmt.Errorf("plain")); ok {
		t.Error("found a compiler error in a plain error")
	}
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	ec.AddSource("work.go", "package p\n\nfunc f() {}\n")
	ec.AddWarning(HostError("nothing to run in parallel", SourceLocation{File: "work.go", Line: 3, Column: 1}))
	if ec.HasErrors() || ec.First() != nil {
		t.Fatal("a warning counted as an error")
	}
	if ec.warnings[0].Context.SourceLine != "func f() {}" {
		t.Errorf("source line %q", ec.warnings[0].Context.SourceLine)
	}

	lint := HostError("uses unsafe", SourceLocation{File: "work.go", Line: 3, Column: 6})
	lint.Level = LevelError
	ec.AddError(lint)
	if !ec.HasErrors() || ec.First().Error() != lint.Error() {
		t.Errorf("First() = %v", ec.First())
	}

	report := ec.Report(false)
	if !strings.HasSuffix(report, "1 error(s), 1 warning(s) found\n") {
		t.Errorf("report summary:\n%s", report)
	}
	if strings.Index(report, "uses unsafe") > strings.Index(report, "nothing to run") {
		t.Errorf("errors must come first:\n%s", report)
	}
	if NewErrorCollector().Report(false) != "" {
		t.Error("empty collector reported something")
	}
}
