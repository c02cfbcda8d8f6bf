// Completion: 100% - Diagnostics for analysis, scheduling and persistence
package main

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorLevel indicates the severity of an error
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryAnalysis ErrorCategory = iota
	CategoryCycle
	CategoryUnsupported
	CategoryPersistence
	CategoryHost
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryAnalysis:
		return "analysis"
	case CategoryCycle:
		return "schedule"
	case CategoryUnsupported:
		return "unsupported"
	case CategoryPersistence:
		return "persistence"
	case CategoryHost:
		return "host"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation represents a position in source code
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int // Length of the problematic token/expression
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides additional context for an error
type ErrorContext struct {
	SourceLine string // The actual line of source code
	Suggestion string // "Did you mean 'x'?"
	HelpText   string // Explanatory help text
}

// CompilerError represents a single compilation error
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
}

// Error implements the error interface
func (e CompilerError) Error() string {
	if e.Location.Line == 0 && e.Location.File == "" {
		return fmt.Sprintf("%s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Location, e.Category, e.Message)
}

// Fatal reports whether the error aborts the procedure
func (e CompilerError) Fatal() bool {
	return e.Level != LevelWarning
}

// painter wraps text in an ANSI style when color is on
type painter bool

func (p painter) paint(style, text string) string {
	if !p {
		return text
	}
	return "\033[" + style + "m" + text + "\033[0m"
}

const (
	styleError   = "1;31"
	styleWarning = "1;33"
	styleWhere   = "1;34"
	styleHelp    = "1;32"
	styleNote    = "1;36"
)

// Format renders the error with its location, the quoted source line with
// a caret under the column, and the help lines
func (e CompilerError) Format(useColor bool) string {
	p := painter(useColor)
	var sb strings.Builder
	style := styleError
	if e.Level == LevelWarning {
		style = styleWarning
	}
	fmt.Fprintf(&sb, "%s %s\n", p.paint(style, e.Level.String()+":"), e.Message)
	fmt.Fprintf(&sb, "%s\n", p.paint(styleWhere, "  --> "+e.Location.String()))

	if e.Context.SourceLine != "" {
		gutter := strconv.Itoa(e.Location.Line)
		pad := strings.Repeat(" ", len(gutter)+1)
		fmt.Fprintf(&sb, "%s|\n%s | %s\n", pad, gutter, e.Context.SourceLine)
		if e.Location.Column > 0 {
			caret := strings.Repeat("^", max(1, e.Location.Length))
			fmt.Fprintf(&sb, "%s| %s%s\n", pad, strings.Repeat(" ", e.Location.Column-1), p.paint(style, caret))
		}
	}
	if e.Context.Suggestion != "" {
		fmt.Fprintf(&sb, "   %s %s\n", p.paint(styleHelp, "help:"), e.Context.Suggestion)
	}
	if e.Context.HelpText != "" {
		fmt.Fprintf(&sb, "   %s %s\n", p.paint(styleNote, "note:"), e.Context.HelpText)
	}
	return sb.String()
}

// ErrorCollector gathers the diagnostics of a pass. Lints are collected
// here so that every annotated function is checked before the pass fails.
type ErrorCollector struct {
	errors   []CompilerError
	warnings []CompilerError
	sources  map[string][]string
}

// NewErrorCollector creates an empty collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{sources: make(map[string][]string)}
}

// AddSource registers the text of a file, quoted by diagnostics located in it
func (ec *ErrorCollector) AddSource(file, src string) {
	ec.sources[file] = strings.Split(src, "\n")
}

func (ec *ErrorCollector) withSource(e CompilerError) CompilerError {
	if e.Context.SourceLine != "" {
		return e
	}
	lines := ec.sources[e.Location.File]
	if n := e.Location.Line; n > 0 && n <= len(lines) {
		e.Context.SourceLine = strings.TrimRight(lines[n-1], "\r")
	}
	return e
}

// AddError records an error, or a warning when its level says so
func (ec *ErrorCollector) AddError(err CompilerError) {
	err = ec.withSource(err)
	if err.Fatal() {
		ec.errors = append(ec.errors, err)
	} else {
		ec.warnings = append(ec.warnings, err)
	}
}

// AddWarning records a diagnostic that does not fail the pass
func (ec *ErrorCollector) AddWarning(warn CompilerError) {
	warn.Level = LevelWarning
	ec.warnings = append(ec.warnings, ec.withSource(warn))
}

// HasErrors reports whether the pass must fail
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// First returns the first error, for the exit status of the pass
func (ec *ErrorCollector) First() error {
	if len(ec.errors) == 0 {
		return nil
	}
	return ec.errors[0]
}

// WarningCount returns the number of warnings
func (ec *ErrorCollector) WarningCount() int {
	return len(ec.warnings)
}

// Report renders every diagnostic, errors first, followed by a summary line
func (ec *ErrorCollector) Report(useColor bool) string {
	all := append(append([]CompilerError{}, ec.errors...), ec.warnings...)
	if len(all) == 0 {
		return ""
	}
	parts := make([]string, len(all))
	for i, e := range all {
		parts[i] = e.Format(useColor)
	}
	p := painter(useColor)
	var summary []string
	if n := len(ec.errors); n > 0 {
		summary = append(summary, p.paint(styleError, fmt.Sprintf("%d error(s)", n)))
	}
	if n := len(ec.warnings); n > 0 {
		summary = append(summary, p.paint(styleWarning, fmt.Sprintf("%d warning(s)", n)))
	}
	return strings.Join(parts, "\n") + "\n" + strings.Join(summary, ", ") + " found\n"
}

// Helper functions for creating common errors

// AnalysisError creates an error for an inconsistent dependency analysis
func AnalysisError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryAnalysis,
		Message:  message,
		Location: loc,
	}
}

// ConsumerNotReleasedError creates the error reported when a name is read by
// a statement that does not release it before a later statement needs it
func ConsumerNotReleasedError(name string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryAnalysis,
		Message:  fmt.Sprintf("consumer not released: '%s' is read without being released by an earlier statement", name),
		Location: loc,
		Context: ErrorContext{
			HelpText: "strict move checking is enabled; disable strictMoves to let later readers share the value",
		},
	}
}

// SourceChangedError creates an error for a persisted tree that no longer matches the source
func SourceChangedError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryAnalysis,
		Message:  message,
		Location: loc,
		Context: ErrorContext{
			HelpText: "the source changed between the analysis and the rewrite pass; run 'autopar clean' and build again",
		},
	}
}

// CycleError creates an error for a schedule that cannot make progress
func CycleError(pending int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryCycle,
		Message:  fmt.Sprintf("dependency cycle: %d statement(s) could not be scheduled", pending),
		Location: loc,
	}
}

// UnsupportedError creates an error for a construct the analysis cannot handle
func UnsupportedError(construct string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryUnsupported,
		Message:  fmt.Sprintf("unsupported construct: %s", construct),
		Location: loc,
		Context: ErrorContext{
			HelpText: "remove the //autopar:parallelise directive from this function",
		},
	}
}

// PersistenceError creates an error for side-car read and write failures
func PersistenceError(path string, err error) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryPersistence,
		Message:  fmt.Sprintf("%s: %v", path, err),
		Location: SourceLocation{File: path},
	}
}

// HostError creates an error for problems with the annotated source itself
func HostError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryHost,
		Message:  message,
		Location: loc,
	}
}

// FatalError creates a fatal internal error
func FatalError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryInternal,
		Message:  message,
		Location: loc,
		Context: ErrorContext{
			HelpText: "This is an internal error of autopar. Please report this bug.",
		},
	}
}

// asCompilerError unwraps err looking for a CompilerError
func asCompilerError(err error) (CompilerError, bool) {
	var ce CompilerError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return ce, false
}
