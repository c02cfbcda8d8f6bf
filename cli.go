// Completion: 95% - Command line interface
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/xyproto/autopar/internal/suggest"
)

// cli.go - Go-like command-line interface for autopar
//
// - autopar pass <dir>  (run one pass: analysis or rewrite, from the side-car)
// - autopar build <dir> (run passes until the rewrite is done)
// - autopar plan <dir>  (print trees, schedules and channels)
// - autopar watch <dir> (build again on every change)
// - autopar clean <dir> (remove the side-car)

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args      []string
	Verbose   bool
	Quiet     bool
	Overrides func(*Config)
}

var commands = []string{"build", "clean", "help", "pass", "plan", "version", "watch"}

// RunCLI is the main entry point for the CLI. The returned exit code is
// only meaningful when err is nil.
func RunCLI(ctx *CommandContext) (ExitCode, error) {
	args := ctx.Args
	if len(args) == 0 {
		return ExitOK, cmdHelp(ctx)
	}

	subcmd := args[0]
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	switch subcmd {
	case "pass":
		return cmdPass(ctx, dir)
	case "build":
		return ExitOK, cmdBuild(ctx, dir)
	case "plan":
		return ExitOK, cmdPlan(ctx, dir)
	case "watch":
		return ExitOK, cmdWatch(ctx, dir)
	case "clean":
		return ExitOK, Clean(dir)
	case "help", "--help", "-h":
		return ExitOK, cmdHelp(ctx)
	case "version", "--version", "-V":
		fmt.Println(versionString)
		return ExitOK, nil
	}

	msg := fmt.Sprintf("unknown command: %s", subcmd)
	if similar := suggest.Similar(subcmd, commands, 2); len(similar) > 0 {
		msg += fmt.Sprintf("\n\nDid you mean '%s'?", strings.Join(similar, "' or '"))
	}
	return ExitFatal, fmt.Errorf("%s\n\nRun 'autopar help' for usage information", msg)
}

// loadConfig reads the config of dir and applies the command line flags
func loadConfig(ctx *CommandContext, dir string) (Config, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return cfg, err
	}
	if ctx.Overrides != nil {
		ctx.Overrides(&cfg)
	}
	return cfg, nil
}

// cmdPass runs one pass over the package in dir
func cmdPass(ctx *CommandContext, dir string) (ExitCode, error) {
	cfg, err := loadConfig(ctx, dir)
	if err != nil {
		return ExitFatal, err
	}
	d := NewDriver(dir, cfg)
	code, err := d.Run(context.Background())
	if d.Diagnostics().WarningCount() > 0 && !ctx.Quiet {
		fmt.Fprintln(os.Stderr, d.Diagnostics().Report(useColor()))
	}
	if err != nil {
		return ExitFatal, err
	}
	if ctx.Verbose {
		switch code {
		case ExitRecompile:
			fmt.Fprintf(os.Stderr, "Analysis saved to %s\n", statePath(dir))
		case ExitOK:
			for _, f := range d.Written {
				fmt.Fprintf(os.Stderr, "-> Wrote %s\n", f)
			}
		}
	}
	return code, nil
}

// cmdBuild plays the part of the host compiler: it runs the pass again for
// as long as the pass asks for a recompile
// Confidence that this function is working: 85%
func cmdBuild(ctx *CommandContext, dir string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to find the autopar executable: %v", err)
	}
	const maxPasses = 3
	for pass := 1; pass <= maxPasses; pass++ {
		args := passArgs(ctx, dir)
		if ctx.Verbose {
			fmt.Fprintf(os.Stderr, "Pass %d: %s %s\n", pass, self, strings.Join(args, " "))
		}
		cmd := exec.Command(self, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err := cmd.Run()
		if err == nil {
			if !ctx.Quiet {
				cfg, _ := loadConfig(ctx, dir)
				fmt.Printf("Built: %s\n", NewDriver(dir, cfg).OutputDir())
			}
			return nil
		}
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return fmt.Errorf("pass failed: %v", err)
		}
		if ExitCode(exitErr.ExitCode()) != ExitRecompile {
			return fmt.Errorf("pass %d exited with status %d", pass, exitErr.ExitCode())
		}
	}
	return fmt.Errorf("no rewrite after %d passes", maxPasses)
}

// passArgs repeats the flags of this invocation for a child pass
func passArgs(ctx *CommandContext, dir string) []string {
	var args []string
	if ctx.Verbose {
		args = append(args, "-v")
	}
	if ctx.Quiet {
		args = append(args, "-q")
	}
	args = append(args, passthroughFlags...)
	return append(args, "pass", dir)
}

// cmdPlan prints what the rewrite would do, without touching the side-car
func cmdPlan(ctx *CommandContext, dir string) error {
	cfg, err := loadConfig(ctx, dir)
	if err != nil {
		return err
	}
	u, err := LoadPackage(context.Background(), dir)
	if err != nil {
		return err
	}
	targets, err := u.Targets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Printf("no functions carry %s in %s\n", Directive, dir)
		return nil
	}
	calls := BuildCallGraph(u.Files, u.Info)
	for _, t := range targets {
		calls.MarkRoot(funcName(t.Fn))
	}
	for _, t := range targets {
		name := funcName(t.Fn)
		a := NewAnalyser(u.Fset, t.File, u.Info, cfg.analyserOptions())
		if n := a.Normalise(t.Fn); n > 0 && ctx.Verbose {
			fmt.Printf("%s: hoisted %d call(s)\n", name, n)
		}
		tree, in, out, err := a.AnalyseFunc(t.Fn)
		if err != nil {
			return err
		}
		sched, err := BuildSchedule(tree)
		if err != nil {
			return err
		}
		a.res.FillChannels(tree, sched)

		fmt.Printf("=== %s (%s) ===\n", name, u.Fset.Position(t.Fn.Pos()))
		if calls.Recursive(name) {
			fmt.Println("recursive")
		}
		fmt.Printf("in=%v out=%v\n\n", in, out)
		fmt.Println("dependency tree:")
		fmt.Print(tree.Dump())
		fmt.Println("\nschedule:")
		fmt.Print(sched.Dump())
		catalogue := CatalogueAll(sched)
		if len(catalogue) > 0 {
			fmt.Println("\nchannels:")
			for _, lc := range catalogue {
				fmt.Printf("  level %s:\n", lc.Level)
				for _, ch := range lc.Channels {
					fmt.Printf("    %s carries %v\n", ch.Name(), ch.Env)
				}
			}
		}
		fmt.Println()
	}
	calls.PrintDependencyTree(os.Stdout)
	return nil
}

// cmdWatch builds the package and builds it again whenever one of its
// files changes
func cmdWatch(ctx *CommandContext, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watch mode enabled - monitoring %s\n", absDir)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop, or send SIGUSR1 to trigger a rebuild\n\n")

	rebuild := func(trigger string) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", time.Now().Format("15:04:05"), trigger)
		if err := RemoveState(absDir); err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
			return
		}
		if err := cmdBuild(ctx, absDir); err != nil {
			fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		}
	}
	rebuild("Initial build")

	setupReloadSignal(rebuild)

	watcher, err := NewFileWatcher(func(path string) {
		rebuild(fmt.Sprintf("File changed: %s", filepath.Base(path)))
	})
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.AddDir(absDir); err != nil {
		return fmt.Errorf("failed to watch directory: %v", err)
	}

	watcher.Watch()
	return nil
}

func useColor() bool {
	fi, err := os.Stderr.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// cmdHelp displays usage information
func cmdHelp(ctx *CommandContext) error {
	fmt.Printf(`%s - automatic parallelisation of Go functions

USAGE:
    autopar [flags] <command> [directory]

COMMANDS:
    build [dir]    Run the analysis and the rewrite pass (default: current directory)
    pass [dir]     Run one pass; exits with 1 after the analysis, 0 after the rewrite
    plan [dir]     Print dependency trees, schedules and channels of annotated functions
    watch [dir]    Build, then build again whenever a file changes
    clean [dir]    Remove the side-car left by an analysis pass
    help           Show this help message
    version        Show version information

FLAGS:
    -v, --verbose          Verbose mode (trace the analysis)
    -q, --quiet            Quiet mode (suppress progress messages)
    -o, --output <dir>     Output directory (default: autopar_out)
    --for-loops            Pipeline the iterations of eligible loops
    --function-body        Run the whole function body behind a handle
    --strict               Strict move checking
    --disable              Copy the package without rewriting it

ANNOTATION:
    Add the directive to the doc comment of a function:

        %s
        func work(n int) int { ... }

CONFIGURATION:
    %s in the package directory:

        pluginEnabled: true
        parallelFunctionBody: false
        parallelForLoops: false
        strictMoves: false
        linterLevel: warning
        outputDir: autopar_out

    Environment: AUTOPAR_ENABLED, AUTOPAR_FUNCTION_BODY, AUTOPAR_FOR_LOOPS,
    AUTOPAR_STRICT_MOVES, AUTOPAR_LINTER_LEVEL, AUTOPAR_OUTPUT, AUTOPAR_VERBOSE

`, versionString, Directive, ConfigFileName)
	return nil
}
