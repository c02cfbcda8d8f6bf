// Completion: 95% - Entry point
package main

import (
	"flag"
	"fmt"
	"os"
)

const versionString = "autopar 0.4.0"

// passthroughFlags are the config flags given to this invocation, repeated
// for the passes started by build
var passthroughFlags []string

func main() {
	// NOTE: Go's flag package stops parsing at the first non-flag argument
	// So flags must come BEFORE the command: autopar -v build ./pkg
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (trace the analysis)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (trace the analysis)")
	var quiet = flag.Bool("q", false, "quiet mode (suppress progress messages)")
	var quietLong = flag.Bool("quiet", false, "quiet mode (suppress progress messages)")
	var outputFlag = flag.String("o", "", "output directory")
	var outputLongFlag = flag.String("output", "", "output directory")
	var forLoops = flag.Bool("for-loops", false, "pipeline the iterations of eligible loops")
	var functionBody = flag.Bool("function-body", false, "run the whole function body behind a handle")
	var strict = flag.Bool("strict", false, "strict move checking")
	var disable = flag.Bool("disable", false, "copy the package without rewriting it")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	// Set global verbosity flags (use whichever was specified)
	VerboseMode = VerboseMode || *verbose || *verboseLong
	QuietMode = *quiet || *quietLong

	outputDir := *outputFlag
	if *outputLongFlag != "" {
		outputDir = *outputLongFlag
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o", "output", "for-loops", "function-body", "strict", "disable":
			passthroughFlags = append(passthroughFlags, "-"+f.Name+"="+f.Value.String())
		}
	})

	ctx := &CommandContext{
		Args:    flag.Args(),
		Verbose: VerboseMode,
		Quiet:   QuietMode,
		Overrides: func(cfg *Config) {
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if *forLoops {
				cfg.ParallelForLoops = true
			}
			if *functionBody {
				cfg.ParallelFunctionBody = true
			}
			if *strict {
				cfg.StrictMoves = true
			}
			if *disable {
				cfg.PluginEnabled = false
			}
		},
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "----=[ %s ]=----\n", versionString)
	}

	code, err := RunCLI(ctx)
	if err != nil {
		if ce, ok := asCompilerError(err); ok {
			fmt.Fprintln(os.Stderr, ce.Format(useColor()))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(int(ExitFatal))
	}
	os.Exit(int(code))
}
